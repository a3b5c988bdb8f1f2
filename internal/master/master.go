package master

import (
	"bytes"
	"context"
	"dfs/internal/chunk"
	"dfs/internal/chunkstore"
	"dfs/internal/common"
	"dfs/internal/meta"
	"dfs/internal/types"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type Config struct {
	ChunkSize         int64
	ReplicationFactor int
	GCInterval        time.Duration
	StageTTL          time.Duration
	// SnapshotPath enables periodic snapshots of an in-memory namespace.
	SnapshotPath string
	SnapInterval time.Duration
	Checksum     chunk.Checksummer
}

func (cfg *Config) defaultCfg() {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = common.DefaultChunkSize
	}
	if cfg.ChunkSize > common.MaxChunkSize {
		common.LWarn("<Master> chunk size %v capped to %v", cfg.ChunkSize, common.MaxChunkSize)
		cfg.ChunkSize = common.MaxChunkSize
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = common.DefaultReplicationFactor
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = common.GarbageCollectInterval
	}
	if cfg.StageTTL <= 0 {
		cfg.StageTTL = common.StageExpire
	}
	if cfg.SnapInterval <= 0 {
		cfg.SnapInterval = common.SnapInterval
	}
}

// Snapshotter is a namespace that can be saved to and restored from bytes.
type Snapshotter interface {
	SavePersiteState() ([]byte, error)
	ReadPersiteState([]byte) error
}

// CreateReport describes a successful create or update.
type CreateReport struct {
	FileID          string
	Size            int64
	NumChunks       int
	UnderReplicated int
}

// Master is the single authoritative coordinator. It owns the namespace and
// decides where every chunk lives.
type Master struct {
	mu                sync.RWMutex
	chunkSize         int64
	replicationFactor int

	cfg    Config
	nodes  *Registry
	placer *Selector
	meta   meta.Store
	chunks chunkstore.Store
	codec  *chunk.Codec
	staged *cache.Cache
	ps     *meta.Persister

	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func New(cfg Config, nodes *Registry, md meta.Store, chunks chunkstore.Store) *Master {
	cfg.defaultCfg()
	m := &Master{
		chunkSize:         cfg.ChunkSize,
		replicationFactor: cfg.ReplicationFactor,
		cfg:               cfg,
		nodes:             nodes,
		placer:            NewSelector(nodes),
		meta:              md,
		chunks:            chunks,
		codec:             chunk.NewCodec(cfg.Checksum),
		staged:            cache.New(cfg.StageTTL, cfg.StageTTL/2),
		shutdown:          make(chan struct{}),
	}
	if cfg.SnapshotPath != "" {
		m.ps = meta.NewPersister(cfg.SnapshotPath)
	}
	return m
}

func (m *Master) Registry() *Registry {
	return m.nodes
}

// SetChunkSize changes the chunk size of files created from now on. It must
// lie in (0, common.MaxChunkSize].
func (m *Master) SetChunkSize(size int64) error {
	if size <= 0 || size > common.MaxChunkSize {
		return fmt.Errorf("%w: chunk size %v", types.ErrInvalidArgument, size)
	}
	m.mu.Lock()
	m.chunkSize = size
	m.mu.Unlock()
	return nil
}

func (m *Master) SetReplicationFactor(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: replication factor %v", types.ErrInvalidArgument, n)
	}
	m.mu.Lock()
	m.replicationFactor = n
	m.mu.Unlock()
	return nil
}

func (m *Master) layout() (int64, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunkSize, m.replicationFactor
}

// Start restores the latest snapshot, then launches the node sweep and the
// background tasks.
func (m *Master) Start() error {
	if err := m.restore(); err != nil {
		return err
	}
	m.nodes.Start()
	events := m.nodes.Subscribe(64)
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		for ev := range events {
			if ev.Alive {
				common.LInfo("<Master> node %v joined placement", ev.NodeID)
			} else {
				common.LWarn("<Master> node %v left placement, its replicas are stale", ev.NodeID)
			}
		}
	}()
	go func() {
		defer m.wg.Done()
		m.GoBackgroundTask()
	}()
	return nil
}

// Stop ends the background tasks and the node sweep, writes a final snapshot
// and closes the namespace.
func (m *Master) Stop() {
	m.once.Do(func() {
		close(m.shutdown)
		m.nodes.Stop()
		m.wg.Wait()
		if err := m.snapshot(); err != nil {
			common.LWarn("<Master> final snapshot error %v", err)
		}
		if err := m.meta.Close(); err != nil {
			common.LWarn("<Master> close metadata store error %v", err)
		}
		common.LInfo("<Master> stopped")
	})
}

func (m *Master) GoBackgroundTask() {
	gcTicker := time.NewTicker(m.cfg.GCInterval)
	defer gcTicker.Stop()
	snapTicker := time.NewTicker(m.cfg.SnapInterval)
	defer snapTicker.Stop()
	common.LInfo("<Master> init background taskgroup [gc,snapshot]")
	for {
		var err error
		select {
		case <-gcTicker.C:
			common.LTrace("<Master> ready to begin garbage collect")
			err = m.background(func(ctx context.Context) error {
				_, err := m.CollectGarbage(ctx)
				return err
			})
		case <-snapTicker.C:
			err = m.background(func(context.Context) error { return m.snapshot() })
		case <-m.shutdown:
			return
		}
		if err != nil {
			common.LWarn("<Master> background task error %v", err)
		}
	}
}

func (m *Master) background(fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			common.LWarn("ignored! error %v debug %v", r, string(debug.Stack()))
		}
	}()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()
	return fn(ctx)
}

func (m *Master) snapshotter() (Snapshotter, bool) {
	if m.ps == nil {
		return nil, false
	}
	s, ok := m.meta.(Snapshotter)
	return s, ok
}

func (m *Master) snapshot() error {
	s, ok := m.snapshotter()
	if !ok {
		return nil
	}
	state, err := s.SavePersiteState()
	if err != nil {
		return err
	}
	if err := m.ps.SaveSnapshot(state); err != nil {
		return err
	}
	common.LInfo("<Master> snapshot version %v saved", m.ps.GetSnapshotVersion().Version)
	return nil
}

func (m *Master) restore() error {
	s, ok := m.snapshotter()
	if !ok {
		return nil
	}
	state, err := m.ps.ReadSnapshot()
	if err != nil {
		return fmt.Errorf("read snapshot %v: %w", m.cfg.SnapshotPath, err)
	}
	if state == nil {
		return nil
	}
	if err := s.ReadPersiteState(state); err != nil {
		return err
	}
	common.LInfo("<Master> restored snapshot version %v", m.ps.GetSnapshotVersion().Version)
	return nil
}

func (m *Master) stage(id string) {
	m.staged.Set(id, struct{}{}, cache.DefaultExpiration)
}

func (m *Master) unstage(md types.FileMetadata) {
	for _, ck := range md.Chunks {
		m.staged.Delete(ck.ChunkID)
	}
}

// writeChunks splits data and stores every chunk on the nodes the selector
// picks. Chunk ids are staged before the first write. On failure the chunks
// already written are removed again.
func (m *Master) writeChunks(ctx context.Context, path types.Path, data []byte) (types.FileMetadata, error) {
	chunkSize, rf := m.layout()
	pieces, err := m.codec.Split(data, chunkSize)
	if err != nil {
		return types.FileMetadata{}, err
	}
	now := time.Now()
	md := types.FileMetadata{
		FileID:            common.NewFileId(),
		Filename:          common.GetFileNameWithExt(path),
		Path:              path,
		TotalSize:         int64(len(data)),
		ChunkSize:         chunkSize,
		NumChunks:         len(pieces),
		ReplicationFactor: rf,
		CreatedAt:         now,
		ModifiedAt:        now,
		Chunks:            make([]types.FileChunk, 0, len(pieces)),
	}
	for _, p := range pieces {
		if err := ctx.Err(); err != nil {
			m.rollback(md)
			return types.FileMetadata{}, err
		}
		ck := types.FileChunk{
			ChunkID:    common.NewChunkId(),
			ChunkIndex: p.Index,
			Size:       int64(len(p.Payload)),
			Checksum:   p.Checksum,
		}
		m.stage(ck.ChunkID)
		targets := m.placer.Select(rf)
		accepted, err := m.chunks.Put(ctx, types.ChunkData{ChunkID: ck.ChunkID, Data: p.Payload, Checksum: p.Checksum}, targets)
		if err != nil {
			// replicas that did accept still hold a copy
			ck.ReplicaNodes = accepted
			md.Chunks = append(md.Chunks, ck)
			m.rollback(md)
			return types.FileMetadata{}, fmt.Errorf("store chunk %d of %v: %w", p.Index, path, err)
		}
		ck.ReplicaNodes = accepted
		for _, node := range accepted {
			m.nodes.Charge(node, ck.Size)
		}
		if len(accepted) < rf {
			common.LWarn("<Master> chunk %v of %v has %d/%d replicas", ck.ChunkID, path, len(accepted), rf)
		}
		common.LTrace("<Master> chunk %v of %v on %v", ck.ChunkIndex, path, accepted)
		md.Chunks = append(md.Chunks, ck)
	}
	return md, nil
}

// rollback removes chunks written for an entry that never got committed.
// Failures are left to the garbage collector.
func (m *Master) rollback(md types.FileMetadata) {
	ctx, cancel := context.WithTimeout(context.Background(), common.ReplicaCallTimeout)
	defer cancel()
	m.dropChunks(ctx, md)
	m.unstage(md)
}

// dropChunks deletes the chunks of md and releases their usage. It is best
// effort; leftovers are orphans for the garbage collector.
func (m *Master) dropChunks(ctx context.Context, md types.FileMetadata) {
	for _, ck := range md.Chunks {
		if err := m.chunks.Delete(ctx, ck); err != nil {
			common.LWarn("<Master> delete chunk %v of %v: %v", ck.ChunkID, md.Path, err)
		}
		for _, node := range ck.ReplicaNodes {
			m.nodes.Charge(node, -ck.Size)
		}
	}
}

func report(md types.FileMetadata) CreateReport {
	return CreateReport{
		FileID:          md.FileID,
		Size:            md.TotalSize,
		NumChunks:       md.NumChunks,
		UnderReplicated: md.UnderReplicated(),
	}
}

func filePath(path types.Path) (types.Path, error) {
	path = common.NormalizePath(path)
	if path == "/" {
		return path, fmt.Errorf("%w: %v is not a file path", types.ErrInvalidArgument, path)
	}
	return path, nil
}

// CreateFile stores data under path. It fails with ErrAlreadyExists when the
// path is taken. Metadata is committed only after every chunk is stored.
func (m *Master) CreateFile(ctx context.Context, path types.Path, data []byte) (CreateReport, error) {
	path, err := filePath(path)
	if err != nil {
		return CreateReport{}, err
	}
	if _, err := m.meta.Get(ctx, path); err == nil {
		return CreateReport{}, fmt.Errorf("%w: %v", types.ErrAlreadyExists, path)
	} else if !errors.Is(err, types.ErrNotFound) {
		return CreateReport{}, err
	}
	md, err := m.writeChunks(ctx, path, data)
	if err != nil {
		return CreateReport{}, err
	}
	if err := m.meta.Create(ctx, md); err != nil {
		m.rollback(md)
		return CreateReport{}, err
	}
	m.unstage(md)
	common.LInfo("<Master> created %v (%v bytes, %v chunks)", path, md.TotalSize, md.NumChunks)
	return report(md), nil
}

// ReadFile returns the content of path, reading chunks in index order. An
// update that swaps the entry mid-read drops the chunks being read; the read
// then starts over on the new entry.
func (m *Master) ReadFile(ctx context.Context, path types.Path) ([]byte, error) {
	path = common.NormalizePath(path)
	md, err := m.meta.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	for {
		data, err := m.readChunks(ctx, md)
		if err == nil || ctx.Err() != nil {
			return data, err
		}
		cur, gerr := m.meta.Get(ctx, path)
		if errors.Is(gerr, types.ErrNotFound) {
			return nil, gerr
		}
		if gerr != nil || cur.FileID == md.FileID {
			return nil, err
		}
		common.LTrace("<Master> %v replaced during read, rereading", path)
		md = cur
	}
}

func (m *Master) readChunks(ctx context.Context, md types.FileMetadata) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, md.TotalSize))
	for _, ck := range md.Chunks {
		data, err := m.chunks.Get(ctx, ck)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read chunk %d of %v: %w", ck.ChunkIndex, md.Path, err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// UpdateFile replaces the content of an existing file. The new chunks are
// written first and the entry is swapped in one step, so readers see either
// the old or the new file.
func (m *Master) UpdateFile(ctx context.Context, path types.Path, data []byte) (CreateReport, error) {
	path, err := filePath(path)
	if err != nil {
		return CreateReport{}, err
	}
	old, err := m.meta.Get(ctx, path)
	if err != nil {
		return CreateReport{}, err
	}
	md, err := m.writeChunks(ctx, path, data)
	if err != nil {
		return CreateReport{}, err
	}
	if err := m.meta.Swap(ctx, old.FileID, md); err != nil {
		m.rollback(md)
		return CreateReport{}, err
	}
	m.unstage(md)
	m.dropChunks(ctx, old)
	common.LInfo("<Master> updated %v (%v bytes, %v chunks)", path, md.TotalSize, md.NumChunks)
	return report(md), nil
}

// DeleteFile removes path. Chunk deletion is best effort.
func (m *Master) DeleteFile(ctx context.Context, path types.Path) error {
	path = common.NormalizePath(path)
	md, err := m.meta.Delete(ctx, path)
	if err != nil {
		return err
	}
	m.dropChunks(ctx, md)
	common.LInfo("<Master> deleted %v", path)
	return nil
}

// ListFiles returns the sorted paths starting with prefix.
func (m *Master) ListFiles(ctx context.Context, prefix types.Path) ([]types.Path, error) {
	return m.meta.List(ctx, common.NormalizePath(prefix))
}

// CreateDirectory is a no-op. Directories exist as long as a file lies below them.
func (m *Master) CreateDirectory(ctx context.Context, path types.Path) error {
	common.LTrace("<Master> mkdir %v", common.NormalizePath(path))
	return nil
}

// DeleteDirectory removes every file below dir and returns how many went.
func (m *Master) DeleteDirectory(ctx context.Context, dir types.Path) (int, error) {
	dir = common.NormalizePath(dir)
	paths, err := m.meta.List(ctx, dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range paths {
		if !common.UnderDir(p, dir) {
			continue
		}
		if err := m.DeleteFile(ctx, p); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *Master) GetFileInfo(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	return m.meta.Get(ctx, common.NormalizePath(path))
}

func (m *Master) FileExists(ctx context.Context, path types.Path) bool {
	_, err := m.meta.Get(ctx, common.NormalizePath(path))
	return err == nil
}

func (m *Master) AllMetadata(ctx context.Context) ([]types.FileMetadata, error) {
	return m.meta.All(ctx)
}

func (m *Master) Stats(ctx context.Context) (types.Stats, error) {
	all, err := m.meta.All(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	st := types.Stats{TotalFiles: len(all)}
	for _, md := range all {
		st.TotalSize += md.TotalSize
	}
	st.TotalNodes = len(m.nodes.Nodes())
	st.ActiveNodes = len(m.nodes.ActiveNodes())
	return st, nil
}

func (m *Master) RegisterNode(info types.StorageNodeInfo) error {
	if info.NodeID == "" {
		return fmt.Errorf("%w: empty node id", types.ErrInvalidArgument)
	}
	m.nodes.Register(info)
	return nil
}

func (m *Master) UnregisterNode(nodeID string) error {
	if !m.nodes.Unregister(nodeID) {
		return fmt.Errorf("%w: node %v", types.ErrNotFound, nodeID)
	}
	return nil
}

// UpdateNodeHeartbeat is silently ignored for unknown nodes.
func (m *Master) UpdateNodeHeartbeat(nodeID string, used int64) bool {
	return m.nodes.Heartbeat(nodeID, used)
}

func (m *Master) ActiveNodes() []types.StorageNodeInfo {
	return m.nodes.ActiveNodes()
}

func (m *Master) Nodes() []types.StorageNodeInfo {
	return m.nodes.Nodes()
}
