package client

import (
	"context"
	"dfs/internal/common"
	"dfs/internal/master"
	"dfs/internal/types"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Coordinator is what a Client needs from the coordinator. *master.Master
// satisfies it in process through Local, Remote over the network.
type Coordinator interface {
	CreateFile(ctx context.Context, path types.Path, data []byte) (master.CreateReport, error)
	UpdateFile(ctx context.Context, path types.Path, data []byte) (master.CreateReport, error)
	ReadFile(ctx context.Context, path types.Path) ([]byte, error)
	DeleteFile(ctx context.Context, path types.Path) error
	ListFiles(ctx context.Context, prefix types.Path) ([]types.Path, error)
	CreateDirectory(ctx context.Context, path types.Path) error
	DeleteDirectory(ctx context.Context, path types.Path) (int, error)
	GetFileInfo(ctx context.Context, path types.Path) (types.FileMetadata, error)
	FileExists(ctx context.Context, path types.Path) bool
	AllMetadata(ctx context.Context) ([]types.FileMetadata, error)
	Stats(ctx context.Context) (types.Stats, error)
	CollectGarbage(ctx context.Context) (int, error)
	ListNodes(ctx context.Context, activeOnly bool) ([]types.StorageNodeInfo, error)
}

// Local adapts an in-process Master.
type Local struct {
	*master.Master
}

func (l Local) ListNodes(ctx context.Context, activeOnly bool) ([]types.StorageNodeInfo, error) {
	if activeOnly {
		return l.ActiveNodes(), nil
	}
	return l.Nodes(), nil
}

// Client is the user-facing driver. It must be connected before use.
type Client struct {
	mu  sync.RWMutex
	cfg ClientCfg

	connect func(ctx context.Context) (Coordinator, func(), error)
	co      Coordinator
	release func()
}

// NewLocal returns a client bound to a Master running in this process. The
// caller owns the Master's lifecycle.
func NewLocal(m *master.Master, opts ...Option) *Client {
	c := &Client{}
	c.cfg.Init(opts...)
	c.connect = func(context.Context) (Coordinator, func(), error) {
		return Local{m}, func() {}, nil
	}
	return c
}

// NewClient returns a client for the coordinator at addr.
func NewClient(addr types.Addr, opts ...Option) *Client {
	c := &Client{}
	c.cfg.Init(opts...)
	c.connect = func(ctx context.Context) (Coordinator, func(), error) {
		r := NewRemoteCoordinator(addr, opts...)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, nil, fmt.Errorf("connect %v: %w", addr, err)
		}
		return r, r.Close, nil
	}
	return c
}

// Connect establishes the session. Connecting twice is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.co != nil {
		return nil
	}
	co, release, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.co, c.release = co, release
	return nil
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.co == nil {
		return
	}
	c.release()
	c.co, c.release = nil, nil
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.co != nil
}

func (c *Client) coordinator() (Coordinator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.co == nil {
		return nil, types.ErrNotConnected
	}
	return c.co, nil
}

// UploadFile creates remote from the contents of a local file.
func (c *Client) UploadFile(ctx context.Context, local string, remote types.Path) (master.CreateReport, error) {
	data, err := os.ReadFile(local)
	if err != nil {
		return master.CreateReport{}, err
	}
	return c.WriteData(ctx, remote, data)
}

// DownloadFile writes remote to a local file, creating parent directories.
func (c *Client) DownloadFile(ctx context.Context, remote types.Path, local string) error {
	data, err := c.ReadData(ctx, remote)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(local); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(local, data, 0o644)
}

// WriteData creates a new file holding data.
func (c *Client) WriteData(ctx context.Context, path types.Path, data []byte) (rep master.CreateReport, err error) {
	c.cfg.trace.start("write", path)
	defer func() { c.cfg.trace.done("write", err) }()
	co, err := c.coordinator()
	if err != nil {
		return rep, err
	}
	rep, err = co.CreateFile(ctx, path, data)
	if err == nil {
		c.cfg.trace.transfer("write", path, len(data))
		if rep.UnderReplicated > 0 {
			common.LWarn("<Client> %v stored with %d under-replicated chunks", path, rep.UnderReplicated)
		}
	}
	return rep, err
}

func (c *Client) ReadData(ctx context.Context, path types.Path) (data []byte, err error) {
	c.cfg.trace.start("read", path)
	defer func() { c.cfg.trace.done("read", err) }()
	co, err := c.coordinator()
	if err != nil {
		return nil, err
	}
	data, err = co.ReadFile(ctx, path)
	if err == nil {
		c.cfg.trace.transfer("read", path, len(data))
	}
	return data, err
}

// AppendData rewrites the whole file with data appended. It costs a full
// read and write of the file.
func (c *Client) AppendData(ctx context.Context, path types.Path, data []byte) (rep master.CreateReport, err error) {
	c.cfg.trace.start("append", path)
	defer func() { c.cfg.trace.done("append", err) }()
	co, err := c.coordinator()
	if err != nil {
		return rep, err
	}
	old, err := co.ReadFile(ctx, path)
	if err != nil {
		return rep, err
	}
	buf := make([]byte, 0, len(old)+len(data))
	buf = append(append(buf, old...), data...)
	rep, err = co.UpdateFile(ctx, path, buf)
	if err == nil {
		c.cfg.trace.transfer("append", path, len(data))
	}
	return rep, err
}

func (c *Client) DeleteFile(ctx context.Context, path types.Path) error {
	co, err := c.coordinator()
	if err != nil {
		return err
	}
	return co.DeleteFile(ctx, path)
}

// CopyFile reads src and creates dst with the same bytes.
func (c *Client) CopyFile(ctx context.Context, src, dst types.Path) (master.CreateReport, error) {
	data, err := c.ReadData(ctx, src)
	if err != nil {
		return master.CreateReport{}, err
	}
	return c.WriteData(ctx, dst, data)
}

// MoveFile copies src to dst and then deletes src. If the delete fails both
// paths exist.
func (c *Client) MoveFile(ctx context.Context, src, dst types.Path) error {
	if _, err := c.CopyFile(ctx, src, dst); err != nil {
		return err
	}
	if err := c.DeleteFile(ctx, src); err != nil {
		return fmt.Errorf("move %v: copied to %v but delete failed: %w", src, dst, err)
	}
	return nil
}

func (c *Client) ListDirectory(ctx context.Context, dir types.Path) ([]types.Path, error) {
	co, err := c.coordinator()
	if err != nil {
		return nil, err
	}
	return co.ListFiles(ctx, dir)
}

func (c *Client) CreateDirectory(ctx context.Context, dir types.Path) error {
	co, err := c.coordinator()
	if err != nil {
		return err
	}
	return co.CreateDirectory(ctx, dir)
}

// DeleteDirectory removes every file under dir and returns how many.
func (c *Client) DeleteDirectory(ctx context.Context, dir types.Path) (int, error) {
	co, err := c.coordinator()
	if err != nil {
		return 0, err
	}
	return co.DeleteDirectory(ctx, dir)
}

func (c *Client) GetFileInfo(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	co, err := c.coordinator()
	if err != nil {
		return types.FileMetadata{}, err
	}
	return co.GetFileInfo(ctx, path)
}

// FileExists is false when the client is not connected.
func (c *Client) FileExists(ctx context.Context, path types.Path) bool {
	co, err := c.coordinator()
	if err != nil {
		return false
	}
	return co.FileExists(ctx, path)
}

func (c *Client) AllMetadata(ctx context.Context) ([]types.FileMetadata, error) {
	co, err := c.coordinator()
	if err != nil {
		return nil, err
	}
	return co.AllMetadata(ctx)
}

func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	co, err := c.coordinator()
	if err != nil {
		return types.Stats{}, err
	}
	return co.Stats(ctx)
}

func (c *Client) CollectGarbage(ctx context.Context) (int, error) {
	co, err := c.coordinator()
	if err != nil {
		return 0, err
	}
	return co.CollectGarbage(ctx)
}

func (c *Client) Nodes(ctx context.Context, activeOnly bool) ([]types.StorageNodeInfo, error) {
	co, err := c.coordinator()
	if err != nil {
		return nil, err
	}
	return co.ListNodes(ctx, activeOnly)
}
