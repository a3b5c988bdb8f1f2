package master

import (
	"bytes"
	"context"
	"dfs/internal/chunkstore"
	"dfs/internal/common"
	"dfs/internal/meta"
	"dfs/internal/types"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMaster(t *testing.T, chunkSize int64, rf int, nodes int) (*Master, *chunkstore.Memory) {
	t.Helper()
	reg := NewRegistry(30*time.Second, 10*time.Second)
	cs := chunkstore.NewMemory(true)
	m := New(Config{ChunkSize: chunkSize, ReplicationFactor: rf}, reg, meta.NewMemory(), cs)
	for i := 0; i < nodes; i++ {
		m.RegisterNode(types.StorageNodeInfo{
			NodeID:   fmt.Sprintf("node%d", i),
			Address:  "127.0.0.1",
			Port:     9000 + i,
			Capacity: 1 << 30,
		})
	}
	t.Cleanup(m.Stop)
	return m, cs
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 7, 2, 3)
	inputs := [][]byte{
		{},
		[]byte("x"),
		[]byte("exactly14bytes"),
		bytes.Repeat([]byte("abc"), 100),
	}
	for i, b := range inputs {
		p := types.Path(fmt.Sprintf("/rt/%d", i))
		rep, err := m.CreateFile(ctx, p, b)
		if err != nil {
			t.Fatal(err)
		}
		if rep.FileID == "" {
			t.Fatal("empty file id")
		}
		got, err := m.ReadFile(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, b) {
			t.Fatalf("round trip of %d bytes returned %d bytes", len(b), len(got))
		}
		info, _ := m.GetFileInfo(ctx, p)
		want := (len(b) + 6) / 7
		if info.NumChunks != want || len(info.Chunks) != want {
			t.Fatalf("%d bytes: %d chunks, want %d", len(b), info.NumChunks, want)
		}
		for idx, ck := range info.Chunks {
			if ck.ChunkIndex != idx {
				t.Fatalf("chunk %d has index %d", idx, ck.ChunkIndex)
			}
		}
	}
}

func TestScenarioChunkLayout(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 10, 2, 3)
	data := []byte("abcdefghijklmnopqrstuvwxy")
	if _, err := m.CreateFile(ctx, "/a.bin", data); err != nil {
		t.Fatal(err)
	}
	info, err := m.GetFileInfo(ctx, "/a.bin")
	if err != nil {
		t.Fatal(err)
	}
	if info.NumChunks != 3 || info.TotalSize != 25 {
		t.Fatalf("unexpected layout %+v", info)
	}
	for i, size := range []int64{10, 10, 5} {
		if info.Chunks[i].Size != size {
			t.Fatalf("chunk %d size %d want %d", i, info.Chunks[i].Size, size)
		}
		if len(info.Chunks[i].ReplicaNodes) != 2 {
			t.Fatalf("chunk %d replicas %v", i, info.Chunks[i].ReplicaNodes)
		}
	}
	got, _ := m.ReadFile(ctx, "/a.bin")
	if string(got) != string(data) {
		t.Fatalf("read %q", got)
	}
}

func TestScenarioUnderReplicated(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 3, 1)
	rep, err := m.CreateFile(ctx, "/u", []byte("0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	if rep.UnderReplicated != 3 {
		t.Fatalf("under-replicated %d", rep.UnderReplicated)
	}
	info, _ := m.GetFileInfo(ctx, "/u")
	for _, ck := range info.Chunks {
		if len(ck.ReplicaNodes) != 1 || ck.ReplicaNodes[0] != "node0" {
			t.Fatalf("replicas %v", ck.ReplicaNodes)
		}
	}
}

func TestScenarioListPrefix(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 1, 1)
	m.CreateFile(ctx, "/docs/a.txt", []byte("a"))
	m.CreateFile(ctx, "/other/b.txt", []byte("b"))
	paths, err := m.ListFiles(ctx, "/docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "/docs/a.txt" {
		t.Fatalf("list %v", paths)
	}
	all, _ := m.ListFiles(ctx, "")
	if len(all) != 2 {
		t.Fatalf("list all %v", all)
	}
}

func TestUniqueness(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 1, 1)
	if _, err := m.CreateFile(ctx, "docs/a.txt/", []byte("original")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateFile(ctx, "/docs/a.txt", []byte("other")); !errors.Is(err, types.ErrAlreadyExists) {
		t.Fatalf("duplicate create: %v", err)
	}
	got, _ := m.ReadFile(ctx, "/docs/a.txt")
	if string(got) != "original" {
		t.Fatalf("content changed to %q", got)
	}
	if _, err := m.CreateFile(ctx, "/", []byte("x")); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("create at root: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	m, cs := newTestMaster(t, 4, 1, 1)
	first, _ := m.CreateFile(ctx, "/f", []byte("first version"))
	before := cs.Len()

	rep, err := m.UpdateFile(ctx, "/f", []byte("v2"))
	if err != nil {
		t.Fatal(err)
	}
	if rep.FileID == first.FileID {
		t.Fatal("update kept the old file id")
	}
	got, _ := m.ReadFile(ctx, "/f")
	if string(got) != "v2" {
		t.Fatalf("read %q", got)
	}
	info, _ := m.GetFileInfo(ctx, "/f")
	if info.ModifiedAt.Before(info.CreatedAt) {
		t.Fatal("modified before created")
	}
	if cs.Len() != 1 || before != 4 {
		t.Fatalf("old chunks not released: %d -> %d", before, cs.Len())
	}
	if _, err := m.UpdateFile(ctx, "/missing", []byte("x")); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
	if m.FileExists(ctx, "/missing") {
		t.Fatal("update created a missing file")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m, cs := newTestMaster(t, 4, 1, 1)
	if err := m.DeleteFile(ctx, "/nope"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
	m.CreateFile(ctx, "/f", []byte("0123456789"))
	if err := m.DeleteFile(ctx, "/f"); err != nil {
		t.Fatal(err)
	}
	if m.FileExists(ctx, "/f") {
		t.Fatal("file still exists")
	}
	if err := m.DeleteFile(ctx, "/f"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := m.ReadFile(ctx, "/f"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("read deleted: %v", err)
	}
	if cs.Len() != 0 {
		t.Fatalf("%d chunks left", cs.Len())
	}
}

func TestDirectories(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 1, 1)
	if err := m.CreateDirectory(ctx, "/empty"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []types.Path{"/docs/a", "/docs/sub/b", "/docs2/c", "/x"} {
		m.CreateFile(ctx, p, []byte("data"))
	}
	n, err := m.DeleteDirectory(ctx, "/docs/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("removed %d", n)
	}
	left, _ := m.ListFiles(ctx, "/")
	if len(left) != 2 || left[0] != "/docs2/c" || left[1] != "/x" {
		t.Fatalf("left %v", left)
	}
}

func TestPlacementBound(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 2, 2, 4)
	m.CreateFile(ctx, "/p", bytes.Repeat([]byte("z"), 41))
	info, _ := m.GetFileInfo(ctx, "/p")
	seen := map[string]int{}
	for _, ck := range info.Chunks {
		if len(ck.ReplicaNodes) != 2 {
			t.Fatalf("replicas %v", ck.ReplicaNodes)
		}
		if ck.ReplicaNodes[0] == ck.ReplicaNodes[1] {
			t.Fatal("duplicate replica")
		}
		for _, n := range ck.ReplicaNodes {
			seen[n]++
		}
	}
	// usage charging spreads chunks over every node
	if len(seen) != 4 {
		t.Fatalf("placement %v", seen)
	}
}

func TestNoLiveNodes(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 3, 0)
	rep, err := m.CreateFile(ctx, "/lonely", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if rep.UnderReplicated != 2 {
		t.Fatalf("under-replicated %d", rep.UnderReplicated)
	}
	got, err := m.ReadFile(ctx, "/lonely")
	if err != nil || string(got) != "hello" {
		t.Fatalf("read %q %v", got, err)
	}
}

func TestChunkUnavailable(t *testing.T) {
	ctx := context.Background()
	m, cs := newTestMaster(t, 4, 1, 1)
	m.CreateFile(ctx, "/c", []byte("12345678"))
	info, _ := m.GetFileInfo(ctx, "/c")
	cs.Corrupt(info.Chunks[1].ChunkID, []byte("xxxx"))
	if _, err := m.ReadFile(ctx, "/c"); !errors.Is(err, types.ErrChunkUnavailable) {
		t.Fatalf("read corrupt: %v", err)
	}
}

type failingStore struct {
	*chunkstore.Memory
	failAt int
	puts   int
}

func (f *failingStore) Put(ctx context.Context, c types.ChunkData, replicas []string) ([]string, error) {
	f.puts++
	if f.puts == f.failAt {
		return nil, types.ErrChunkUnavailable
	}
	return f.Memory.Put(ctx, c, replicas)
}

func TestCreateRollsBack(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Memory: chunkstore.NewMemory(true), failAt: 3}
	m := New(Config{ChunkSize: 2, ReplicationFactor: 1}, NewRegistry(time.Minute, time.Second), meta.NewMemory(), fs)
	t.Cleanup(m.Stop)

	_, err := m.CreateFile(ctx, "/r", []byte("0123456789"))
	if !errors.Is(err, types.ErrChunkUnavailable) {
		t.Fatalf("create: %v", err)
	}
	if m.FileExists(ctx, "/r") {
		t.Fatal("failed create left metadata")
	}
	if fs.Len() != 0 {
		t.Fatalf("%d chunks left after rollback", fs.Len())
	}
	if len(m.staged.Items()) != 0 {
		t.Fatal("staged ids left after rollback")
	}
}

func TestCreateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, cs := newTestMaster(t, 2, 1, 1)
	if _, err := m.CreateFile(ctx, "/c", []byte("0123")); !errors.Is(err, context.Canceled) {
		t.Fatalf("create: %v", err)
	}
	if cs.Len() != 0 {
		t.Fatal("cancelled create stored chunks")
	}
}

func TestCollectGarbage(t *testing.T) {
	ctx := context.Background()
	m, cs := newTestMaster(t, 4, 1, 1)
	m.CreateFile(ctx, "/keep", []byte("keep me"))
	cs.Put(ctx, types.ChunkData{ChunkID: "orphan"}, nil)
	cs.Put(ctx, types.ChunkData{ChunkID: "inflight"}, nil)
	m.stage("inflight")

	n, err := m.CollectGarbage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reclaimed %d", n)
	}
	held, _ := cs.List(ctx)
	if _, ok := held["orphan"]; ok {
		t.Fatal("orphan survived")
	}
	if _, ok := held["inflight"]; !ok {
		t.Fatal("staged chunk collected")
	}
	if got, _ := m.ReadFile(ctx, "/keep"); string(got) != "keep me" {
		t.Fatal("live file damaged by gc")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 1, 2)
	m.CreateFile(ctx, "/a", []byte("12345"))
	m.CreateFile(ctx, "/b", []byte("123"))
	st, err := m.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalFiles != 2 || st.TotalSize != 8 || st.TotalNodes != 2 || st.ActiveNodes != 2 {
		t.Fatalf("stats %+v", st)
	}
}

func TestConfigChangesKeepExistingFiles(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 1, 1)
	m.CreateFile(ctx, "/old", []byte("12345678"))
	if err := m.SetChunkSize(0); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatal("zero chunk size accepted")
	}
	if err := m.SetChunkSize(common.MaxChunkSize + 1); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatal("oversized chunk size accepted")
	}
	m.SetChunkSize(8)
	m.SetReplicationFactor(2)
	m.CreateFile(ctx, "/new", []byte("12345678"))
	old, _ := m.GetFileInfo(ctx, "/old")
	nw, _ := m.GetFileInfo(ctx, "/new")
	if old.ChunkSize != 4 || old.NumChunks != 2 || old.ReplicationFactor != 1 {
		t.Fatalf("old file rewritten %+v", old)
	}
	if nw.ChunkSize != 8 || nw.NumChunks != 1 || nw.ReplicationFactor != 2 {
		t.Fatalf("new file %+v", nw)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	snap := filepath.Join(t.TempDir(), "ns.snap")
	cs := chunkstore.NewMemory(true)
	m := New(Config{ChunkSize: 4, ReplicationFactor: 1, SnapshotPath: snap}, NewRegistry(time.Minute, time.Second), meta.NewMemory(), cs)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	m.CreateFile(ctx, "/persist", []byte("survives restart"))
	m.Stop()

	m2 := New(Config{ChunkSize: 4, ReplicationFactor: 1, SnapshotPath: snap}, NewRegistry(time.Minute, time.Second), meta.NewMemory(), cs)
	if err := m2.Start(); err != nil {
		t.Fatal(err)
	}
	defer m2.Stop()
	got, err := m2.ReadFile(ctx, "/persist")
	if err != nil || string(got) != "survives restart" {
		t.Fatalf("read after restore %q %v", got, err)
	}
}

func TestConcurrentCreateSamePath(t *testing.T) {
	ctx := context.Background()
	m, cs := newTestMaster(t, 4, 2, 3)
	const writers = 16
	var (
		wg         sync.WaitGroup
		wins, dups atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.CreateFile(ctx, "/race", []byte(fmt.Sprintf("writer %02d", i)))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, types.ErrAlreadyExists):
				dups.Add(1)
			default:
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 || dups.Load() != writers-1 {
		t.Fatalf("%d winners %d duplicates", wins.Load(), dups.Load())
	}
	info, err := m.GetFileInfo(ctx, "/race")
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadFile(ctx, "/race")
	if err != nil || len(got) != 9 {
		t.Fatalf("read %q %v", got, err)
	}
	// losers roll their chunks back
	if cs.Len() != info.NumChunks {
		t.Fatalf("%d chunks stored for %d referenced", cs.Len(), info.NumChunks)
	}
}

func TestReadDuringUpdate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaster(t, 4, 2, 3)
	versions := [][]byte{
		bytes.Repeat([]byte("a"), 37),
		bytes.Repeat([]byte("b"), 23),
	}
	if _, err := m.CreateFile(ctx, "/swap", versions[0]); err != nil {
		t.Fatal(err)
	}
	var (
		wg    sync.WaitGroup
		stop  = make(chan struct{})
		reads atomic.Int32
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := m.ReadFile(ctx, "/swap")
				if err != nil {
					t.Errorf("read during update: %v", err)
					return
				}
				if !bytes.Equal(got, versions[0]) && !bytes.Equal(got, versions[1]) {
					t.Errorf("torn read %q", got)
					return
				}
				reads.Add(1)
			}
		}()
	}
	for i := 1; i <= 50; i++ {
		if _, err := m.UpdateFile(ctx, "/swap", versions[i%2]); err != nil {
			t.Errorf("update %d: %v", i, err)
			break
		}
	}
	close(stop)
	wg.Wait()
	t.Logf("%d reads during 50 updates", reads.Load())
	if got, _ := m.ReadFile(ctx, "/swap"); !bytes.Equal(got, versions[0]) {
		t.Fatalf("final content %q", got)
	}
}

// swapOnRead runs swap once, from inside the first chunk read.
type swapOnRead struct {
	*chunkstore.Memory
	once sync.Once
	swap func()
}

func (s *swapOnRead) Get(ctx context.Context, ref types.FileChunk) ([]byte, error) {
	s.once.Do(s.swap)
	return s.Memory.Get(ctx, ref)
}

func TestReadRestartsAfterSwap(t *testing.T) {
	ctx := context.Background()
	store := &swapOnRead{Memory: chunkstore.NewMemory(true)}
	m := New(Config{ChunkSize: 4, ReplicationFactor: 1}, NewRegistry(30*time.Second, 10*time.Second), meta.NewMemory(), store)
	m.RegisterNode(types.StorageNodeInfo{NodeID: "node0", Address: "127.0.0.1", Port: 9000, Capacity: 1 << 20})
	t.Cleanup(m.Stop)
	if _, err := m.CreateFile(ctx, "/f", []byte("old content")); err != nil {
		t.Fatal(err)
	}
	store.swap = func() {
		if _, err := m.UpdateFile(ctx, "/f", []byte("new content")); err != nil {
			t.Error(err)
		}
	}
	got, err := m.ReadFile(ctx, "/f")
	if err != nil || string(got) != "new content" {
		t.Fatalf("read %q %v", got, err)
	}
}
