package chunkstore

import (
	"bytes"
	"context"
	"dfs/internal/chunk"
	"dfs/internal/chunkrpc"
	"dfs/internal/types"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeNode struct {
	mu      sync.Mutex
	chunks  map[string]chunkrpc.ChunkRecord
	down    bool
	failPut int
	puts    int
}

func newFakeNode() *fakeNode {
	return &fakeNode{chunks: make(map[string]chunkrpc.ChunkRecord)}
}

func (n *fakeNode) PutChunk(ctx context.Context, in *chunkrpc.PutChunkRequest) (*chunkrpc.PutChunkReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.puts++
	if n.down {
		return nil, status.Error(codes.Unavailable, "down")
	}
	if n.failPut > 0 {
		n.failPut--
		return nil, status.Error(codes.Unavailable, "flaky")
	}
	n.chunks[in.ChunkID] = chunkrpc.ChunkRecord{Data: append([]byte(nil), in.Data...), Checksum: in.Checksum}
	return &chunkrpc.PutChunkReply{Used: int64(len(in.Data))}, nil
}

func (n *fakeNode) GetChunk(ctx context.Context, in *chunkrpc.GetChunkRequest) (*chunkrpc.GetChunkReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return nil, status.Error(codes.Unavailable, "down")
	}
	rec, ok := n.chunks[in.ChunkID]
	if !ok {
		return nil, status.Error(codes.NotFound, in.ChunkID)
	}
	return &chunkrpc.GetChunkReply{Data: rec.Data, Checksum: rec.Checksum}, nil
}

func (n *fakeNode) DeleteChunk(ctx context.Context, in *chunkrpc.DeleteChunkRequest) (*chunkrpc.DeleteChunkReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return nil, status.Error(codes.Unavailable, "down")
	}
	_, ok := n.chunks[in.ChunkID]
	delete(n.chunks, in.ChunkID)
	return &chunkrpc.DeleteChunkReply{Existed: ok}, nil
}

func (n *fakeNode) ListChunks(ctx context.Context, in *chunkrpc.ListChunksRequest) (*chunkrpc.ListChunksReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return nil, status.Error(codes.Unavailable, "down")
	}
	out := &chunkrpc.ListChunksReply{}
	for id := range n.chunks {
		out.ChunkIDs = append(out.ChunkIDs, id)
	}
	return out, nil
}

type cluster map[string]*fakeNode

func (c cluster) Lookup(id string) (types.StorageNodeInfo, bool) {
	if _, ok := c[id]; !ok {
		return types.StorageNodeInfo{}, false
	}
	return types.StorageNodeInfo{NodeID: id, Address: id}, true
}

func (c cluster) Nodes() []types.StorageNodeInfo {
	var out []types.StorageNodeInfo
	for id := range c {
		out = append(out, types.StorageNodeInfo{NodeID: id, Address: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

func (c cluster) dial(addr types.Addr) (NodeClient, error) {
	return c[string(addr)], nil
}

func newCluster(ids ...string) cluster {
	c := cluster{}
	for _, id := range ids {
		c[id] = newFakeNode()
	}
	return c
}

func testChunk(id string, data []byte) types.ChunkData {
	return types.ChunkData{ChunkID: id, Data: data, Checksum: chunk.Checksum(chunk.CRC32, data)}
}

func fastCfg(d Durability) ReplicatedConfig {
	return ReplicatedConfig{Durability: d, Timeout: time.Second, Retry: 1, Backoff: time.Millisecond}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(true)
	c := testChunk("c1", []byte("hello"))
	got, err := m.Put(ctx, c, []string{"n1", "n2"})
	if err != nil || len(got) != 2 {
		t.Fatalf("put %v %v", got, err)
	}
	ref := types.FileChunk{ChunkID: "c1", Checksum: c.Checksum, ReplicaNodes: got}
	data, err := m.Get(ctx, ref)
	if err != nil || string(data) != "hello" {
		t.Fatalf("get %q %v", data, err)
	}
	data[0] = 'X'
	if again, _ := m.Get(ctx, ref); string(again) != "hello" {
		t.Fatal("store returned shared buffer")
	}

	m.Corrupt("c1", []byte("hellx"))
	if _, err := m.Get(ctx, ref); !errors.Is(err, types.ErrChunkUnavailable) {
		t.Fatalf("strict get of corrupt chunk: %v", err)
	}

	list, _ := m.List(ctx)
	if len(list["c1"]) != 2 {
		t.Fatalf("list %v", list)
	}
	m.Delete(ctx, ref)
	if _, err := m.Get(ctx, ref); !errors.Is(err, types.ErrChunkUnavailable) {
		t.Fatalf("get deleted: %v", err)
	}
	if m.Len() != 0 {
		t.Fatal("chunk survived delete")
	}
}

func TestMemoryLenientRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(false)
	c := testChunk("c1", []byte("hello"))
	m.Put(ctx, c, nil)
	m.Corrupt("c1", []byte("jello"))
	data, err := m.Get(ctx, types.FileChunk{ChunkID: "c1", Checksum: c.Checksum})
	if err != nil || string(data) != "jello" {
		t.Fatalf("lenient get %q %v", data, err)
	}
}

func TestReplicatedRoundTrip(t *testing.T) {
	ctx := context.Background()
	cl := newCluster("n1", "n2", "n3")
	r := NewReplicated(fastCfg(DurabilityAll), cl, cl.dial)

	c := testChunk("c1", []byte("payload"))
	got, err := r.Put(ctx, c, []string{"n1", "n2", "n3"})
	if err != nil || len(got) != 3 {
		t.Fatalf("put %v %v", got, err)
	}
	for id, n := range cl {
		if _, ok := n.chunks["c1"]; !ok {
			t.Fatalf("%v missing chunk", id)
		}
	}
	ref := types.FileChunk{ChunkID: "c1", Checksum: c.Checksum, ReplicaNodes: got}
	data, err := r.Get(ctx, ref)
	if err != nil || !bytes.Equal(data, c.Data) {
		t.Fatalf("get %q %v", data, err)
	}

	list, err := r.List(ctx)
	if err != nil || len(list["c1"]) != 3 {
		t.Fatalf("list %v %v", list, err)
	}
	if err := r.Delete(ctx, ref); err != nil {
		t.Fatal(err)
	}
	for _, n := range cl {
		if len(n.chunks) != 0 {
			t.Fatal("chunk survived delete")
		}
	}
}

func TestReplicatedDurability(t *testing.T) {
	ctx := context.Background()
	replicas := []string{"n1", "n2", "n3"}

	cases := []struct {
		d    Durability
		down []string
		ok   bool
	}{
		{DurabilityOne, []string{"n1", "n2"}, true},
		{DurabilityOne, []string{"n1", "n2", "n3"}, false},
		{DurabilityMajority, []string{"n1"}, true},
		{DurabilityMajority, []string{"n1", "n2"}, false},
		{DurabilityAll, nil, true},
		{DurabilityAll, []string{"n3"}, false},
	}
	for _, c := range cases {
		cl := newCluster(replicas...)
		for _, id := range c.down {
			cl[id].down = true
		}
		r := NewReplicated(fastCfg(c.d), cl, cl.dial)
		got, err := r.Put(ctx, testChunk("c", []byte("x")), replicas)
		if (err == nil) != c.ok {
			t.Fatalf("%v with %v down: err %v", c.d, c.down, err)
		}
		if len(got) != len(replicas)-len(c.down) {
			t.Fatalf("%v accepted %v", c.d, got)
		}
		if err != nil && !errors.Is(err, types.ErrChunkUnavailable) {
			t.Fatalf("unexpected error kind %v", err)
		}
	}
}

func TestReplicatedRetry(t *testing.T) {
	cl := newCluster("n1")
	cl["n1"].failPut = 1
	r := NewReplicated(fastCfg(DurabilityAll), cl, cl.dial)
	if _, err := r.Put(context.Background(), testChunk("c", []byte("x")), []string{"n1"}); err != nil {
		t.Fatal(err)
	}
	if cl["n1"].puts != 2 {
		t.Fatalf("expected one retry, got %d puts", cl["n1"].puts)
	}
}

func TestReplicatedNoReplicas(t *testing.T) {
	r := NewReplicated(fastCfg(DurabilityOne), cluster{}, cluster{}.dial)
	if _, err := r.Put(context.Background(), testChunk("c", nil), nil); !errors.Is(err, types.ErrOutOfReplicas) {
		t.Fatalf("got %v", err)
	}
}

func TestReplicatedReadFallsBack(t *testing.T) {
	ctx := context.Background()
	cl := newCluster("n1", "n2", "n3")
	r := NewReplicated(fastCfg(DurabilityAll), cl, cl.dial)
	c := testChunk("c1", []byte("good"))
	replicas, _ := r.Put(ctx, c, []string{"n1", "n2", "n3"})

	cl["n1"].down = true
	cl["n2"].chunks["c1"] = chunkrpc.ChunkRecord{Data: []byte("evil"), Checksum: c.Checksum}
	ref := types.FileChunk{ChunkID: "c1", Checksum: c.Checksum, ReplicaNodes: replicas}
	data, err := r.Get(ctx, ref)
	if err != nil || string(data) != "good" {
		t.Fatalf("get %q %v", data, err)
	}

	cl["n3"].down = true
	strict := NewReplicated(ReplicatedConfig{Timeout: time.Second, Strict: true}, cl, cl.dial)
	if _, err := strict.Get(ctx, ref); !errors.Is(err, types.ErrChunkUnavailable) {
		t.Fatalf("strict get with only a corrupt copy: %v", err)
	}
	lenient := NewReplicated(ReplicatedConfig{Timeout: time.Second}, cl, cl.dial)
	if data, err := lenient.Get(ctx, ref); err != nil || string(data) != "evil" {
		t.Fatalf("lenient get %q %v", data, err)
	}

	cl["n2"].down = true
	if _, err := lenient.Get(ctx, ref); !errors.Is(err, types.ErrChunkUnavailable) {
		t.Fatalf("get with every replica down: %v", err)
	}
}

func TestReplicatedListSkipsDownNodes(t *testing.T) {
	ctx := context.Background()
	cl := newCluster("n1", "n2")
	r := NewReplicated(fastCfg(DurabilityOne), cl, cl.dial)
	r.Put(ctx, testChunk("a", []byte("a")), []string{"n1", "n2"})
	cl["n2"].down = true
	list, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list["a"]) != 1 || list["a"][0] != "n1" {
		t.Fatalf("list %v", list)
	}
}

func TestParseDurability(t *testing.T) {
	for in, want := range map[string]Durability{"": DurabilityOne, "one": DurabilityOne, "majority": DurabilityMajority, "ALL": DurabilityAll} {
		got, err := ParseDurability(in)
		if err != nil || got != want {
			t.Fatalf("ParseDurability(%q) = %v %v", in, got, err)
		}
	}
	if _, err := ParseDurability("some"); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatal("bad durability accepted")
	}
}

func TestPickers(t *testing.T) {
	replicas := []string{"a", "b", "c"}
	if got := UsePicker("ordered").Order(replicas); got[0] != "a" || got[2] != "c" {
		t.Fatalf("ordered %v", got)
	}
	if UsePicker("nope").Tag() != PickerDefaultTag {
		t.Fatal("unknown picker should fall back to default")
	}
	rr := &roundRobinPicker{}
	first, second := rr.Order(replicas), rr.Order(replicas)
	if first[0] != "a" || second[0] != "b" || len(second) != 3 {
		t.Fatalf("roundrobin %v %v", first, second)
	}
	shuffled := UsePicker("random").Order(replicas)
	sort.Strings(shuffled)
	if len(shuffled) != 3 || shuffled[0] != "a" || shuffled[2] != "c" {
		t.Fatalf("random lost replicas %v", shuffled)
	}
}
