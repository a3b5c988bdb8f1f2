package chunkrpc

import (
	"bytes"
	"context"
	"net"
	"sort"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"
)

type memServer struct {
	mu     sync.Mutex
	chunks map[string]ChunkRecord
}

func (s *memServer) PutChunk(ctx context.Context, in *PutChunkRequest) (*PutChunkReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[in.ChunkID] = ChunkRecord{Data: in.Data, Checksum: in.Checksum}
	return &PutChunkReply{Used: int64(len(s.chunks))}, nil
}

func (s *memServer) GetChunk(ctx context.Context, in *GetChunkRequest) (*GetChunkReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chunks[in.ChunkID]
	if !ok {
		return nil, status.Error(codes.NotFound, in.ChunkID)
	}
	return &GetChunkReply{Data: rec.Data, Checksum: rec.Checksum}, nil
}

func (s *memServer) DeleteChunk(ctx context.Context, in *DeleteChunkRequest) (*DeleteChunkReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[in.ChunkID]
	delete(s.chunks, in.ChunkID)
	return &DeleteChunkReply{Existed: ok}, nil
}

func (s *memServer) ListChunks(ctx context.Context, in *ListChunksRequest) (*ListChunksReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &ListChunksReply{}
	for id := range s.chunks {
		out.ChunkIDs = append(out.ChunkIDs, id)
	}
	sort.Strings(out.ChunkIDs)
	return out, nil
}

func (s *memServer) Stat(ctx context.Context, in *StatRequest) (*StatReply, error) {
	return &StatReply{NodeID: "n1", Capacity: 1 << 40, Used: 7, Chunks: int64(len(s.chunks))}, nil
}

func startBufServer(t *testing.T) *Pool {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(ServerOptions()...)
	RegisterChunkServer(srv, &memServer{chunks: map[string]ChunkRecord{}})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	pool := NewPool(
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestChunkServiceOverGrpc(t *testing.T) {
	pool := startBufServer(t)
	cli, err := pool.Client("bufnet")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	payload := []byte{0, 1, 2, 255, 0}
	if _, err := cli.PutChunk(ctx, &PutChunkRequest{ChunkID: "c1", Data: payload, Checksum: "crc32:x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.PutChunk(ctx, &PutChunkRequest{ChunkID: "c2"}); err != nil {
		t.Fatal(err)
	}
	got, err := cli.GetChunk(ctx, &GetChunkRequest{ChunkID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, payload) || got.Checksum != "crc32:x" {
		t.Fatalf("got %+v", got)
	}
	empty, err := cli.GetChunk(ctx, &GetChunkRequest{ChunkID: "c2"})
	if err != nil || len(empty.Data) != 0 {
		t.Fatalf("empty chunk: %+v %v", empty, err)
	}

	_, err = cli.GetChunk(ctx, &GetChunkRequest{ChunkID: "missing"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("missing chunk: %v", err)
	}

	list, err := cli.ListChunks(ctx, &ListChunksRequest{})
	if err != nil || len(list.ChunkIDs) != 2 || list.ChunkIDs[0] != "c1" {
		t.Fatalf("list %+v %v", list, err)
	}
	del, err := cli.DeleteChunk(ctx, &DeleteChunkRequest{ChunkID: "c1"})
	if err != nil || !del.Existed {
		t.Fatalf("delete %+v %v", del, err)
	}
	del, _ = cli.DeleteChunk(ctx, &DeleteChunkRequest{ChunkID: "c1"})
	if del.Existed {
		t.Fatal("second delete reported existing chunk")
	}
	st, err := cli.Stat(ctx, &StatRequest{})
	if err != nil || st.NodeID != "n1" || st.Capacity != 1<<40 || st.Used != 7 || st.Chunks != 1 {
		t.Fatalf("stat %+v %v", st, err)
	}
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	b := (&GetChunkRequest{ChunkID: "c9"}).MarshalWire()
	b = protowire.AppendTag(b, 15, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	var m GetChunkRequest
	if err := m.UnmarshalWire(b); err != nil {
		t.Fatal(err)
	}
	if m.ChunkID != "c9" {
		t.Fatalf("got %+v", m)
	}
	if err := m.UnmarshalWire([]byte{0x0a, 0x05, 'a'}); err == nil {
		t.Fatal("truncated message decoded")
	}
}
