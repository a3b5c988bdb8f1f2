package storagenode

import (
	"context"
	"dfs/internal/chunkrpc"
	"dfs/internal/common"
	"dfs/internal/types"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// chunkService serves the chunk RPCs out of a Store.
type chunkService struct {
	nodeID string
	store  *Store
}

// toStatus maps store errors onto grpc codes the coordinator's retry policy
// understands.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrNoSpace):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, types.ErrChecksumMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, types.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *chunkService) PutChunk(ctx context.Context, in *chunkrpc.PutChunkRequest) (*chunkrpc.PutChunkReply, error) {
	if err := s.store.StoreChunk(in.ChunkID, in.Data, in.Checksum); err != nil {
		common.LWarn("<Node %v> put chunk %v: %v", s.nodeID, in.ChunkID, err)
		return nil, toStatus(err)
	}
	common.LTrace("<Node %v> stored chunk %v (%v bytes)", s.nodeID, in.ChunkID, len(in.Data))
	return &chunkrpc.PutChunkReply{Used: s.store.UsedSpace()}, nil
}

func (s *chunkService) GetChunk(ctx context.Context, in *chunkrpc.GetChunkRequest) (*chunkrpc.GetChunkReply, error) {
	data, sum, err := s.store.RetrieveChunk(in.ChunkID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chunkrpc.GetChunkReply{Data: data, Checksum: sum}, nil
}

func (s *chunkService) DeleteChunk(ctx context.Context, in *chunkrpc.DeleteChunkRequest) (*chunkrpc.DeleteChunkReply, error) {
	existed, err := s.store.DeleteChunk(in.ChunkID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chunkrpc.DeleteChunkReply{Existed: existed}, nil
}

func (s *chunkService) ListChunks(ctx context.Context, in *chunkrpc.ListChunksRequest) (*chunkrpc.ListChunksReply, error) {
	ids, err := s.store.ListChunks()
	if err != nil {
		return nil, toStatus(err)
	}
	return &chunkrpc.ListChunksReply{ChunkIDs: ids}, nil
}

func (s *chunkService) Stat(ctx context.Context, in *chunkrpc.StatRequest) (*chunkrpc.StatReply, error) {
	return &chunkrpc.StatReply{
		NodeID:   s.nodeID,
		Capacity: s.store.Capacity(),
		Used:     s.store.UsedSpace(),
		Chunks:   s.store.ChunkCount(),
	}, nil
}
