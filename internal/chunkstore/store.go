// Package chunkstore persists chunk payloads keyed by chunk id.
package chunkstore

import (
	"context"
	"dfs/internal/types"
)

// Store is the chunk store contract of the coordinator.
//
// Put writes a chunk to the given replicas and returns the replicas that
// accepted it. Get returns the payload of ref from any replica whose copy
// matches ref.Checksum. Delete is best effort. List reports every chunk id
// the store holds with the replicas holding it.
type Store interface {
	Put(ctx context.Context, chunk types.ChunkData, replicas []string) ([]string, error)
	Get(ctx context.Context, ref types.FileChunk) ([]byte, error)
	Delete(ctx context.Context, ref types.FileChunk) error
	List(ctx context.Context) (map[string][]string, error)
}
