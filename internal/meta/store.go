// Package meta holds the authoritative file namespace of the coordinator.
package meta

import (
	"context"
	"dfs/internal/types"
)

// Store maps normalized paths to FileMetadata. Implementations make every
// mutation atomic with respect to readers: a reader sees an entry either
// before or after a write, never in between.
type Store interface {
	// Create inserts md unless its path is taken (types.ErrAlreadyExists).
	Create(ctx context.Context, md types.FileMetadata) error
	// Put inserts or replaces the entry at md.Path.
	Put(ctx context.Context, md types.FileMetadata) error
	// Swap replaces the entry at md.Path only while it still carries fileID.
	Swap(ctx context.Context, fileID string, md types.FileMetadata) error
	Get(ctx context.Context, path types.Path) (types.FileMetadata, error)
	// Delete removes path and returns the entry it held.
	Delete(ctx context.Context, path types.Path) (types.FileMetadata, error)
	// List returns the sorted paths starting with prefix.
	List(ctx context.Context, prefix types.Path) ([]types.Path, error)
	All(ctx context.Context) ([]types.FileMetadata, error)
	Close() error
}
