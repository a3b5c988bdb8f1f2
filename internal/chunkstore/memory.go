package chunkstore

import (
	"context"
	"dfs/internal/chunk"
	"dfs/internal/common"
	"dfs/internal/types"
	"fmt"
	"sync"
)

// Memory keeps chunks in process. It records the replica list it was handed
// but stores a single copy.
type Memory struct {
	sync.RWMutex
	chunks map[string]memChunk
	strict bool
}

type memChunk struct {
	data     types.ChunkData
	replicas []string
}

// NewMemory returns an in-process store. With strict set a checksum mismatch
// fails the read; otherwise it is only logged.
func NewMemory(strict bool) *Memory {
	return &Memory{
		chunks: make(map[string]memChunk),
		strict: strict,
	}
}

func (m *Memory) Put(ctx context.Context, c types.ChunkData, replicas []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := append([]byte(nil), c.Data...)
	m.Lock()
	defer m.Unlock()
	m.chunks[c.ChunkID] = memChunk{
		data:     types.ChunkData{ChunkID: c.ChunkID, Data: data, Checksum: c.Checksum},
		replicas: append([]string(nil), replicas...),
	}
	return replicas, nil
}

func (m *Memory) Get(ctx context.Context, ref types.FileChunk) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.RLock()
	c, ok := m.chunks[ref.ChunkID]
	m.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", types.ErrChunkUnavailable, ref.ChunkID)
	}
	if err := chunk.Verify(c.data.Data, ref.Checksum); err != nil {
		if m.strict {
			return nil, fmt.Errorf("%w: %v", types.ErrChunkUnavailable, err)
		}
		common.LWarn("chunk %v: %v", ref.ChunkID, err)
	}
	return append([]byte(nil), c.data.Data...), nil
}

func (m *Memory) Delete(ctx context.Context, ref types.FileChunk) error {
	m.Lock()
	defer m.Unlock()
	delete(m.chunks, ref.ChunkID)
	return nil
}

func (m *Memory) List(ctx context.Context) (map[string][]string, error) {
	m.RLock()
	defer m.RUnlock()
	out := make(map[string][]string, len(m.chunks))
	for id, c := range m.chunks {
		out[id] = append([]string(nil), c.replicas...)
	}
	return out, nil
}

// Len is the number of chunks held.
func (m *Memory) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.chunks)
}

// Corrupt overwrites the stored payload of id, keeping its checksum.
func (m *Memory) Corrupt(id string, data []byte) bool {
	m.Lock()
	defer m.Unlock()
	c, ok := m.chunks[id]
	if !ok {
		return false
	}
	c.data.Data = append([]byte(nil), data...)
	m.chunks[id] = c
	return true
}
