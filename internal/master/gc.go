package master

import (
	"context"
	"dfs/internal/common"
	"dfs/internal/types"
)

// CollectGarbage deletes chunks no file references. Chunks of creates still
// in flight are staged and left alone.
func (m *Master) CollectGarbage(ctx context.Context) (int, error) {
	held, err := m.chunks.List(ctx)
	if err != nil {
		return 0, err
	}
	// staged ids are read before the namespace: a chunk unstaged after this
	// point was committed before the namespace read below.
	staged := m.staged.Items()
	all, err := m.meta.All(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{})
	for _, md := range all {
		for _, ck := range md.Chunks {
			live[ck.ChunkID] = struct{}{}
		}
	}

	n := 0
	for id, replicas := range held {
		if _, ok := live[id]; ok {
			continue
		}
		if _, ok := staged[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := m.chunks.Delete(ctx, types.FileChunk{ChunkID: id, ReplicaNodes: replicas}); err != nil {
			common.LWarn("<Master> gc chunk %v: %v", id, err)
			continue
		}
		n++
	}
	if n > 0 {
		common.LInfo("<Master> garbage collect reclaimed %v chunks", n)
	}
	return n, nil
}
