package master

import (
	"dfs/internal/types"
	"math"
	"sort"
)

// NodeSource supplies the nodes currently considered alive.
type NodeSource interface {
	ActiveNodes() []types.StorageNodeInfo
}

// Selector picks replica targets: live nodes by most available space, ties
// broken by least used space, then node id. Unbounded nodes come first.
type Selector struct {
	src NodeSource
}

func NewSelector(src NodeSource) *Selector {
	return &Selector{src: src}
}

// Select returns up to n node ids. Fewer live nodes than n is not an error.
func (s *Selector) Select(n int) []string {
	return rank(s.src.ActiveNodes(), n)
}

func rank(nodes []types.StorageNodeInfo, n int) []string {
	if n <= 0 {
		return []string{}
	}
	live := make([]types.StorageNodeInfo, 0, len(nodes))
	for _, node := range nodes {
		if node.IsAlive {
			live = append(live, node)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if a, b := room(live[i]), room(live[j]); a != b {
			return a > b
		}
		if live[i].UsedSpace != live[j].UsedSpace {
			return live[i].UsedSpace < live[j].UsedSpace
		}
		return live[i].NodeID < live[j].NodeID
	})
	if len(live) > n {
		live = live[:n]
	}
	out := make([]string, len(live))
	for i, node := range live {
		out[i] = node.NodeID
	}
	return out
}

func room(n types.StorageNodeInfo) int64 {
	if n.AvailableSpace < 0 {
		return math.MaxInt64
	}
	return n.AvailableSpace
}
