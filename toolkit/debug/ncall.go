package main

import (
	"context"
	"dfs/config"
	"dfs/internal/chunkrpc"
	"dfs/internal/client"
	"dfs/internal/types"
	"sync"
	"time"
)

var probeTimeout = 3 * time.Second

// CoordinatorState is what the coordinator at addr reports about the cluster.
type CoordinatorState struct {
	Stats types.Stats
	Nodes []types.StorageNodeInfo
}

// -check m
func ProbeCoordinator(ctx context.Context, addr types.Addr) (*CoordinatorState, error) {
	r := client.NewRemoteCoordinator(addr, client.WithRetry(0), client.WithTimeout(probeTimeout))
	defer r.Close()
	if err := r.Ping(ctx); err != nil {
		return nil, err
	}
	st, err := r.Stats(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := r.ListNodes(ctx, false)
	if err != nil {
		return nil, err
	}
	return &CoordinatorState{Stats: st, Nodes: nodes}, nil
}

// NodeState is a storage node's own report. Err is set when it could not be
// reached.
type NodeState struct {
	Node  config.Node
	Stat  *chunkrpc.StatReply
	Err   error
	Taken time.Duration
}

// -check s
func ProbeNodes(ctx context.Context, nodes []config.Node) []NodeState {
	var (
		pool = chunkrpc.NewPool()
		ans  = make([]NodeState, len(nodes))
		wg   = sync.WaitGroup{}
	)
	defer pool.Close()

	for i := range nodes {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ans[idx].Node = nodes[idx]
			start := time.Now()
			cli, err := pool.Client(nodes[idx].Addr())
			if err != nil {
				ans[idx].Err = err
				return
			}
			cctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			ans[idx].Stat, ans[idx].Err = cli.Stat(cctx, &chunkrpc.StatRequest{})
			ans[idx].Taken = time.Since(start)
		}(i)
	}

	wg.Wait()
	return ans
}
