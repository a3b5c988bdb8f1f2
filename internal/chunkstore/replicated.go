package chunkstore

import (
	"context"
	"dfs/internal/chunk"
	"dfs/internal/chunkrpc"
	"dfs/internal/common"
	"dfs/internal/types"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NodeClient is the part of the chunk service the store calls.
type NodeClient interface {
	PutChunk(context.Context, *chunkrpc.PutChunkRequest) (*chunkrpc.PutChunkReply, error)
	GetChunk(context.Context, *chunkrpc.GetChunkRequest) (*chunkrpc.GetChunkReply, error)
	DeleteChunk(context.Context, *chunkrpc.DeleteChunkRequest) (*chunkrpc.DeleteChunkReply, error)
	ListChunks(context.Context, *chunkrpc.ListChunksRequest) (*chunkrpc.ListChunksReply, error)
}

// Dialer returns a client for the storage node at addr.
type Dialer func(addr types.Addr) (NodeClient, error)

// PoolDialer adapts a chunkrpc.Pool.
func PoolDialer(p *chunkrpc.Pool) Dialer {
	return func(addr types.Addr) (NodeClient, error) {
		return p.Client(addr)
	}
}

// Resolver maps node ids onto registered nodes.
type Resolver interface {
	Lookup(nodeID string) (types.StorageNodeInfo, bool)
	Nodes() []types.StorageNodeInfo
}

type Durability int

const (
	DurabilityOne Durability = iota
	DurabilityMajority
	DurabilityAll
)

func ParseDurability(s string) (Durability, error) {
	switch strings.ToLower(s) {
	case "", "one", "any":
		return DurabilityOne, nil
	case "majority", "quorum":
		return DurabilityMajority, nil
	case "all":
		return DurabilityAll, nil
	}
	return DurabilityOne, fmt.Errorf("%w: durability %q", types.ErrInvalidArgument, s)
}

func (d Durability) String() string {
	switch d {
	case DurabilityMajority:
		return "majority"
	case DurabilityAll:
		return "all"
	default:
		return "one"
	}
}

// required is the number of acks a write to n replicas needs.
func (d Durability) required(n int) int {
	switch d {
	case DurabilityMajority:
		return n/2 + 1
	case DurabilityAll:
		return n
	default:
		return 1
	}
}

type ReplicatedConfig struct {
	Durability Durability
	Timeout    time.Duration
	Retry      int
	Backoff    time.Duration
	Picker     string
	Strict     bool
}

func (cfg *ReplicatedConfig) defaultCfg() {
	if cfg.Timeout <= 0 {
		cfg.Timeout = common.ReplicaCallTimeout
	}
	if cfg.Retry < 0 {
		cfg.Retry = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = common.ReplicaRetryBackoff
	}
}

// Replicated forwards every chunk operation to the storage nodes named in
// the chunk's replica list.
type Replicated struct {
	cfg    ReplicatedConfig
	nodes  Resolver
	dial   Dialer
	picker Picker
}

func NewReplicated(cfg ReplicatedConfig, nodes Resolver, dial Dialer) *Replicated {
	cfg.defaultCfg()
	return &Replicated{
		cfg:    cfg,
		nodes:  nodes,
		dial:   dial,
		picker: UsePicker(cfg.Picker),
	}
}

func (r *Replicated) client(nodeID string) (NodeClient, error) {
	info, ok := r.nodes.Lookup(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %v", types.ErrNotFound, nodeID)
	}
	return r.dial(info.Endpoint())
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.InvalidArgument, codes.ResourceExhausted, codes.DataLoss, codes.Canceled:
		return false
	}
	return !errors.Is(err, types.ErrNotFound)
}

// call runs fn against nodeID with a per-attempt timeout and bounded retries.
func (r *Replicated) call(ctx context.Context, nodeID string, fn func(context.Context, NodeClient) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.Retry; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.Backoff * time.Duration(attempt)):
			}
		}
		var cli NodeClient
		cli, err = r.client(nodeID)
		if err == nil {
			actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
			err = fn(actx, cli)
			cancel()
		}
		if err == nil || ctx.Err() != nil || !retryable(err) {
			break
		}
		common.LTrace("replica %v attempt %v failed: %v", nodeID, attempt, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (r *Replicated) Put(ctx context.Context, c types.ChunkData, replicas []string) ([]string, error) {
	if len(replicas) == 0 {
		return nil, fmt.Errorf("%w: chunk %v", types.ErrOutOfReplicas, c.ChunkID)
	}
	var (
		wg   sync.WaitGroup
		oks  = make([]bool, len(replicas))
		errs = make([]error, len(replicas))
	)
	req := &chunkrpc.PutChunkRequest{ChunkID: c.ChunkID, Data: c.Data, Checksum: c.Checksum}
	for i, node := range replicas {
		wg.Add(1)
		go func(i int, node string) {
			defer wg.Done()
			errs[i] = r.call(ctx, node, func(ctx context.Context, cli NodeClient) error {
				_, err := cli.PutChunk(ctx, req)
				return err
			})
			oks[i] = errs[i] == nil
		}(i, node)
	}
	wg.Wait()

	accepted := make([]string, 0, len(replicas))
	for i, node := range replicas {
		if oks[i] {
			accepted = append(accepted, node)
		} else {
			common.LWarn("put chunk %v on %v failed: %v", c.ChunkID, node, errs[i])
		}
	}
	if need := r.cfg.Durability.required(len(replicas)); len(accepted) < need {
		return accepted, fmt.Errorf("%w: chunk %v stored on %d of %d replicas, %v needs %d: %v",
			types.ErrChunkUnavailable, c.ChunkID, len(accepted), len(replicas), r.cfg.Durability, need, errors.Join(errs...))
	}
	return accepted, nil
}

func (r *Replicated) Get(ctx context.Context, ref types.FileChunk) ([]byte, error) {
	var (
		errs     []error
		fallback []byte
		found    bool
	)
	for _, node := range r.picker.Order(ref.ReplicaNodes) {
		var reply *chunkrpc.GetChunkReply
		err := r.call(ctx, node, func(ctx context.Context, cli NodeClient) error {
			var err error
			reply, err = cli.GetChunk(ctx, &chunkrpc.GetChunkRequest{ChunkID: ref.ChunkID})
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%v: %w", node, err))
			continue
		}
		if err := chunk.Verify(reply.Data, ref.Checksum); err != nil {
			common.LWarn("chunk %v on %v: %v", ref.ChunkID, node, err)
			errs = append(errs, fmt.Errorf("%v: %w", node, err))
			if !found {
				fallback, found = reply.Data, true
			}
			continue
		}
		return reply.Data, nil
	}
	if found && !r.cfg.Strict {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: chunk %v: %v", types.ErrChunkUnavailable, ref.ChunkID, errors.Join(errs...))
}

func (r *Replicated) Delete(ctx context.Context, ref types.FileChunk) error {
	var errs []error
	for _, node := range ref.ReplicaNodes {
		err := r.call(ctx, node, func(ctx context.Context, cli NodeClient) error {
			_, err := cli.DeleteChunk(ctx, &chunkrpc.DeleteChunkRequest{ChunkID: ref.ChunkID})
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", node, err))
		}
	}
	return errors.Join(errs...)
}

// List asks every registered node for its chunks. Unreachable nodes are
// skipped; their chunks show up on a later sweep.
func (r *Replicated) List(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, n := range r.nodes.Nodes() {
		var reply *chunkrpc.ListChunksReply
		err := r.call(ctx, n.NodeID, func(ctx context.Context, cli NodeClient) error {
			var err error
			reply, err = cli.ListChunks(ctx, &chunkrpc.ListChunksRequest{})
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			common.LWarn("list chunks on %v: %v", n.NodeID, err)
			continue
		}
		for _, id := range reply.ChunkIDs {
			out[id] = append(out[id], n.NodeID)
		}
	}
	return out, nil
}
