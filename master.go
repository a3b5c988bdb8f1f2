package dfs

import (
	"context"
	"dfs/config"
	"dfs/internal/chunk"
	"dfs/internal/chunkrpc"
	"dfs/internal/chunkstore"
	"dfs/internal/common"
	"dfs/internal/master"
	"dfs/internal/meta"
	"dfs/internal/types"
	"fmt"
	"net"
	"strings"
	"time"
)

// Coordinator is a started Master served over net/rpc.
type Coordinator struct {
	*master.Master
	srv  *master.Server
	pool *chunkrpc.Pool
}

func (c *Coordinator) Addr() types.Addr {
	return c.srv.Addr()
}

// Stop stops serving, then stops the master and drops node connections.
func (c *Coordinator) Stop() {
	c.srv.Stop()
	c.Master.Stop()
	if c.pool != nil {
		c.pool.Close()
	}
}

func newMetaStore(mc config.MetaConfig) (meta.Store, error) {
	switch strings.ToLower(mc.Backend) {
	case "", "memory":
		return meta.NewMemory(), nil
	case "redis":
		r := meta.NewRedis(mc.RedisAddr, mc.RedisPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), common.RpcCallTimeout)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("redis %v: %w", mc.RedisAddr, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: meta backend %q", types.ErrInvalidArgument, mc.Backend)
}

func newChunkStore(cc config.ChunkConfig, reg *master.Registry) (chunkstore.Store, *chunkrpc.Pool, error) {
	switch strings.ToLower(cc.Backend) {
	case "", "local":
		return chunkstore.NewMemory(cc.Strict), nil, nil
	case "replicated":
	default:
		return nil, nil, fmt.Errorf("%w: chunk backend %q", types.ErrInvalidArgument, cc.Backend)
	}
	durability, err := chunkstore.ParseDurability(cc.Durability)
	if err != nil {
		return nil, nil, err
	}
	timeout, err := config.ParseDuration(cc.Timeout, common.ReplicaCallTimeout)
	if err != nil {
		return nil, nil, err
	}
	retry := common.ReplicaRetry
	if cc.Retry != nil {
		retry = *cc.Retry
	}
	pool := chunkrpc.NewPool()
	store := chunkstore.NewReplicated(chunkstore.ReplicatedConfig{
		Durability: durability,
		Timeout:    timeout,
		Retry:      retry,
		Picker:     cc.Picker,
		Strict:     cc.Strict,
	}, reg, chunkstore.PoolDialer(pool))
	return store, pool, nil
}

func masterConfig(cc *config.CoordinatorConfig) (master.Config, time.Duration, time.Duration, error) {
	var (
		cfg master.Config
		err error
	)
	if cfg.ChunkSize, err = config.ParseSize(cc.ChunkSize, common.DefaultChunkSize); err != nil {
		return cfg, 0, 0, err
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > common.MaxChunkSize {
		return cfg, 0, 0, fmt.Errorf("%w: chunk size %v, at most %v", types.ErrInvalidArgument,
			cc.ChunkSize, config.HumanSize(common.MaxChunkSize))
	}
	cfg.ReplicationFactor = cc.ReplicationFactor
	window, err := config.ParseDuration(cc.AliveWindow, common.AliveWindow)
	if err != nil {
		return cfg, 0, 0, err
	}
	sweep, err := config.ParseDuration(cc.SweepInterval, window/3)
	if err != nil {
		return cfg, 0, 0, err
	}
	if cfg.GCInterval, err = config.ParseDuration(cc.GCInterval, common.GarbageCollectInterval); err != nil {
		return cfg, 0, 0, err
	}
	if cfg.StageTTL, err = config.ParseDuration(cc.StageTTL, common.StageExpire); err != nil {
		return cfg, 0, 0, err
	}
	if cfg.SnapInterval, err = config.ParseDuration(cc.Meta.SnapInterval, common.SnapInterval); err != nil {
		return cfg, 0, 0, err
	}
	cfg.SnapshotPath = cc.Meta.Snapshot
	if name := cc.Chunks.Checksum; name != "" {
		sum, ok := chunk.Lookup(strings.ToLower(name))
		if !ok {
			return cfg, 0, 0, fmt.Errorf("%w: checksum %q", types.ErrInvalidArgument, name)
		}
		cfg.Checksum = sum
	}
	return cfg, window, sweep, nil
}

// NewMaster builds the coordinator described by cc, starts it and serves it
// on l, or on cc's address when l is nil.
func NewMaster(cc *config.CoordinatorConfig, l net.Listener) (*Coordinator, error) {
	cfg, window, sweep, err := masterConfig(cc)
	if err != nil {
		return nil, err
	}
	md, err := newMetaStore(cc.Meta)
	if err != nil {
		return nil, err
	}
	reg := master.NewRegistry(window, sweep)
	chunks, pool, err := newChunkStore(cc.Chunks, reg)
	if err != nil {
		md.Close()
		return nil, err
	}
	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
	}

	m := master.New(cfg, reg, md, chunks)
	if err := m.Start(); err != nil {
		cleanup()
		md.Close()
		return nil, err
	}
	if l == nil {
		if l, err = net.Listen("tcp", string(cc.Addr())); err != nil {
			m.Stop()
			cleanup()
			return nil, err
		}
	}
	srv, err := master.Serve(m, l)
	if err != nil {
		l.Close()
		m.Stop()
		cleanup()
		return nil, err
	}
	common.LInfo("<Master> serving on %v, chunk size %v, meta %T, chunks %T",
		srv.Addr(), config.HumanSize(cfg.ChunkSize), md, chunks)
	return &Coordinator{Master: m, srv: srv, pool: pool}, nil
}

// MustNewMaster starts the coordinator from the cluster config file.
func MustNewMaster() *Coordinator {
	cc := config.GetClusterConfig()
	co := &cc.Cluster.Coordinator
	common.MustOpenLogFile(co.Log)
	if co.Debug != "" {
		common.SetLogLevel(common.ParseLogLevel(co.Debug))
	}
	c, err := NewMaster(co, nil)
	if err != nil {
		panic(err)
	}
	return c
}
