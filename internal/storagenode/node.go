// Package storagenode is the storage node process: a badger chunk store
// served over the chunk RPC service, registered with the coordinator and
// kept alive by heartbeats.
package storagenode

import (
	"context"
	"dfs/internal/chunkrpc"
	"dfs/internal/common"
	xrpc "dfs/internal/common/rpc"
	"dfs/internal/master"
	"dfs/internal/types"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"
)

type Config struct {
	NodeID string
	// Address and Port are what the coordinator dials. Port 0 takes the
	// port of the listener.
	Address           string
	Port              int
	Capacity          int64
	DataDir           string
	Coordinator       types.Addr
	HeartbeatInterval time.Duration
}

type Node struct {
	cfg        Config
	store      *Store
	srv        *grpc.Server
	l          net.Listener
	registered bool

	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewAndServe opens the chunk store, serves chunk RPCs on l and starts the
// register + heartbeat loop. A nil l listens on Address:Port.
func NewAndServe(cfg Config, l net.Listener) (*Node, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("%w: empty node id", types.ErrInvalidArgument)
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = common.HeartbeatInterval
	}
	store, err := OpenStore(cfg.DataDir, cfg.Capacity)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l, err = net.Listen("tcp", net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)))
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	if tcp, ok := l.Addr().(*net.TCPAddr); ok && cfg.Port == 0 {
		cfg.Port = tcp.Port
	}

	n := &Node{
		cfg:      cfg,
		store:    store,
		srv:      grpc.NewServer(chunkrpc.ServerOptions()...),
		l:        l,
		shutdown: make(chan struct{}),
	}
	chunkrpc.RegisterChunkServer(n.srv, &chunkService{nodeID: cfg.NodeID, store: store})

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		common.LInfo("<Node %v> chunk service listen on %v", cfg.NodeID, l.Addr())
		if err := n.srv.Serve(l); err != nil {
			common.LFail("<Node %v> serve error %v", cfg.NodeID, err)
		}
	}()
	go func() {
		defer n.wg.Done()
		n.GoHeartbeat()
	}()
	return n, nil
}

func (n *Node) Store() *Store {
	return n.store
}

func (n *Node) Addr() types.Addr {
	return types.Addr(n.l.Addr().String())
}

// GoHeartbeat registers with the coordinator and then heartbeats. A failed
// registration is retried on the next tick.
func (n *Node) GoHeartbeat() {
	if n.cfg.Coordinator == "" {
		common.LWarn("<Node %v> no coordinator configured, running detached", n.cfg.NodeID)
		return
	}
	n.tick()
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.shutdown:
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

func (n *Node) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.HeartbeatInterval)
	defer cancel()
	var err error
	if !n.registered {
		if err = n.register(ctx); err == nil {
			n.registered = true
			common.LInfo("<Node %v> registered with %v", n.cfg.NodeID, n.cfg.Coordinator)
		}
	} else if err = n.heartbeat(ctx); errors.Is(err, types.ErrNotFound) {
		n.registered = false
	}
	if err != nil {
		common.LWarn("<Node %v> coordinator %v: %v", n.cfg.NodeID, n.cfg.Coordinator, err)
	}
}

func (n *Node) register(ctx context.Context) error {
	arg := types.RegisterArg{
		NodeID:   n.cfg.NodeID,
		Address:  n.cfg.Address,
		Port:     n.cfg.Port,
		Capacity: n.cfg.Capacity,
		Used:     n.store.UsedSpace(),
	}
	var reply types.RegisterReply
	if err := xrpc.Call(ctx, n.cfg.Coordinator, master.ServiceName+".RPCRegisterNode", arg, &reply); err != nil {
		return err
	}
	return reply.Err()
}

func (n *Node) heartbeat(ctx context.Context) error {
	arg := types.HeartbeatArg{
		NodeID:    n.cfg.NodeID,
		Timestamp: time.Now(),
		Used:      n.store.UsedSpace(),
	}
	var reply types.HeartbeatReply
	if err := xrpc.Call(ctx, n.cfg.Coordinator, master.ServiceName+".RPCHeartbeat", arg, &reply); err != nil {
		return err
	}
	if err := reply.Err(); err != nil {
		return err
	}
	if !reply.Known {
		return fmt.Errorf("%w: coordinator forgot node %v", types.ErrNotFound, n.cfg.NodeID)
	}
	return nil
}

// Stop halts heartbeats, drains in-flight RPCs and closes the store.
func (n *Node) Stop() {
	n.once.Do(func() {
		close(n.shutdown)
		n.srv.GracefulStop()
		n.wg.Wait()
		if err := n.store.Close(); err != nil {
			common.LWarn("<Node %v> close store error %v", n.cfg.NodeID, err)
		}
		common.LInfo("<Node %v> stopped", n.cfg.NodeID)
	})
}
