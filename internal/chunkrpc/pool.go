package chunkrpc

import (
	"dfs/internal/types"
	"errors"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Pool shares one grpc.ClientConn per storage node address.
type Pool struct {
	mu    sync.Mutex
	conns map[types.Addr]*grpc.ClientConn
	opts  []grpc.DialOption
}

// NewPool dials without TLS and with message limits sized for full chunks.
// opts are applied after the defaults.
func NewPool(opts ...grpc.DialOption) *Pool {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize()),
			grpc.MaxCallSendMsgSize(maxMessageSize()),
		),
	}
	return &Pool{
		conns: make(map[types.Addr]*grpc.ClientConn),
		opts:  append(base, opts...),
	}
}

func (p *Pool) Client(addr types.Addr) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cc, ok := p.conns[addr]; ok {
		return NewClient(cc), nil
	}
	cc, err := grpc.Dial(string(addr), p.opts...)
	if err != nil {
		return nil, err
	}
	p.conns[addr] = cc
	return NewClient(cc), nil
}

// Forget closes the connection to addr, e.g. after the node unregistered.
func (p *Pool) Forget(addr types.Addr) {
	p.mu.Lock()
	cc, ok := p.conns[addr]
	delete(p.conns, addr)
	p.mu.Unlock()
	if ok {
		cc.Close()
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for addr, cc := range p.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.conns, addr)
	}
	return errors.Join(errs...)
}
