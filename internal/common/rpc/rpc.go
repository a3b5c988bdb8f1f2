package rpc

import (
	"context"
	"dfs/internal/common"
	"dfs/internal/types"
	"errors"
	"net"
	"net/rpc"
	"strconv"
	"sync"
	"time"
)

type ClientEnd struct {
	mu     sync.Mutex
	IpAddr string
	Port   int
	cl     *rpc.Client
}

var (
	ErrTimeOut = types.ErrTimeOut
)

var mu sync.RWMutex
var rpcPool = map[types.Addr]*ClientEnd{}

type CallOption = func(*RpcClientConfig)
type ServeOption = func(*RpcServerConfig)
type RpcServerConfig struct {
	AcceptTimeout time.Duration
}
type RpcClientConfig struct {
	CallTimeOut time.Duration
}

func (rc *RpcClientConfig) defaultConfig() {
	rc.CallTimeOut = common.RpcCallTimeout
}

func (rc *RpcServerConfig) defaultConfig() {
	rc.AcceptTimeout = 0
}

func NewClientEnd(endpoint string) *ClientEnd {
	ip, port := common.SplitEndPoint(endpoint)
	dpot, _ := strconv.Atoi(port)
	return &ClientEnd{
		IpAddr: ip,
		Port:   dpot,
	}
}

func (ce *ClientEnd) EndPoint() string {
	return ce.IpAddr + ":" + strconv.Itoa(ce.Port)
}

func (ce *ClientEnd) Close() {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.cl != nil {
		ce.cl.Close()
		ce.cl = nil
	}
}

func (ce *ClientEnd) client() (*rpc.Client, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.cl != nil {
		return ce.cl, nil
	}
	cl, err := rpc.Dial("tcp", ce.EndPoint())
	if err != nil {
		return nil, err
	}
	ce.cl = cl
	return cl, nil
}

// drop forgets cl so the next call redials.
func (ce *ClientEnd) drop(cl *rpc.Client) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.cl == cl {
		ce.cl.Close()
		ce.cl = nil
	}
}

func (ce *ClientEnd) Call(ctx context.Context, service string, args any, reply any, opts ...CallOption) error {
	cl, err := ce.client()
	if err != nil {
		common.LFail("rpc dial %v error %v", ce.EndPoint(), err)
		return types.ErrDialHup
	}
	cf := RpcClientConfig{}
	cf.defaultConfig()
	for _, opt := range opts {
		opt(&cf)
	}
	if cf.CallTimeOut > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cf.CallTimeOut)
		defer cancel()
	}

	call := cl.Go(service, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		common.LWarn("rpc %v to %v: %v", service, ce.EndPoint(), ctx.Err())
		ce.drop(cl)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeOut
		}
		return ctx.Err()
	case res := <-call.Done:
		if errors.Is(res.Error, rpc.ErrShutdown) {
			ce.drop(cl)
			return types.ErrDialHup
		}
		return res.Error
	}
}

func CallWithTimeOut(t time.Duration) CallOption {
	return func(c *RpcClientConfig) {
		c.CallTimeOut = t
	}
}

func AcceptWithTimeOut(t time.Duration) ServeOption {
	return func(c *RpcServerConfig) {
		c.AcceptTimeout = t
	}
}

func Call(ctx context.Context, server types.Addr, service string, args any, reply any, opts ...CallOption) error {
	cli := findClientEnd(server)
	return cli.Call(ctx, service, args, reply, opts...)
}

// CloseEndpoint closes and forgets the pooled connection to server.
func CloseEndpoint(server types.Addr) {
	mu.Lock()
	cli, ok := rpcPool[server]
	delete(rpcPool, server)
	mu.Unlock()
	if ok {
		cli.Close()
	}
}

// NewRpcAndServe accepts connections on l until stop is closed.
func NewRpcAndServe(srv *rpc.Server, l net.Listener, stop <-chan struct{}, opts ...ServeOption) {
	common.LInfo("rpc service listen on %v", l.Addr().String())
	cf := RpcServerConfig{}
	cf.defaultConfig()
	for _, opt := range opts {
		opt(&cf)
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		if tl, ok := l.(*net.TCPListener); ok && cf.AcceptTimeout != 0 {
			tl.SetDeadline(time.Now().Add(cf.AcceptTimeout))
		}
		conn, err := l.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			common.LWarn("rpc accept error %v", err)
			continue
		}
		common.LTrace("incoming request from %v", conn.RemoteAddr())
		go srv.ServeConn(conn)
	}
}

func findClientEnd(server types.Addr) *ClientEnd {
	mu.RLock()
	cli, ok := rpcPool[server]
	mu.RUnlock()
	if ok {
		return cli
	}
	mu.Lock()
	defer mu.Unlock()
	if cli, ok = rpcPool[server]; ok {
		return cli
	}
	cli = NewClientEnd(string(server))
	rpcPool[server] = cli
	return cli
}
