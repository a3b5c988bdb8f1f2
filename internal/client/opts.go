package client

import (
	"dfs/internal/common"
	"time"
)

type Option func(*ClientCfg)

func WithTrace(t *Trace) Option {
	return func(cc *ClientCfg) {
		cc.trace = t
	}
}

// WithRetry sets how many times a remote call is retried after a timeout or
// a dropped connection.
func WithRetry(count int) Option {
	return func(cc *ClientCfg) {
		if count < 0 {
			count = 0
		}
		cc.retry = count
	}
}

// WithTimeout bounds every remote call.
func WithTimeout(t time.Duration) Option {
	return func(cc *ClientCfg) {
		if t > 0 {
			cc.timeout = t
		}
	}
}

type ClientCfg struct {
	// 调用coordinator失败时的重试次数
	retry int

	// 单次rpc超时
	timeout time.Duration

	// 跟踪请求的回调
	trace *Trace
}

func (cfg *ClientCfg) Init(opts ...Option) {
	cfg.defaultCfg()

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.trace == nil {
		cfg.trace = &Trace{}
	}
}

func (cfg *ClientCfg) defaultCfg() {
	cfg.retry = common.MaxClientRetry
	cfg.timeout = common.RpcCallTimeout

	if common.ClientTraceEnable {
		cfg.trace = defaultTrace
	}
}
