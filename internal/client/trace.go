package client

import (
	"dfs/internal/common"
	"dfs/internal/types"
)

// Trace holds optional callbacks around client calls. Nil fields are skipped.
type Trace struct {
	// 开始请求
	Start func(op string, path types.Path)
	// 重试
	Retry func(method string, attempt int, err error)
	// 数据传输结束
	Transfer func(op string, path types.Path, n int64)
	// 结束
	Done func(op string, err error)
}

var defaultTrace = &Trace{
	Start: func(op string, path types.Path) {
		common.LTrace("client %v %v start", op, path)
	},
	Retry: func(method string, attempt int, err error) {
		common.LTrace("client retry %v attempt %v: %v", method, attempt, err)
	},
	Transfer: func(op string, path types.Path, n int64) {
		common.LTrace("client %v %v transferred %v bytes", op, path, n)
	},
	Done: func(op string, err error) {
		common.LTrace("client %v done err=%v", op, err)
	},
}

func (t *Trace) start(op string, path types.Path) {
	if t.Start != nil {
		t.Start(op, path)
	}
}

func (t *Trace) retry(method string, attempt int, err error) {
	if t.Retry != nil {
		t.Retry(method, attempt, err)
	}
}

func (t *Trace) transfer(op string, path types.Path, n int) {
	if t.Transfer != nil {
		t.Transfer(op, path, int64(n))
	}
}

func (t *Trace) done(op string, err error) {
	if t.Done != nil {
		t.Done(op, err)
	}
}
