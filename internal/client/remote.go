package client

import (
	"context"
	"dfs/internal/chunk"
	"dfs/internal/common"
	xrpc "dfs/internal/common/rpc"
	"dfs/internal/master"
	"dfs/internal/types"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Remote talks to a coordinator process over net/rpc.
type Remote struct {
	addr types.Addr
	cfg  ClientCfg
}

type resulter interface {
	Err() error
}

func NewRemoteCoordinator(addr types.Addr, opts ...Option) *Remote {
	r := &Remote{addr: addr}
	r.cfg.Init(opts...)
	return r
}

func (r *Remote) Addr() types.Addr {
	return r.addr
}

func (r *Remote) Ping(ctx context.Context) error {
	var reply types.PingReply
	return r.do(ctx, "RPCPing", types.PingArg{}, &reply)
}

// Close drops the pooled connection to the coordinator.
func (r *Remote) Close() {
	xrpc.CloseEndpoint(r.addr)
}

func retryable(err error) bool {
	return errors.Is(err, types.ErrTimeOut) || errors.Is(err, types.ErrDialHup)
}

// do calls method on the coordinator, retrying timeouts and dropped
// connections, and converts the reply's Result into an error.
func (r *Remote) do(ctx context.Context, method string, arg any, reply resulter) error {
	_, err := r.call(ctx, method, arg, reply)
	return err
}

// call is do that also reports whether an attempt timed out, in which case
// the coordinator may have applied the call without the client seeing it.
func (r *Remote) call(ctx context.Context, method string, arg any, reply resulter) (timedOut bool, err error) {
	service := master.ServiceName + "." + method
	rv := reflect.ValueOf(reply).Elem()

	for attempt := 0; attempt <= r.cfg.retry; attempt++ {
		if attempt > 0 {
			r.cfg.trace.retry(service, attempt, err)
			common.LInfo("<Client> retry %v on %v (%v)", service, r.addr, err)
			select {
			case <-ctx.Done():
				return timedOut, ctx.Err()
			case <-time.After(common.ClientRetryBackoff * time.Duration(attempt)):
			}
			// gob keeps fields a previous attempt decoded
			rv.Set(reflect.Zero(rv.Type()))
		}
		err = xrpc.Call(ctx, r.addr, service, arg, reply, xrpc.CallWithTimeOut(r.cfg.timeout))
		if err == nil {
			return timedOut, reply.Err()
		}
		if errors.Is(err, types.ErrTimeOut) {
			timedOut = true
		}
		if !retryable(err) {
			return timedOut, err
		}
	}
	return timedOut, fmt.Errorf("%w: %v: %v", types.ErrRetryOverSeed, service, err)
}

// CreateFile is not idempotent. When an attempt timed out and a later one
// finds the path taken, the stored entry is compared with data: if it holds
// exactly these bytes the earlier attempt landed and the create succeeded.
func (r *Remote) CreateFile(ctx context.Context, path types.Path, data []byte) (master.CreateReport, error) {
	var reply types.CreateFileReply
	timedOut, err := r.call(ctx, "RPCCreateFile", types.CreateFileArg{Path: path, Data: data}, &reply)
	if err != nil {
		if timedOut && errors.Is(err, types.ErrAlreadyExists) {
			if md, ierr := r.GetFileInfo(ctx, path); ierr == nil && holds(md, data) {
				common.LInfo("<Client> create %v landed on a timed out attempt", path)
				return master.CreateReport{
					FileID:          md.FileID,
					Size:            md.TotalSize,
					NumChunks:       md.NumChunks,
					UnderReplicated: md.UnderReplicated(),
				}, nil
			}
		}
		return master.CreateReport{}, err
	}
	return master.CreateReport{
		FileID:          reply.FileID,
		Size:            reply.BytesProcessed,
		NumChunks:       reply.NumChunks,
		UnderReplicated: reply.UnderReplicated,
	}, nil
}

func (r *Remote) UpdateFile(ctx context.Context, path types.Path, data []byte) (master.CreateReport, error) {
	var reply types.UpdateFileReply
	if err := r.do(ctx, "RPCUpdateFile", types.UpdateFileArg{Path: path, Data: data}, &reply); err != nil {
		return master.CreateReport{}, err
	}
	return master.CreateReport{
		FileID:          reply.FileID,
		Size:            reply.BytesProcessed,
		NumChunks:       reply.NumChunks,
		UnderReplicated: reply.UnderReplicated,
	}, nil
}

func (r *Remote) ReadFile(ctx context.Context, path types.Path) ([]byte, error) {
	var reply types.ReadFileReply
	if err := r.do(ctx, "RPCReadFile", types.ReadFileArg{Path: path}, &reply); err != nil {
		return nil, err
	}
	if reply.Data == nil {
		return []byte{}, nil
	}
	return reply.Data, nil
}

func (r *Remote) DeleteFile(ctx context.Context, path types.Path) error {
	var reply types.DeleteFileReply
	return r.do(ctx, "RPCDeleteFile", types.DeleteFileArg{Path: path}, &reply)
}

func (r *Remote) ListFiles(ctx context.Context, prefix types.Path) ([]types.Path, error) {
	var reply types.ListReply
	if err := r.do(ctx, "RPCList", types.ListArg{Prefix: prefix}, &reply); err != nil {
		return nil, err
	}
	return reply.Paths, nil
}

func (r *Remote) CreateDirectory(ctx context.Context, path types.Path) error {
	var reply types.MkdirReply
	return r.do(ctx, "RPCMkdir", types.MkdirArg{Path: path}, &reply)
}

func (r *Remote) DeleteDirectory(ctx context.Context, path types.Path) (int, error) {
	var reply types.RmdirReply
	if err := r.do(ctx, "RPCRmdir", types.RmdirArg{Path: path}, &reply); err != nil {
		return 0, err
	}
	return reply.Removed, nil
}

func (r *Remote) GetFileInfo(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	var reply types.GetFileInfoReply
	if err := r.do(ctx, "RPCGetFileInfo", types.GetFileInfoArg{Path: path}, &reply); err != nil {
		return types.FileMetadata{}, err
	}
	return reply.Info, nil
}

// FileExists reports false when the coordinator cannot be reached.
func (r *Remote) FileExists(ctx context.Context, path types.Path) bool {
	var reply types.FileExistReply
	if err := r.do(ctx, "RPCFileExist", types.FileExistArg{Path: path}, &reply); err != nil {
		common.LWarn("<Client> exists %v: %v", path, err)
		return false
	}
	return reply.Ok
}

func (r *Remote) AllMetadata(ctx context.Context) ([]types.FileMetadata, error) {
	var reply types.AllMetadataReply
	if err := r.do(ctx, "RPCAllMetadata", types.AllMetadataArg{}, &reply); err != nil {
		return nil, err
	}
	return reply.Files, nil
}

func (r *Remote) Stats(ctx context.Context) (types.Stats, error) {
	var reply types.StatsReply
	if err := r.do(ctx, "RPCStats", types.StatsArg{}, &reply); err != nil {
		return types.Stats{}, err
	}
	return reply.Stats, nil
}

func (r *Remote) CollectGarbage(ctx context.Context) (int, error) {
	var reply types.CollectReply
	if err := r.do(ctx, "RPCCollectGarbage", types.CollectArg{}, &reply); err != nil {
		return 0, err
	}
	return reply.Reclaimed, nil
}

func (r *Remote) ListNodes(ctx context.Context, activeOnly bool) ([]types.StorageNodeInfo, error) {
	var reply types.NodesReply
	if err := r.do(ctx, "RPCNodes", types.NodesArg{ActiveOnly: activeOnly}, &reply); err != nil {
		return nil, err
	}
	return reply.Nodes, nil
}

// holds reports whether md describes exactly data, chunk by chunk.
func holds(md types.FileMetadata, data []byte) bool {
	if md.TotalSize != int64(len(data)) || md.ChunkSize <= 0 ||
		len(md.Chunks) != chunk.Count(md.TotalSize, md.ChunkSize) {
		return false
	}
	for _, ck := range md.Chunks {
		start := int64(ck.ChunkIndex) * md.ChunkSize
		end := start + ck.Size
		if ck.Checksum == "" || start < 0 || end > int64(len(data)) || start > end {
			return false
		}
		if chunk.Verify(data[start:end], ck.Checksum) != nil {
			return false
		}
	}
	return true
}
