package master

import (
	"context"
	"dfs/internal/common"
	xrpc "dfs/internal/common/rpc"
	"dfs/internal/types"
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"
)

// ServiceName is the net/rpc name the coordinator registers under.
const ServiceName = "Master"

// Service exposes a Master over net/rpc. Every method returns nil; the
// outcome travels in the reply's Result.
type Service struct {
	m *Master
}

func NewService(m *Master) *Service {
	return &Service{m: m}
}

func (s *Service) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), common.RpcCallTimeout)
}

func (s *Service) RPCPing(args types.PingArg, reply *types.PingReply) error {
	reply.Result = types.ResultOf(nil)
	return nil
}

func (s *Service) RPCCreateFile(args types.CreateFileArg, reply *types.CreateFileReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	rep, err := s.m.CreateFile(ctx, args.Path, args.Data)
	reply.Result = writeResult(rep, err)
	reply.NumChunks = rep.NumChunks
	reply.UnderReplicated = rep.UnderReplicated
	return nil
}

func (s *Service) RPCUpdateFile(args types.UpdateFileArg, reply *types.UpdateFileReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	rep, err := s.m.UpdateFile(ctx, args.Path, args.Data)
	reply.Result = writeResult(rep, err)
	reply.NumChunks = rep.NumChunks
	reply.UnderReplicated = rep.UnderReplicated
	return nil
}

func writeResult(rep CreateReport, err error) types.Result {
	res := types.ResultOf(err)
	if err != nil {
		return res
	}
	res.FileID = rep.FileID
	res.BytesProcessed = rep.Size
	if rep.UnderReplicated > 0 {
		res.Message = fmt.Sprintf("ok, %d of %d chunks under-replicated", rep.UnderReplicated, rep.NumChunks)
	}
	return res
}

func (s *Service) RPCReadFile(args types.ReadFileArg, reply *types.ReadFileReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	data, err := s.m.ReadFile(ctx, args.Path)
	reply.Result = types.ResultOf(err)
	reply.Data = data
	reply.BytesProcessed = int64(len(data))
	return nil
}

func (s *Service) RPCDeleteFile(args types.DeleteFileArg, reply *types.DeleteFileReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	reply.Result = types.ResultOf(s.m.DeleteFile(ctx, args.Path))
	return nil
}

func (s *Service) RPCList(args types.ListArg, reply *types.ListReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	paths, err := s.m.ListFiles(ctx, args.Prefix)
	reply.Result = types.ResultOf(err)
	reply.Paths = paths
	return nil
}

func (s *Service) RPCMkdir(args types.MkdirArg, reply *types.MkdirReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	reply.Result = types.ResultOf(s.m.CreateDirectory(ctx, args.Path))
	return nil
}

func (s *Service) RPCRmdir(args types.RmdirArg, reply *types.RmdirReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	n, err := s.m.DeleteDirectory(ctx, args.Path)
	reply.Result = types.ResultOf(err)
	reply.Removed = n
	return nil
}

func (s *Service) RPCGetFileInfo(args types.GetFileInfoArg, reply *types.GetFileInfoReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	info, err := s.m.GetFileInfo(ctx, args.Path)
	reply.Result = types.ResultOf(err)
	reply.Info = info
	reply.FileID = info.FileID
	return nil
}

func (s *Service) RPCFileExist(args types.FileExistArg, reply *types.FileExistReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	reply.Ok = s.m.FileExists(ctx, args.Path)
	reply.Result = types.ResultOf(nil)
	return nil
}

func (s *Service) RPCAllMetadata(args types.AllMetadataArg, reply *types.AllMetadataReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	files, err := s.m.AllMetadata(ctx)
	reply.Result = types.ResultOf(err)
	reply.Files = files
	return nil
}

func (s *Service) RPCStats(args types.StatsArg, reply *types.StatsReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	st, err := s.m.Stats(ctx)
	reply.Result = types.ResultOf(err)
	reply.Stats = st
	return nil
}

func (s *Service) RPCCollectGarbage(args types.CollectArg, reply *types.CollectReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	n, err := s.m.CollectGarbage(ctx)
	reply.Result = types.ResultOf(err)
	reply.Reclaimed = n
	return nil
}

// RPCRegisterNode is called by a storage node when it starts.
func (s *Service) RPCRegisterNode(args types.RegisterArg, reply *types.RegisterReply) error {
	reply.Result = types.ResultOf(s.m.RegisterNode(types.StorageNodeInfo{
		NodeID:    args.NodeID,
		Address:   args.Address,
		Port:      args.Port,
		Capacity:  args.Capacity,
		UsedSpace: args.Used,
	}))
	return nil
}

func (s *Service) RPCUnregisterNode(args types.UnregisterArg, reply *types.UnregisterReply) error {
	reply.Result = types.ResultOf(s.m.UnregisterNode(args.NodeID))
	return nil
}

// RPCHeartbeat is called by storage nodes to let the coordinator know they
// are alive. Unknown nodes are acknowledged and ignored.
func (s *Service) RPCHeartbeat(args types.HeartbeatArg, reply *types.HeartbeatReply) error {
	common.LTrace("<Master> heartbeat from %v", args.NodeID)
	reply.Known = s.m.UpdateNodeHeartbeat(args.NodeID, args.Used)
	reply.Result = types.ResultOf(nil)
	return nil
}

func (s *Service) RPCNodes(args types.NodesArg, reply *types.NodesReply) error {
	if args.ActiveOnly {
		reply.Nodes = s.m.ActiveNodes()
	} else {
		reply.Nodes = s.m.Nodes()
	}
	reply.Result = types.ResultOf(nil)
	return nil
}

// Server serves a Master over net/rpc until Stop.
type Server struct {
	l        net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Serve registers m on a fresh rpc.Server and accepts connections on l.
func Serve(m *Master, l net.Listener) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, NewService(m)); err != nil {
		return nil, err
	}
	s := &Server{l: l, shutdown: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		xrpc.NewRpcAndServe(srv, l, s.shutdown, xrpc.AcceptWithTimeOut(time.Second))
	}()
	return s, nil
}

func (s *Server) Addr() types.Addr {
	return types.Addr(s.l.Addr().String())
}

func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.shutdown)
		s.l.Close()
		s.wg.Wait()
	})
}
