package master

import (
	"context"
	xrpc "dfs/internal/common/rpc"
	"dfs/internal/types"
	"errors"
	"net"
	"testing"
)

func serveTestMaster(t *testing.T) (*Master, types.Addr) {
	t.Helper()
	m, _ := newTestMaster(t, 4, 2, 0)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv, err := Serve(m, l)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		xrpc.CloseEndpoint(srv.Addr())
		srv.Stop()
	})
	return m, srv.Addr()
}

func TestServiceOverRPC(t *testing.T) {
	ctx := context.Background()
	m, addr := serveTestMaster(t)
	call := func(method string, args, reply any) {
		t.Helper()
		if err := xrpc.Call(ctx, addr, ServiceName+"."+method, args, reply); err != nil {
			t.Fatalf("%v: %v", method, err)
		}
	}

	var reg types.RegisterReply
	call("RPCRegisterNode", types.RegisterArg{NodeID: "n1", Address: "127.0.0.1", Port: 7001, Capacity: 1 << 20}, &reg)
	if !reg.Success {
		t.Fatalf("register %+v", reg.Result)
	}
	var hb types.HeartbeatReply
	call("RPCHeartbeat", types.HeartbeatArg{NodeID: "ghost", Used: -1}, &hb)
	if !hb.Success || len(m.Nodes()) != 1 {
		t.Fatal("unknown heartbeat should be acknowledged and ignored")
	}

	var cr types.CreateFileReply
	call("RPCCreateFile", types.CreateFileArg{Path: "/r/a.txt", Data: []byte("hello rpc")}, &cr)
	if !cr.Success || cr.FileID == "" || cr.BytesProcessed != 9 {
		t.Fatalf("create %+v", cr.Result)
	}
	if cr.UnderReplicated != 3 {
		t.Fatalf("under-replicated %d", cr.UnderReplicated)
	}

	// gob leaves zero fields untouched, so every call gets a fresh reply
	var dup types.CreateFileReply
	call("RPCCreateFile", types.CreateFileArg{Path: "/r/a.txt", Data: []byte("again")}, &dup)
	if dup.Success || !errors.Is(dup.Err(), types.ErrAlreadyExists) {
		t.Fatalf("duplicate create %+v", dup.Result)
	}

	var rr types.ReadFileReply
	call("RPCReadFile", types.ReadFileArg{Path: "/r/a.txt"}, &rr)
	if !rr.Success || string(rr.Data) != "hello rpc" {
		t.Fatalf("read %+v %q", rr.Result, rr.Data)
	}

	var info types.GetFileInfoReply
	call("RPCGetFileInfo", types.GetFileInfoArg{Path: "/nope"}, &info)
	if info.Success || !errors.Is(info.Err(), types.ErrNotFound) || info.Info.FileID != "" {
		t.Fatalf("info of missing file %+v", info)
	}

	var ls types.ListReply
	call("RPCList", types.ListArg{Prefix: "/r"}, &ls)
	if len(ls.Paths) != 1 || ls.Paths[0] != "/r/a.txt" {
		t.Fatalf("list %v", ls.Paths)
	}

	var st types.StatsReply
	call("RPCStats", types.StatsArg{}, &st)
	if st.Stats.TotalFiles != 1 || st.Stats.ActiveNodes != 1 {
		t.Fatalf("stats %+v", st.Stats)
	}

	var del types.DeleteFileReply
	call("RPCDeleteFile", types.DeleteFileArg{Path: "/r/a.txt"}, &del)
	if !del.Success {
		t.Fatalf("delete %+v", del.Result)
	}
	var ex types.FileExistReply
	call("RPCFileExist", types.FileExistArg{Path: "/r/a.txt"}, &ex)
	if ex.Ok {
		t.Fatal("deleted file exists")
	}
	var again types.DeleteFileReply
	call("RPCDeleteFile", types.DeleteFileArg{Path: "/r/a.txt"}, &again)
	if again.Success || types.CodeOf(again.Err()) != types.ErrNotFoundCode {
		t.Fatalf("second delete %+v", again.Result)
	}
}
