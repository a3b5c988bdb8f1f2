package types

import "time"

// Result is the structured outcome every coordinator RPC returns. The RPC
// call itself succeeds; failures travel in Success/Code/Message.
type Result struct {
	Success        bool
	Code           int
	Message        string
	FileID         string
	BytesProcessed int64
}

func ResultOf(err error) Result {
	if err == nil {
		return Result{Success: true, Message: "ok"}
	}
	return Result{
		Success: false,
		Code:    CodeOf(err),
		Message: err.Error(),
	}
}

// Err turns a failed result back into an error wrapping the matching sentinel.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return Error{Code: r.Code, Err: r.Message}
}

// namespace operation
type CreateFileArg struct {
	Path Path
	Data []byte
}
type CreateFileReply struct {
	Result
	NumChunks       int
	UnderReplicated int
}

type UpdateFileArg struct {
	Path Path
	Data []byte
}
type UpdateFileReply struct {
	Result
	NumChunks       int
	UnderReplicated int
}

type ReadFileArg struct {
	Path Path
}
type ReadFileReply struct {
	Result
	Data []byte
}

type DeleteFileArg struct {
	Path Path
}
type DeleteFileReply struct {
	Result
}

type ListArg struct {
	Prefix Path
}
type ListReply struct {
	Result
	Paths []Path
}

type MkdirArg struct {
	Path Path
}
type MkdirReply struct {
	Result
}

type RmdirArg struct {
	Path Path
}
type RmdirReply struct {
	Result
	Removed int
}

type GetFileInfoArg struct {
	Path Path
}
type GetFileInfoReply struct {
	Result
	Info FileMetadata
}

type FileExistArg struct {
	Path Path
}
type FileExistReply struct {
	Result
	Ok bool
}

type AllMetadataArg struct{}
type AllMetadataReply struct {
	Result
	Files []FileMetadata
}

type StatsArg struct{}
type StatsReply struct {
	Result
	Stats Stats
}

type CollectArg struct{}
type CollectReply struct {
	Result
	Reclaimed int
}

type PingArg struct{}
type PingReply struct {
	Result
}

// membership
type RegisterArg struct {
	NodeID   string
	Address  string
	Port     int
	Capacity int64
	Used     int64
}
type RegisterReply struct {
	Result
}

type UnregisterArg struct {
	NodeID string
}
type UnregisterReply struct {
	Result
}

type HeartbeatArg struct {
	NodeID    string
	Timestamp time.Time
	// Used is the node's own view of its usage, ignored when negative.
	Used int64
}
type HeartbeatReply struct {
	Result
	// Known is false when the coordinator has no record of the node, e.g.
	// after a coordinator restart. The node should register again.
	Known bool
}

type NodesArg struct {
	ActiveOnly bool
}
type NodesReply struct {
	Result
	Nodes []StorageNodeInfo
}
