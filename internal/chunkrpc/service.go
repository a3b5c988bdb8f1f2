package chunkrpc

import (
	"context"
	"dfs/internal/common"

	"google.golang.org/grpc"
)

const serviceName = "dfs.ChunkService"

// ChunkServer is the contract a storage node satisfies for the coordinator.
type ChunkServer interface {
	PutChunk(context.Context, *PutChunkRequest) (*PutChunkReply, error)
	GetChunk(context.Context, *GetChunkRequest) (*GetChunkReply, error)
	DeleteChunk(context.Context, *DeleteChunkRequest) (*DeleteChunkReply, error)
	ListChunks(context.Context, *ListChunksRequest) (*ListChunksReply, error)
	Stat(context.Context, *StatRequest) (*StatReply, error)
}

// msgHeadroom covers chunk id, checksum and field tags around the payload.
const msgHeadroom = 64 * 1024

// maxMessageSize fits the largest chunk the coordinator accepts. gRPC's
// 4MB default is smaller than one default sized chunk plus its header.
func maxMessageSize() int {
	return int(common.MaxChunkSize) + msgHeadroom
}

// ServerOptions returns the options a grpc.Server needs to host ChunkServer.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ForceServerCodec(wireCodec{}),
		grpc.MaxRecvMsgSize(maxMessageSize()),
		grpc.MaxSendMsgSize(maxMessageSize()),
	}
}

func RegisterChunkServer(s grpc.ServiceRegistrar, srv ChunkServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req any, PReq interface {
	*Req
	Message
}, Reply Message](method string, call func(ChunkServer, context.Context, PReq) (Reply, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChunkServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChunkServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ChunkServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PutChunk", ChunkServer.PutChunk),
		unary("GetChunk", ChunkServer.GetChunk),
		unary("DeleteChunk", ChunkServer.DeleteChunk),
		unary("ListChunks", ChunkServer.ListChunks),
		unary("Stat", ChunkServer.Stat),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chunk.proto",
}

// Client is the coordinator side of ChunkServer.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out Message) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.ForceCodec(wireCodec{}))
}

func (c *Client) PutChunk(ctx context.Context, in *PutChunkRequest) (*PutChunkReply, error) {
	out := new(PutChunkReply)
	return out, c.invoke(ctx, "PutChunk", in, out)
}

func (c *Client) GetChunk(ctx context.Context, in *GetChunkRequest) (*GetChunkReply, error) {
	out := new(GetChunkReply)
	return out, c.invoke(ctx, "GetChunk", in, out)
}

func (c *Client) DeleteChunk(ctx context.Context, in *DeleteChunkRequest) (*DeleteChunkReply, error) {
	out := new(DeleteChunkReply)
	return out, c.invoke(ctx, "DeleteChunk", in, out)
}

func (c *Client) ListChunks(ctx context.Context, in *ListChunksRequest) (*ListChunksReply, error) {
	out := new(ListChunksReply)
	return out, c.invoke(ctx, "ListChunks", in, out)
}

func (c *Client) Stat(ctx context.Context, in *StatRequest) (*StatReply, error) {
	out := new(StatReply)
	return out, c.invoke(ctx, "Stat", in, out)
}
