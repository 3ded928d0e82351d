package peering

import (
	"context"

	"google.golang.org/grpc"
)

// IRCPeerServer is the service presbrey-pkg/irc/peering.go expects its
// generated pb.IRCPeerServer to provide; written by hand here since
// the generated package is absent from the example pack, and wired
// into grpc through a hand-built grpc.ServiceDesc below rather than a
// protoc-generated one.
type IRCPeerServer interface {
	ClientJoined(context.Context, *ClientInfo) (*Ack, error)
	ClientLeft(context.Context, *ClientInfo) (*Ack, error)
	RelayMessage(context.Context, *MessageRequest) (*Ack, error)
	PublishBan(context.Context, *BanWireMessage) (*Ack, error)
	SyncState(context.Context, *SyncRequest) (*SyncResponse, error)
}

// IRCPeerClient is the client-side counterpart, standing in for
// pb.IRCPeerClient.
type IRCPeerClient interface {
	ClientJoined(ctx context.Context, in *ClientInfo, opts ...grpc.CallOption) (*Ack, error)
	ClientLeft(ctx context.Context, in *ClientInfo, opts ...grpc.CallOption) (*Ack, error)
	RelayMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Ack, error)
	PublishBan(ctx context.Context, in *BanWireMessage, opts ...grpc.CallOption) (*Ack, error)
	SyncState(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error)
}

const serviceName = "peering.IRCPeer"

// serviceDesc is the hand-written equivalent of the
// `*_grpc.pb.go` ServiceDesc protoc-gen-go-grpc would normally emit;
// each handler decodes its request with the registered json codec
// (codec.go) instead of proto.Unmarshal.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*IRCPeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ClientJoined", Handler: handleClientJoined},
		{MethodName: "ClientLeft", Handler: handleClientLeft},
		{MethodName: "RelayMessage", Handler: handleRelayMessage},
		{MethodName: "PublishBan", Handler: handlePublishBan},
		{MethodName: "SyncState", Handler: handleSyncState},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ircd/peering/service.proto",
}

func handleClientJoined(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClientInfo)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IRCPeerServer).ClientJoined(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ClientJoined"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IRCPeerServer).ClientJoined(ctx, req.(*ClientInfo))
	}
	return interceptor(ctx, in, info, handler)
}

func handleClientLeft(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClientInfo)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IRCPeerServer).ClientLeft(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ClientLeft"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IRCPeerServer).ClientLeft(ctx, req.(*ClientInfo))
	}
	return interceptor(ctx, in, info, handler)
}

func handleRelayMessage(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IRCPeerServer).RelayMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RelayMessage"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IRCPeerServer).RelayMessage(ctx, req.(*MessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handlePublishBan(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BanWireMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IRCPeerServer).PublishBan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PublishBan"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IRCPeerServer).PublishBan(ctx, req.(*BanWireMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func handleSyncState(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SyncRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IRCPeerServer).SyncState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SyncState"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IRCPeerServer).SyncState(ctx, req.(*SyncRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// clientConn wraps a grpc.ClientConn, forcing every call onto the json
// content-subtype registered in codec.go.
type clientConn struct {
	cc *grpc.ClientConn
}

// newIRCPeerClient stands in for pb.NewIRCPeerClient.
func newIRCPeerClient(cc *grpc.ClientConn) IRCPeerClient {
	return &clientConn{cc: cc}
}

func (c *clientConn) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}

func (c *clientConn) ClientJoined(ctx context.Context, in *ClientInfo, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/ClientJoined", in, out, c.callOpts(opts)...)
	return out, err
}

func (c *clientConn) ClientLeft(ctx context.Context, in *ClientInfo, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/ClientLeft", in, out, c.callOpts(opts)...)
	return out, err
}

func (c *clientConn) RelayMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/RelayMessage", in, out, c.callOpts(opts)...)
	return out, err
}

func (c *clientConn) PublishBan(ctx context.Context, in *BanWireMessage, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/PublishBan", in, out, c.callOpts(opts)...)
	return out, err
}

func (c *clientConn) SyncState(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	out := new(SyncResponse)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SyncState", in, out, c.callOpts(opts)...)
	return out, err
}
