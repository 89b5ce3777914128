// Package v1 defines the ecsexec.v1.SessionService gRPC API.
//
// Messages are well-known protobuf types (google.protobuf.Struct and Value),
// so the service needs no generated code: requests are Structs whose fields
// are documented on the typed helpers in messages.go.
package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "ecsexec.v1.SessionService"

const (
	SessionService_ListClusters_FullMethodName  = "/ecsexec.v1.SessionService/ListClusters"
	SessionService_ListServices_FullMethodName  = "/ecsexec.v1.SessionService/ListServices"
	SessionService_ListTasks_FullMethodName     = "/ecsexec.v1.SessionService/ListTasks"
	SessionService_DescribeTasks_FullMethodName = "/ecsexec.v1.SessionService/DescribeTasks"
	SessionService_CheckTools_FullMethodName    = "/ecsexec.v1.SessionService/CheckTools"
	SessionService_Login_FullMethodName         = "/ecsexec.v1.SessionService/Login"
	SessionService_CancelLogin_FullMethodName   = "/ecsexec.v1.SessionService/CancelLogin"
	SessionService_StartSession_FullMethodName  = "/ecsexec.v1.SessionService/StartSession"
	SessionService_SendInput_FullMethodName     = "/ecsexec.v1.SessionService/SendInput"
	SessionService_CloseSession_FullMethodName  = "/ecsexec.v1.SessionService/CloseSession"
	SessionService_Watch_FullMethodName         = "/ecsexec.v1.SessionService/Watch"
)

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	ListClusters(context.Context, *structpb.Struct) (*structpb.Value, error)
	ListServices(context.Context, *structpb.Struct) (*structpb.Value, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Value, error)
	DescribeTasks(context.Context, *structpb.Struct) (*structpb.Value, error)
	CheckTools(context.Context, *structpb.Struct) (*structpb.Value, error)
	Login(context.Context, *structpb.Struct) (*structpb.Value, error)
	CancelLogin(context.Context, *structpb.Struct) (*structpb.Value, error)
	StartSession(context.Context, *structpb.Struct) (*structpb.Value, error)
	SendInput(context.Context, *structpb.Struct) (*structpb.Value, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Value, error)

	// Watch streams the events of one session. The first message has kind
	// "ready"; the stream ends after the "exit" event.
	Watch(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedSessionServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedSessionServiceServer struct{}

func (UnimplementedSessionServiceServer) ListClusters(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method ListClusters not implemented")
}

func (UnimplementedSessionServiceServer) ListServices(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method ListServices not implemented")
}

func (UnimplementedSessionServiceServer) ListTasks(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method ListTasks not implemented")
}

func (UnimplementedSessionServiceServer) DescribeTasks(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method DescribeTasks not implemented")
}

func (UnimplementedSessionServiceServer) CheckTools(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckTools not implemented")
}

func (UnimplementedSessionServiceServer) Login(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}

func (UnimplementedSessionServiceServer) CancelLogin(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelLogin not implemented")
}

func (UnimplementedSessionServiceServer) StartSession(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method StartSession not implemented")
}

func (UnimplementedSessionServiceServer) SendInput(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method SendInput not implemented")
}

func (UnimplementedSessionServiceServer) CloseSession(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method CloseSession not implemented")
}

func (UnimplementedSessionServiceServer) Watch(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method Watch not implemented")
}

// RegisterSessionServiceServer registers srv with s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionService_ServiceDesc, srv)
}

type unaryCall func(SessionServiceServer, context.Context, *structpb.Struct) (*structpb.Value, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(
		srv any,
		ctx context.Context,
		dec func(any) error,
		interceptor grpc.UnaryServerInterceptor,
	) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(SessionServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}

		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SessionServiceServer), ctx, req.(*structpb.Struct))
		}

		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(SessionServiceServer).Watch(
		in,
		&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream},
	)
}

// SessionService_ServiceDesc is the grpc.ServiceDesc for SessionService.
var SessionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListClusters",
			Handler:    unaryHandler(SessionService_ListClusters_FullMethodName, SessionServiceServer.ListClusters),
		},
		{
			MethodName: "ListServices",
			Handler:    unaryHandler(SessionService_ListServices_FullMethodName, SessionServiceServer.ListServices),
		},
		{
			MethodName: "ListTasks",
			Handler:    unaryHandler(SessionService_ListTasks_FullMethodName, SessionServiceServer.ListTasks),
		},
		{
			MethodName: "DescribeTasks",
			Handler:    unaryHandler(SessionService_DescribeTasks_FullMethodName, SessionServiceServer.DescribeTasks),
		},
		{
			MethodName: "CheckTools",
			Handler:    unaryHandler(SessionService_CheckTools_FullMethodName, SessionServiceServer.CheckTools),
		},
		{
			MethodName: "Login",
			Handler:    unaryHandler(SessionService_Login_FullMethodName, SessionServiceServer.Login),
		},
		{
			MethodName: "CancelLogin",
			Handler:    unaryHandler(SessionService_CancelLogin_FullMethodName, SessionServiceServer.CancelLogin),
		},
		{
			MethodName: "StartSession",
			Handler:    unaryHandler(SessionService_StartSession_FullMethodName, SessionServiceServer.StartSession),
		},
		{
			MethodName: "SendInput",
			Handler:    unaryHandler(SessionService_SendInput_FullMethodName, SessionServiceServer.SendInput),
		},
		{
			MethodName: "CloseSession",
			Handler:    unaryHandler(SessionService_CloseSession_FullMethodName, SessionServiceServer.CloseSession),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ecsexec/v1/session.proto",
}

// SessionServiceClient is the client API for SessionService.
type SessionServiceClient interface {
	ListClusters(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	ListServices(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	ListTasks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	DescribeTasks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	CheckTools(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	CancelLogin(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	StartSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	SendInput(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	CloseSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	Watch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type sessionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionServiceClient returns a client for SessionService over cc.
func NewSessionServiceClient(cc grpc.ClientConnInterface) SessionServiceClient {
	return &sessionServiceClient{cc}
}

func (c *sessionServiceClient) invoke(
	ctx context.Context,
	method string,
	in *structpb.Struct,
	opts []grpc.CallOption,
) (*structpb.Value, error) {
	out := new(structpb.Value)

	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, cOpts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *sessionServiceClient) ListClusters(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_ListClusters_FullMethodName, in, opts)
}

func (c *sessionServiceClient) ListServices(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_ListServices_FullMethodName, in, opts)
}

func (c *sessionServiceClient) ListTasks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_ListTasks_FullMethodName, in, opts)
}

func (c *sessionServiceClient) DescribeTasks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_DescribeTasks_FullMethodName, in, opts)
}

func (c *sessionServiceClient) CheckTools(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_CheckTools_FullMethodName, in, opts)
}

func (c *sessionServiceClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_Login_FullMethodName, in, opts)
}

func (c *sessionServiceClient) CancelLogin(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_CancelLogin_FullMethodName, in, opts)
}

func (c *sessionServiceClient) StartSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_StartSession_FullMethodName, in, opts)
}

func (c *sessionServiceClient) SendInput(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_SendInput_FullMethodName, in, opts)
}

func (c *sessionServiceClient) CloseSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return c.invoke(ctx, SessionService_CloseSession_FullMethodName, in, opts)
}

func (c *sessionServiceClient) Watch(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)

	stream, err := c.cc.NewStream(
		ctx,
		&SessionService_ServiceDesc.Streams[0],
		SessionService_Watch_FullMethodName,
		cOpts...,
	)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}

	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}

	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
