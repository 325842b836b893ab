package lockdown

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lockdown.v1.LockdownService"

// Method names.
const (
	MethodStartCountdown    = "StartCountdown"
	MethodSetDailyWindow    = "SetDailyWindow"
	MethodCancelDailyWindow = "CancelDailyWindow"
	MethodLockNow           = "LockNow"
	MethodGetStatus         = "GetStatus"
)

// FullMethod returns the invoke path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// LockdownServer is the server API of the control service.
type LockdownServer interface {
	StartCountdown(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
	SetDailyWindow(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	CancelDailyWindow(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	LockNow(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the control service for grpc.ServiceRegistrar.
//
//nolint:gochecknoglobals // Descriptor tables are package state in generated code too.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LockdownServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodStartCountdown, Handler: unary(MethodStartCountdown, LockdownServer.StartCountdown)},
		{MethodName: MethodSetDailyWindow, Handler: unary(MethodSetDailyWindow, LockdownServer.SetDailyWindow)},
		{MethodName: MethodCancelDailyWindow, Handler: unary(MethodCancelDailyWindow, LockdownServer.CancelDailyWindow)},
		{MethodName: MethodLockNow, Handler: unary(MethodLockNow, LockdownServer.LockNow)},
		{MethodName: MethodGetStatus, Handler: unary(MethodGetStatus, LockdownServer.GetStatus)},
	},
	Metadata: "lockdown/v1/lockdown.proto",
}

// Register attaches srv to registrar.
func Register(registrar grpc.ServiceRegistrar, srv LockdownServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to grpc.MethodHandler, honouring interceptors.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](
	method string,
	call func(LockdownServer, context.Context, PReq) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(LockdownServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(PReq)

			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}
