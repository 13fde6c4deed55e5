package dispatchv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "dispatch.v1.DispatchService"

const (
	MethodPublish     = "/" + ServiceName + "/Publish"
	MethodSubscribe   = "/" + ServiceName + "/Subscribe"
	MethodUnsubscribe = "/" + ServiceName + "/Unsubscribe"
	MethodStats       = "/" + ServiceName + "/Stats"
)

// DispatchServer is implemented by the server side of the service.
type DispatchServer interface {
	Publish(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, Dispatch_SubscribeServer) error
	Unsubscribe(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Dispatch_SubscribeServer is the server half of the Subscribe stream.
type Dispatch_SubscribeServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type subscribeServer struct {
	grpc.ServerStream
}

func (x *subscribeServer) Send(m *structpb.Struct) error { return x.ServerStream.SendMsg(m) }

func unary[Req any, Resp any](method string, call func(DispatchServer, context.Context, *Req) (Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			resp, err := call(srv.(DispatchServer), ctx, req.(*Req))
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DispatchServer).Subscribe(in, &subscribeServer{stream})
}

// ServiceDesc describes DispatchService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DispatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: unary(MethodPublish, DispatchServer.Publish)},
		{MethodName: "Unsubscribe", Handler: unary(MethodUnsubscribe, DispatchServer.Unsubscribe)},
		{MethodName: "Stats", Handler: unary(MethodStats, DispatchServer.Stats)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "dispatch/v1/dispatch.proto",
}

// RegisterDispatchServer registers srv on s.
func RegisterDispatchServer(s grpc.ServiceRegistrar, srv DispatchServer) {
	s.RegisterService(&ServiceDesc, srv)
}
