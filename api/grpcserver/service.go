package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "lockfree.v1.Containers"

// ContainersServer is the server API of lockfree.v1.Containers. Messages
// are well-known types, so no generated code is needed.
type ContainersServer interface {
	StackPush(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	StackPop(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	QueuePush(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	QueuePop(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stress(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ContainersServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StackPush", newBytes, ContainersServer.StackPush),
		unary("StackPop", newEmpty, ContainersServer.StackPop),
		unary("QueuePush", newBytes, ContainersServer.QueuePush),
		unary("QueuePop", newEmpty, ContainersServer.QueuePop),
		unary("Stats", newEmpty, ContainersServer.Stats),
		unary("Stress", newStruct, ContainersServer.Stress),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lockfree/v1/containers.proto",
}

func Register(s grpc.ServiceRegistrar, srv ContainersServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func newBytes() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) }
func newEmpty() *emptypb.Empty         { return new(emptypb.Empty) }
func newStruct() *structpb.Struct      { return new(structpb.Struct) }

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func unary[Req, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(ContainersServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ContainersServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ContainersServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
