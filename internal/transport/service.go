package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "hlc.v1.Clock"

	nowMethod       = "/" + serviceName + "/Now"
	exchangeMethod  = "/" + serviceName + "/Exchange"
	replicateMethod = "/" + serviceName + "/Replicate"
	fetchMethod     = "/" + serviceName + "/Fetch"
)

// ClockServer is the server API for the hlc.v1.Clock service.
type ClockServer interface {
	// Now returns the server's current timestamp without advancing it.
	Now(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	// Exchange merges the caller's timestamp and returns the merged result.
	Exchange(context.Context, *wrapperspb.UInt64Value) (*wrapperspb.UInt64Value, error)
	// Replicate applies a write with its original version.
	Replicate(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// Fetch returns the local version of a key.
	Fetch(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RegisterClockServer registers srv on s.
func RegisterClockServer(s grpc.ServiceRegistrar, srv ClockServer) {
	s.RegisterService(&clockServiceDesc, srv)
}

var clockServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ClockServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Now", Handler: nowHandler},
		{MethodName: "Exchange", Handler: exchangeHandler},
		{MethodName: "Replicate", Handler: replicateHandler},
		{MethodName: "Fetch", Handler: fetchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hlc/v1/clock.proto",
}

func nowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClockServer).Now(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nowMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClockServer).Now(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClockServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: exchangeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClockServer).Exchange(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func replicateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClockServer).Replicate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: replicateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClockServer).Replicate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func fetchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClockServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fetchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClockServer).Fetch(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
