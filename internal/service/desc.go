package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gohome.lyric.v1.LyricService"

// LyricServer is the server API for LyricService. Requests and responses are
// google.protobuf.Struct messages keyed in snake_case.
type LyricServer interface {
	ListLocations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDeviceState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateThermostat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateFan(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(LyricServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LyricServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LyricServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes LyricService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LyricServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListLocations", LyricServer.ListLocations),
		unary("ListDevices", LyricServer.ListDevices),
		unary("GetDeviceState", LyricServer.GetDeviceState),
		unary("UpdateThermostat", LyricServer.UpdateThermostat),
		unary("UpdateFan", LyricServer.UpdateFan),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gohome/lyric/v1/lyric.proto",
}

// Client calls LyricService over a gRPC connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListLocations(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListLocations", in, opts...)
}

func (c *Client) ListDevices(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListDevices", in, opts...)
}

func (c *Client) GetDeviceState(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetDeviceState", in, opts...)
}

func (c *Client) UpdateThermostat(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "UpdateThermostat", in, opts...)
}

func (c *Client) UpdateFan(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "UpdateFan", in, opts...)
}
