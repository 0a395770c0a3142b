package wire

import (
	"context"

	"google.golang.org/grpc"
)

// The three service surfaces, registered per role:
//   NodeControl   - every node (liveness, status, shutdown)
//   TeamIngress   - team leaders and the gateway (requests, results, task pulls)
//   ClientGateway - the gateway only (session lifecycle)
//
// Service descriptors are written out by hand so the wire contract lives in
// one reviewable place; the registered JSON codec keeps the records plain Go
// structs.

// NodeControlServer is implemented by every node.
type NodeControlServer interface {
	Ping(context.Context, *Heartbeat) (*Ack, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
}

// TeamIngressServer is implemented by team leaders and the gateway.
type TeamIngressServer interface {
	HandleRequest(context.Context, *Request) (*Ack, error)
	PushWorkerResult(context.Context, *ChunkResult) (*Ack, error)
	RequestTask(context.Context, *TaskRequest) (*Task, error)
}

// ClientGatewayServer is implemented by the gateway.
type ClientGatewayServer interface {
	Start(context.Context, *Request) (*StartResponse, error)
	GetNext(context.Context, *NextChunkRequest) (*NextChunkResponse, error)
	PollNext(context.Context, *PollRequest) (*PollResponse, error)
	Close(context.Context, *CloseRequest) (*CloseResponse, error)
}

func RegisterNodeControlServer(s grpc.ServiceRegistrar, srv NodeControlServer) {
	s.RegisterService(&NodeControlServiceDesc, srv)
}

func RegisterTeamIngressServer(s grpc.ServiceRegistrar, srv TeamIngressServer) {
	s.RegisterService(&TeamIngressServiceDesc, srv)
}

func RegisterClientGatewayServer(s grpc.ServiceRegistrar, srv ClientGatewayServer) {
	s.RegisterService(&ClientGatewayServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(ctx context.Context, in *Req) (*Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// NodeControlServiceDesc wires NodeControlServer methods to their RPC names.
var NodeControlServiceDesc = grpc.ServiceDesc{
	ServiceName: "queryfabric.NodeControl",
	HandlerType: (*NodeControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.NodeControl/Ping", srv.(NodeControlServer).Ping)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Status",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.NodeControl/Status", srv.(NodeControlServer).Status)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Shutdown",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.NodeControl/Shutdown", srv.(NodeControlServer).Shutdown)(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

// TeamIngressServiceDesc wires TeamIngressServer methods to their RPC names.
var TeamIngressServiceDesc = grpc.ServiceDesc{
	ServiceName: "queryfabric.TeamIngress",
	HandlerType: (*TeamIngressServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "HandleRequest",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.TeamIngress/HandleRequest", srv.(TeamIngressServer).HandleRequest)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "PushWorkerResult",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.TeamIngress/PushWorkerResult", srv.(TeamIngressServer).PushWorkerResult)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "RequestTask",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.TeamIngress/RequestTask", srv.(TeamIngressServer).RequestTask)(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

// ClientGatewayServiceDesc wires ClientGatewayServer methods to their RPC names.
var ClientGatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: "queryfabric.ClientGateway",
	HandlerType: (*ClientGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Start",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.ClientGateway/Start", srv.(ClientGatewayServer).Start)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "GetNext",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.ClientGateway/GetNext", srv.(ClientGatewayServer).GetNext)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "PollNext",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.ClientGateway/PollNext", srv.(ClientGatewayServer).PollNext)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Close",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return unaryHandler("/queryfabric.ClientGateway/Close", srv.(ClientGatewayServer).Close)(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}
