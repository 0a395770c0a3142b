package wire

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens an insecure connection to target with the JSON codec selected
// for every call. Connections are lazy; the first RPC pays the connect cost.
func Dial(target string) (*grpc.ClientConn, error) {
	conn, err := grpc.Dial(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

// NodeControlClient calls the NodeControl surface of any node.
type NodeControlClient struct {
	cc grpc.ClientConnInterface
}

func NewNodeControlClient(cc grpc.ClientConnInterface) *NodeControlClient {
	return &NodeControlClient{cc: cc}
}

func (c *NodeControlClient) Ping(ctx context.Context, in *Heartbeat, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/queryfabric.NodeControl/Ping", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeControlClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/queryfabric.NodeControl/Status", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeControlClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	out := new(ShutdownResponse)
	if err := c.cc.Invoke(ctx, "/queryfabric.NodeControl/Shutdown", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TeamIngressClient calls the TeamIngress surface of a team leader or the
// gateway.
type TeamIngressClient struct {
	cc grpc.ClientConnInterface
}

func NewTeamIngressClient(cc grpc.ClientConnInterface) *TeamIngressClient {
	return &TeamIngressClient{cc: cc}
}

func (c *TeamIngressClient) HandleRequest(ctx context.Context, in *Request, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/queryfabric.TeamIngress/HandleRequest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TeamIngressClient) PushWorkerResult(ctx context.Context, in *ChunkResult, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/queryfabric.TeamIngress/PushWorkerResult", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TeamIngressClient) RequestTask(ctx context.Context, in *TaskRequest, opts ...grpc.CallOption) (*Task, error) {
	out := new(Task)
	if err := c.cc.Invoke(ctx, "/queryfabric.TeamIngress/RequestTask", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ClientGatewayClient calls the session surface of the gateway.
type ClientGatewayClient struct {
	cc grpc.ClientConnInterface
}

func NewClientGatewayClient(cc grpc.ClientConnInterface) *ClientGatewayClient {
	return &ClientGatewayClient{cc: cc}
}

func (c *ClientGatewayClient) Start(ctx context.Context, in *Request, opts ...grpc.CallOption) (*StartResponse, error) {
	out := new(StartResponse)
	if err := c.cc.Invoke(ctx, "/queryfabric.ClientGateway/Start", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ClientGatewayClient) GetNext(ctx context.Context, in *NextChunkRequest, opts ...grpc.CallOption) (*NextChunkResponse, error) {
	out := new(NextChunkResponse)
	if err := c.cc.Invoke(ctx, "/queryfabric.ClientGateway/GetNext", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ClientGatewayClient) PollNext(ctx context.Context, in *PollRequest, opts ...grpc.CallOption) (*PollResponse, error) {
	out := new(PollResponse)
	if err := c.cc.Invoke(ctx, "/queryfabric.ClientGateway/PollNext", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ClientGatewayClient) Close(ctx context.Context, in *CloseRequest, opts ...grpc.CallOption) (*CloseResponse, error) {
	out := new(CloseResponse)
	if err := c.cc.Invoke(ctx, "/queryfabric.ClientGateway/Close", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
