package leader

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"queryfabric/Common/control"
	"queryfabric/Common/dataset"
	"queryfabric/Common/wire"
)

const ForwardTimeout = 3 * time.Second

// gatewayLink is the team leader's outbound path: every chunk a worker
// pushes is forwarded upstream immediately. Transport failures are logged
// and dropped; the gateway's own deadline decides what a missing chunk
// means.
type gatewayLink struct {
	addr string
	log  *zap.Logger

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func newGatewayLink(addr string, log *zap.Logger) *gatewayLink {
	return &gatewayLink{addr: addr, log: log}
}

func (g *gatewayLink) client() (*wire.TeamIngressClient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		conn, err := wire.Dial(g.addr)
		if err != nil {
			return nil, err
		}
		g.conn = conn
	}
	return wire.NewTeamIngressClient(g.conn), nil
}

func (g *gatewayLink) Forward(result *wire.ChunkResult) {
	client, err := g.client()
	if err != nil {
		g.log.Error("gateway dial failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ForwardTimeout)
	defer cancel()
	if _, err := client.PushWorkerResult(ctx, result); err != nil {
		g.log.Error("forward to gateway failed",
			zap.String("request", result.RequestID),
			zap.Int("part", result.PartIndex),
			zap.Error(err))
	}
}

func (g *gatewayLink) Close() {
	g.mu.Lock()
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
	g.mu.Unlock()
}

// ingressServer serves the team leader's scheduling surface.
type ingressServer struct {
	nodeID   string
	team     string
	dataDir  string
	sched    *schedulerState
	datasets *dataset.Cache
	gateway  *gatewayLink
	tracker  *control.Tracker
	log      *zap.Logger
}

// HandleRequest schedules one request across the team and blocks until all
// chunks arrived or the team deadline fires. Chunks travel to the gateway
// as they arrive; the return value only tells the gateway whether the team
// could take the request at all.
func (s *ingressServer) HandleRequest(ctx context.Context, req *wire.Request) (*wire.Ack, error) {
	s.tracker.RecordRequest()

	var rows int64
	desc, err := s.datasets.Get(dataset.ResolvePath(s.dataDir, req.Query))
	if err != nil {
		s.log.Error("dataset load failed",
			zap.String("request", req.RequestID),
			zap.String("dataset", req.Query),
			zap.Error(err))
	} else {
		rows = desc.RowCount
	}

	expected, ok := s.sched.BeginRequest(req.RequestID, req.Query, rows)
	if !ok {
		s.log.Warn("no healthy workers, rejecting request", zap.String("request", req.RequestID))
		return &wire.Ack{OK: false}, nil
	}
	s.log.Info("request scheduled",
		zap.String("request", req.RequestID),
		zap.String("dataset", req.Query),
		zap.Int64("rows", rows),
		zap.Int("tasks", expected))

	results := s.sched.WaitForResults(req.RequestID, expected, TeamWaitTimeout)
	if len(results) < expected {
		s.log.Warn("team wait timed out",
			zap.String("request", req.RequestID),
			zap.Int("received", len(results)),
			zap.Int("expected", expected))
	} else {
		s.log.Info("request complete",
			zap.String("request", req.RequestID),
			zap.Int("chunks", len(results)))
	}
	return &wire.Ack{OK: true}, nil
}

// PushWorkerResult records a chunk and forwards it upstream. Late chunks
// for retired requests are forwarded too; the gateway discards what it no
// longer wants.
func (s *ingressServer) PushWorkerResult(ctx context.Context, result *wire.ChunkResult) (*wire.Ack, error) {
	s.sched.AddResult(*result)
	s.gateway.Forward(result)
	return &wire.Ack{OK: true}, nil
}

// RequestTask serves a worker's pull. An empty task means "ask again".
func (s *ingressServer) RequestTask(ctx context.Context, in *wire.TaskRequest) (*wire.Task, error) {
	task := s.sched.PullTask(in.WorkerID)
	if !task.IsEmpty() {
		s.log.Debug("task assigned",
			zap.String("worker", in.WorkerID),
			zap.String("request", task.RequestID),
			zap.Int("chunk", task.ChunkID))
	}
	return &task, nil
}

// controlServer serves the team leader's NodeControl surface. Worker
// heartbeats arrive here as Pings.
type controlServer struct {
	nodeID  string
	sched   *schedulerState
	tracker *control.Tracker
	log     *zap.Logger
	stopFn  func(delay time.Duration)
}

func (s *controlServer) Ping(ctx context.Context, hb *wire.Heartbeat) (*wire.Ack, error) {
	s.sched.RecordHeartbeat(hb.From, hb.RecentTaskMs, hb.QueueLen, hb.CapacityScore)
	return &wire.Ack{OK: true}, nil
}

func (s *controlServer) Status(ctx context.Context, _ *wire.StatusRequest) (*wire.StatusResponse, error) {
	return s.tracker.Snapshot(), nil
}

func (s *controlServer) Shutdown(ctx context.Context, req *wire.ShutdownRequest) (*wire.ShutdownResponse, error) {
	s.log.Info("shutdown requested",
		zap.String("from", req.From),
		zap.Int("delay_s", req.DelaySeconds))
	s.tracker.BeginShutdown()
	if s.stopFn != nil {
		s.stopFn(time.Duration(req.DelaySeconds) * time.Second)
	}
	return &wire.ShutdownResponse{Acknowledged: true, NodeID: s.nodeID}, nil
}
