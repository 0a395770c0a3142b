package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"queryfabric/Common/control"
	"queryfabric/Common/wire"
)

// gatewayServer terminates client sessions.
type gatewayServer struct {
	nodeID   string
	sessions *sessionManager
	fan      *fanout
	tracker  *control.Tracker
	log      *zap.Logger
}

// Start opens a session and detaches the background processor. The session
// id, not the client's request id, keys everything downstream so that two
// clients reusing a request id never collide.
func (s *gatewayServer) Start(ctx context.Context, req *wire.Request) (*wire.StartResponse, error) {
	s.tracker.RecordRequest()
	sessionID := s.sessions.Create()
	s.log.Info("session opened",
		zap.String("session", sessionID),
		zap.String("client_request", req.RequestID),
		zap.String("dataset", req.Query),
		zap.Bool("green", req.NeedGreen),
		zap.Bool("pink", req.NeedPink))

	internal := *req
	internal.RequestID = sessionID
	go s.fan.Process(sessionID, internal)

	return &wire.StartResponse{
		SessionID:   sessionID,
		Accepted:    true,
		Status:      "QUEUED",
		TimestampMs: time.Now().UnixMilli(),
	}, nil
}

func (s *gatewayServer) GetNext(ctx context.Context, req *wire.NextChunkRequest) (*wire.NextChunkResponse, error) {
	payload, hasMore, ok := s.sessions.GetNext(req.SessionID, req.Index)
	if !ok {
		s.log.Warn("get next on unknown session", zap.String("session", req.SessionID))
		return &wire.NextChunkResponse{SessionID: req.SessionID, HasMore: false}, nil
	}
	return &wire.NextChunkResponse{
		SessionID: req.SessionID,
		Chunk:     payload,
		HasMore:   hasMore,
	}, nil
}

func (s *gatewayServer) PollNext(ctx context.Context, req *wire.PollRequest) (*wire.PollResponse, error) {
	payload, ready, hasMore, ok := s.sessions.PollNext(req.SessionID)
	if !ok {
		s.log.Warn("poll on unknown session", zap.String("session", req.SessionID))
		return &wire.PollResponse{SessionID: req.SessionID, Ready: false, HasMore: false}, nil
	}
	return &wire.PollResponse{
		SessionID: req.SessionID,
		Ready:     ready,
		Chunk:     payload,
		HasMore:   hasMore,
	}, nil
}

func (s *gatewayServer) Close(ctx context.Context, req *wire.CloseRequest) (*wire.CloseResponse, error) {
	s.sessions.Remove(req.SessionID)
	s.log.Info("session closed", zap.String("session", req.SessionID))
	return &wire.CloseResponse{Success: true}, nil
}

// ingressServer receives chunks forwarded by team leaders. The gateway
// never schedules, so the other ingress calls answer with refusals.
type ingressServer struct {
	agg *aggregator
	log *zap.Logger
}

func (s *ingressServer) HandleRequest(ctx context.Context, req *wire.Request) (*wire.Ack, error) {
	s.log.Warn("handle request on gateway ingress", zap.String("request", req.RequestID))
	return &wire.Ack{OK: false}, nil
}

func (s *ingressServer) PushWorkerResult(ctx context.Context, result *wire.ChunkResult) (*wire.Ack, error) {
	if !s.agg.Add(*result) {
		s.log.Debug("late chunk discarded",
			zap.String("request", result.RequestID),
			zap.Int("part", result.PartIndex))
	}
	return &wire.Ack{OK: true}, nil
}

func (s *ingressServer) RequestTask(ctx context.Context, in *wire.TaskRequest) (*wire.Task, error) {
	return &wire.Task{}, nil
}

// controlServer serves the gateway's NodeControl surface.
type controlServer struct {
	nodeID  string
	tracker *control.Tracker
	log     *zap.Logger
	stopFn  func(delay time.Duration)
}

func (s *controlServer) Ping(ctx context.Context, hb *wire.Heartbeat) (*wire.Ack, error) {
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
