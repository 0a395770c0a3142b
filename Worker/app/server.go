package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"queryfabric/Common/control"
	"queryfabric/Common/wire"
)

// controlServer serves the worker's NodeControl surface. Workers never
// receive Pings in a healthy topology but answer them anyway.
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
