package worker

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"queryfabric/Common/config"
	"queryfabric/Common/control"
	"queryfabric/Common/dataset"
	"queryfabric/Common/logging"
	"queryfabric/Common/wire"
)

const (
	DefaultConfigPath = "config/network.yaml"

	// SlowdownEnv injects an artificial per-task delay, in milliseconds,
	// into node D only. Other nodes ignore it.
	SlowdownEnv  = "MINI3_SLOW_D_MS"
	slowdownNode = "D"
)

func slowdownFor(nodeID string) time.Duration {
	if nodeID != slowdownNode {
		return 0
	}
	raw := os.Getenv(SlowdownEnv)
	if raw == "" {
		return 0
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Run starts a worker node. Args: positional node id or --node, plus
// optional --config, --data-dir, --log-level.
func Run(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	nodeFlag := fs.String("node", "", "node id")
	cfgPath := fs.String("config", DefaultConfigPath, "topology file")
	dataDir := fs.String("data-dir", "data", "dataset directory")
	level := fs.String("log-level", "info", "debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	nodeID := *nodeFlag
	if nodeID == "" && fs.NArg() > 0 {
		nodeID = fs.Arg(0)
	}
	if nodeID == "" {
		return errors.New("node id required (positional or --node)")
	}

	topo, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	self, err := topo.Node(nodeID)
	if err != nil {
		return err
	}
	if self.Role != config.RoleWorker {
		return fmt.Errorf("node %s has role %s, not %s", nodeID, self.Role, config.RoleWorker)
	}
	leaderNode, err := topo.TeamLeader(self.Team)
	if err != nil {
		return err
	}

	log, err := logging.New(nodeID, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	slowdown := slowdownFor(nodeID)
	if slowdown > 0 {
		log.Warn("artificial task slowdown enabled", zap.Duration("delay", slowdown))
	}

	leader := newLeaderLink(leaderNode.Address())
	defer leader.Close()

	node := &workerNode{
		nodeID:   nodeID,
		team:     self.Team,
		capacity: self.CapacityScore,
		dataDir:  *dataDir,
		slowdown: slowdown,
		leader:   leader,
		datasets: dataset.NewCache(dataset.DefaultIndexStride),
		log:      log,
		stopCh:   make(chan struct{}),
	}
	tracker := control.NewTracker(nodeID, node.Pending)

	grpcServer := grpc.NewServer()
	stopAfter := func(delay time.Duration) {
		time.AfterFunc(delay, grpcServer.GracefulStop)
	}
	wire.RegisterNodeControlServer(grpcServer, &controlServer{
		nodeID:  nodeID,
		tracker: tracker,
		log:     log,
		stopFn:  stopAfter,
	})

	go node.pullLoop()
	go node.heartbeatLoop()
	defer node.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		tracker.BeginShutdown()
		grpcServer.GracefulStop()
	}()

	lis, err := net.Listen("tcp", self.Address())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Info("worker running",
		zap.String("team", self.Team),
		zap.String("leader", leaderNode.Address()),
		zap.String("addr", self.Address()))
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
