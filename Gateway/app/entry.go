package gateway

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"queryfabric/Common/config"
	"queryfabric/Common/control"
	"queryfabric/Common/logging"
	"queryfabric/Common/wire"
)

const DefaultConfigPath = "config/network.yaml"

// Run starts the gateway node. Args: positional node id or --node, plus
// optional --config, --log-level.
func Run(args []string) error {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	nodeFlag := fs.String("node", "", "node id")
	cfgPath := fs.String("config", DefaultConfigPath, "topology file")
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
	if self.Role != config.RoleLeader {
		return fmt.Errorf("node %s has role %s, not %s", nodeID, self.Role, config.RoleLeader)
	}

	log, err := logging.New(nodeID, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	sessions := newSessionManager(log)
	sessions.StartCleaner()
	defer sessions.StopCleaner()

	agg := newAggregator()
	fan := newFanout(topo, agg, sessions, log)
	defer fan.Close()

	tracker := control.NewTracker(nodeID, sessions.OpenCount)

	grpcServer := grpc.NewServer()
	stopAfter := func(delay time.Duration) {
		time.AfterFunc(delay, grpcServer.GracefulStop)
	}

	wire.RegisterClientGatewayServer(grpcServer, &gatewayServer{
		nodeID:   nodeID,
		sessions: sessions,
		fan:      fan,
		tracker:  tracker,
		log:      log,
	})
	wire.RegisterTeamIngressServer(grpcServer, &ingressServer{agg: agg, log: log})
	wire.RegisterNodeControlServer(grpcServer, &controlServer{
		nodeID:  nodeID,
		tracker: tracker,
		log:     log,
		stopFn:  stopAfter,
	})

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
	log.Info("gateway running", zap.String("addr", self.Address()))
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
