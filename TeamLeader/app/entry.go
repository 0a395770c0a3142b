package leader

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
	"queryfabric/Common/dataset"
	"queryfabric/Common/logging"
	"queryfabric/Common/wire"
)

const DefaultConfigPath = "config/network.yaml"

// Run starts a team-leader node. Args: positional node id or --node, plus
// optional --config, --data-dir, --log-level.
func Run(args []string) error {
	fs := flag.NewFlagSet("teamleader", flag.ContinueOnError)
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
	if self.Role != config.RoleTeamLeader {
		return fmt.Errorf("node %s has role %s, not %s", nodeID, self.Role, config.RoleTeamLeader)
	}
	gatewayNode, err := topo.Gateway()
	if err != nil {
		return err
	}

	log, err := logging.New(nodeID, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	sched := newSchedulerState(log)
	for _, worker := range topo.TeamWorkers(self.Team) {
		sched.EnsureWorker(worker.ID, worker.CapacityScore)
	}
	tracker := control.NewTracker(nodeID, sched.PendingTaskCount)
	gateway := newGatewayLink(gatewayNode.Address(), log)
	defer gateway.Close()

	grpcServer := grpc.NewServer()
	stopAfter := func(delay time.Duration) {
		time.AfterFunc(delay, grpcServer.GracefulStop)
	}

	wire.RegisterTeamIngressServer(grpcServer, &ingressServer{
		nodeID:   nodeID,
		team:     self.Team,
		dataDir:  *dataDir,
		sched:    sched,
		datasets: dataset.NewCache(dataset.DefaultIndexStride),
		gateway:  gateway,
		tracker:  tracker,
		log:      log,
	})
	wire.RegisterNodeControlServer(grpcServer, &controlServer{
		nodeID:  nodeID,
		sched:   sched,
		tracker: tracker,
		log:     log,
		stopFn:  stopAfter,
	})

	maintenance := newMaintenanceLoop(sched, log)
	maintenance.Start()
	defer maintenance.Stop()

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
	log.Info("team leader running",
		zap.String("team", self.Team),
		zap.String("addr", self.Address()))
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
