package client

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"queryfabric/Common/config"
	"queryfabric/Common/console"
	"queryfabric/Common/wire"
)

const controlTimeout = 3 * time.Second

func handleClose(args []string) error {
	fs := flag.NewFlagSet("close", flag.ContinueOnError)
	cfgPath := fs.String("config", DefaultConfigPath, "topology file")
	gateway := fs.String("gateway", "", "gateway address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("session id is required")
	}
	sessionID := fs.Arg(0)

	addr, err := gatewayAddress(*gateway, *cfgPath)
	if err != nil {
		return err
	}
	conn, err := wire.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	resp, err := wire.NewClientGatewayClient(conn).Close(ctx, &wire.CloseRequest{SessionID: sessionID})
	if err != nil {
		return err
	}
	if resp.Success {
		fmt.Printf("%s session %s closed\n", console.TagSuccess(), sessionID)
	} else {
		fmt.Printf("%s session %s not closed\n", console.TagWarn(), sessionID)
	}
	return nil
}

// handleStatus queries the NodeControl surface of one node or the whole
// topology and renders a table. Unreachable nodes get a row too.
func handleStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cfgPath := fs.String("config", DefaultConfigPath, "topology file")
	nodeID := fs.String("node", "", "single node id (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	topo, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	nodes := topo.Nodes
	if *nodeID != "" {
		node, err := topo.Node(*nodeID)
		if err != nil {
			return err
		}
		nodes = []config.Node{node}
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NODE\tROLE\tSTATE\tQUEUE\tREQUESTS\tUPTIME\tMEMORY")
	for _, node := range nodes {
		status, err := fetchStatus(node.Address())
		if err != nil {
			fmt.Fprintf(writer, "%s\t%s\tUNREACHABLE\t-\t-\t-\t-\n", node.ID, node.Role)
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			node.ID, node.Role, status.State, status.QueueSize, status.RequestsProcessed,
			console.FormatDuration(time.Duration(status.UptimeSeconds)*time.Second),
			console.FormatBytes(int64(status.MemoryBytes)))
	}
	return writer.Flush()
}

func fetchStatus(addr string) (*wire.StatusResponse, error) {
	conn, err := wire.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	return wire.NewNodeControlClient(conn).Status(ctx, &wire.StatusRequest{From: "client"})
}

func handleShutdown(args []string) error {
	fs := flag.NewFlagSet("shutdown", flag.ContinueOnError)
	cfgPath := fs.String("config", DefaultConfigPath, "topology file")
	delay := fs.Int("delay", 0, "seconds before the node stops serving")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("node id is required")
	}

	topo, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	node, err := topo.Node(fs.Arg(0))
	if err != nil {
		return err
	}

	conn, err := wire.Dial(node.Address())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	resp, err := wire.NewNodeControlClient(conn).Shutdown(ctx, &wire.ShutdownRequest{
		From:         "client",
		DelaySeconds: *delay,
	})
	if err != nil {
		return err
	}
	if resp.Acknowledged {
		fmt.Printf("%s node %s shutting down in %ds\n", console.TagSuccess(), resp.NodeID, *delay)
	} else {
		fmt.Printf("%s node %s refused shutdown\n", console.TagWarn(), node.ID)
	}
	return nil
}
