// Package client implements the command-line client for the query fabric:
// starting queries, streaming chunks back, and driving the control surface
// of individual nodes.
package client

import (
	"errors"
	"fmt"

	"queryfabric/Common/config"
)

const DefaultConfigPath = "config/network.yaml"

// Run dispatches one client subcommand: query, poll, close, status or
// shutdown.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("missing command (query|poll|close|status|shutdown)")
	}
	switch args[0] {
	case "query":
		return handleQuery(args[1:], false)
	case "poll":
		return handleQuery(args[1:], true)
	case "close":
		return handleClose(args[1:])
	case "status":
		return handleStatus(args[1:])
	case "shutdown":
		return handleShutdown(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Println("usage: client <command> [flags]")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  query     start a query and stream its chunks (blocking GetNext)")
	fmt.Println("  poll      start a query and drain it via the non-blocking cursor")
	fmt.Println("  close     release a session by id")
	fmt.Println("  status    show the control-plane status of every node")
	fmt.Println("  shutdown  ask one node to stop serving")
}

// gatewayAddress resolves the gateway target: an explicit --gateway wins,
// otherwise the topology file decides.
func gatewayAddress(override, cfgPath string) (string, error) {
	if override != "" {
		return override, nil
	}
	topo, err := config.Load(cfgPath)
	if err != nil {
		return "", err
	}
	gw, err := topo.Gateway()
	if err != nil {
		return "", err
	}
	return gw.Address(), nil
}
