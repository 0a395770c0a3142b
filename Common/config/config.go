// Package config loads the fabric topology from a YAML document. The file
// fixes the six-node layout: which node is the gateway, which are team
// leaders, who belongs to which team, and where everyone listens.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Node roles as they appear in the topology file.
const (
	RoleLeader     = "LEADER"
	RoleTeamLeader = "TEAM_LEADER"
	RoleWorker     = "WORKER"
)

// Node describes one process in the fabric.
type Node struct {
	ID            string  `yaml:"id"`
	Role          string  `yaml:"role"`
	Host          string  `yaml:"host"`
	Port          int     `yaml:"port"`
	Team          string  `yaml:"team"`
	CapacityScore int     `yaml:"capacity_score"`
}

// Address returns the host:port the node listens on.
func (n Node) Address() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// Edge is one informational overlay link. The fabric does not route by
// edges; the role and team fields decide who talks to whom.
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Segment names a shared-memory region consumed by external inspection
// tooling. Parsed and validated, otherwise unused by the fabric itself.
type Segment struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type SharedMemory struct {
	Segments []Segment `yaml:"segments"`
}

// Topology is the whole parsed configuration file.
type Topology struct {
	Nodes         []Node       `yaml:"nodes"`
	Overlay       []Edge       `yaml:"overlay"`
	ClientGateway string       `yaml:"client_gateway"`
	SharedMemory  SharedMemory `yaml:"shared_memory"`
}

// Load reads and validates a topology file.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := topo.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &topo, nil
}

func (t *Topology) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("no nodes defined")
	}
	seen := make(map[string]bool, len(t.Nodes))
	for _, node := range t.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}
		seen[node.ID] = true
		switch node.Role {
		case RoleLeader, RoleTeamLeader, RoleWorker:
		default:
			return fmt.Errorf("node %s: unknown role %q", node.ID, node.Role)
		}
		if node.Host == "" || node.Port <= 0 {
			return fmt.Errorf("node %s: missing host or port", node.ID)
		}
		if node.Role != RoleLeader && node.Team == "" {
			return fmt.Errorf("node %s: role %s requires a team", node.ID, node.Role)
		}
	}
	if t.ClientGateway != "" && !seen[t.ClientGateway] {
		return fmt.Errorf("client_gateway %q is not a configured node", t.ClientGateway)
	}
	for _, edge := range t.Overlay {
		if !seen[edge.From] || !seen[edge.To] {
			return fmt.Errorf("overlay edge %s->%s references unknown node", edge.From, edge.To)
		}
	}
	for _, seg := range t.SharedMemory.Segments {
		for _, member := range seg.Members {
			if !seen[member] {
				return fmt.Errorf("shared memory segment %s references unknown node %q", seg.Name, member)
			}
		}
	}
	return nil
}

// Node returns the node with the given id.
func (t *Topology) Node(id string) (Node, error) {
	for _, node := range t.Nodes {
		if node.ID == id {
			return node, nil
		}
	}
	return Node{}, fmt.Errorf("unknown node %q", id)
}

// Gateway returns the gateway node. client_gateway wins when set; otherwise
// the first node with the gateway role.
func (t *Topology) Gateway() (Node, error) {
	if t.ClientGateway != "" {
		return t.Node(t.ClientGateway)
	}
	for _, node := range t.Nodes {
		if node.Role == RoleLeader {
			return node, nil
		}
	}
	return Node{}, fmt.Errorf("no gateway configured")
}

// TeamLeaders returns every team-leader node in file order.
func (t *Topology) TeamLeaders() []Node {
	var leaders []Node
	for _, node := range t.Nodes {
		if node.Role == RoleTeamLeader {
			leaders = append(leaders, node)
		}
	}
	return leaders
}

// TeamLeader returns the leader of the named team.
func (t *Topology) TeamLeader(team string) (Node, error) {
	for _, node := range t.Nodes {
		if node.Role == RoleTeamLeader && node.Team == team {
			return node, nil
		}
	}
	return Node{}, fmt.Errorf("no team leader for team %q", team)
}

// TeamWorkers returns the worker nodes of the named team in file order.
func (t *Topology) TeamWorkers(team string) []Node {
	var workers []Node
	for _, node := range t.Nodes {
		if node.Role == RoleWorker && node.Team == team {
			workers = append(workers, node)
		}
	}
	return workers
}
