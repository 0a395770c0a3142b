package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
nodes:
  - id: A
    role: LEADER
    host: 127.0.0.1
    port: 6000
  - id: B
    role: TEAM_LEADER
    host: 127.0.0.1
    port: 6001
    team: green
  - id: C
    role: WORKER
    host: 127.0.0.1
    port: 6002
    team: green
    capacity_score: 2
  - id: D
    role: WORKER
    host: 127.0.0.1
    port: 6003
    team: green
  - id: E
    role: TEAM_LEADER
    host: 127.0.0.1
    port: 6004
    team: pink
  - id: F
    role: WORKER
    host: 127.0.0.1
    port: 6005
    team: pink
client_gateway: A
overlay:
  - { from: A, to: B }
  - { from: B, to: C }
`

func writeTopology(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSampleTopology(t *testing.T) {
	topo, err := Load(writeTopology(t, sampleTopology))
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 6)

	gw, err := topo.Gateway()
	require.NoError(t, err)
	assert.Equal(t, "A", gw.ID)
	assert.Equal(t, "127.0.0.1:6000", gw.Address())

	leader, err := topo.TeamLeader("green")
	require.NoError(t, err)
	assert.Equal(t, "B", leader.ID)

	workers := topo.TeamWorkers("green")
	require.Len(t, workers, 2)
	assert.Equal(t, "C", workers[0].ID)
	assert.Equal(t, 2, workers[0].CapacityScore)
	assert.Equal(t, "D", workers[1].ID)

	assert.Len(t, topo.TeamLeaders(), 2)
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	body := `
nodes:
  - { id: A, role: LEADER, host: h, port: 1 }
  - { id: A, role: TEAM_LEADER, host: h, port: 2, team: green }
`
	_, err := Load(writeTopology(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	body := `
nodes:
  - { id: A, role: OVERSEER, host: h, port: 1 }
`
	_, err := Load(writeTopology(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestLoadRequiresTeamForNonLeaders(t *testing.T) {
	body := `
nodes:
  - { id: A, role: LEADER, host: h, port: 1 }
  - { id: C, role: WORKER, host: h, port: 2 }
`
	_, err := Load(writeTopology(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a team")
}

func TestLoadRejectsUnknownGateway(t *testing.T) {
	body := `
nodes:
  - { id: A, role: LEADER, host: h, port: 1 }
client_gateway: Z
`
	_, err := Load(writeTopology(t, body))
	require.Error(t, err)
}

func TestLoadRejectsUnknownOverlayNode(t *testing.T) {
	body := `
nodes:
  - { id: A, role: LEADER, host: h, port: 1 }
overlay:
  - { from: A, to: Z }
`
	_, err := Load(writeTopology(t, body))
	require.Error(t, err)
}

func TestNodeLookup(t *testing.T) {
	topo, err := Load(writeTopology(t, sampleTopology))
	require.NoError(t, err)

	node, err := topo.Node("F")
	require.NoError(t, err)
	assert.Equal(t, RoleWorker, node.Role)
	assert.Equal(t, "pink", node.Team)

	_, err = topo.Node("Z")
	require.Error(t, err)

	_, err = topo.TeamLeader("teal")
	require.Error(t, err)
}
