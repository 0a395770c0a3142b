package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStates(t *testing.T) {
	pending := 0
	tracker := NewTracker("A", func() int { return pending })

	snap := tracker.Snapshot()
	assert.Equal(t, "A", snap.NodeID)
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.QueueSize)

	pending = 3
	assert.Equal(t, StateBusy, tracker.Snapshot().State)

	pending = OverloadedThreshold
	assert.Equal(t, StateOverloaded, tracker.Snapshot().State)

	tracker.BeginShutdown()
	assert.Equal(t, StateShuttingDown, tracker.Snapshot().State)
	assert.True(t, tracker.ShuttingDown())
}

func TestSnapshotCountsRequests(t *testing.T) {
	tracker := NewTracker("B", nil)
	tracker.RecordRequest()
	tracker.RecordRequest()

	snap := tracker.Snapshot()
	require.EqualValues(t, 2, snap.RequestsProcessed)
	assert.Equal(t, StateIdle, snap.State)
	assert.NotZero(t, snap.MemoryBytes)
}
