// Package control tracks the per-node status reported on the NodeControl
// surface and owns the shutdown latch every role shares.
package control

import (
	"runtime"
	"sync/atomic"
	"time"

	"queryfabric/Common/wire"
)

// Node states as reported by Status.
const (
	StateIdle         = "IDLE"
	StateBusy         = "BUSY"
	StateOverloaded   = "OVERLOADED"
	StateShuttingDown = "SHUTTING_DOWN"
)

// OverloadedThreshold is the pending-work count at which a node stops
// calling itself merely busy.
const OverloadedThreshold = 5

// Tracker is shared by the RPC handlers of one process. pendingFn reports
// the node's current pending-work count (queued tasks, open sessions, an
// in-flight task).
type Tracker struct {
	nodeID    string
	startedAt time.Time
	requests  atomic.Int64
	shutdown  atomic.Bool
	pendingFn func() int
}

func NewTracker(nodeID string, pendingFn func() int) *Tracker {
	return &Tracker{
		nodeID:    nodeID,
		startedAt: time.Now(),
		pendingFn: pendingFn,
	}
}

// RecordRequest counts one unit of served work.
func (t *Tracker) RecordRequest() {
	t.requests.Add(1)
}

// BeginShutdown latches the shutting-down state. Idempotent.
func (t *Tracker) BeginShutdown() {
	t.shutdown.Store(true)
}

func (t *Tracker) ShuttingDown() bool {
	return t.shutdown.Load()
}

// Snapshot builds the StatusResponse for this node.
func (t *Tracker) Snapshot() *wire.StatusResponse {
	pending := 0
	if t.pendingFn != nil {
		pending = t.pendingFn()
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return &wire.StatusResponse{
		NodeID:            t.nodeID,
		State:             t.stateFor(pending),
		QueueSize:         pending,
		UptimeSeconds:     int64(time.Since(t.startedAt).Seconds()),
		RequestsProcessed: t.requests.Load(),
		MemoryBytes:       mem.Alloc,
	}
}

func (t *Tracker) stateFor(pending int) string {
	switch {
	case t.shutdown.Load():
		return StateShuttingDown
	case pending == 0:
		return StateIdle
	case pending < OverloadedThreshold:
		return StateBusy
	default:
		return StateOverloaded
	}
}
