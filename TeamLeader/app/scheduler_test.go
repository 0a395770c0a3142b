package leader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"queryfabric/Common/wire"
)

func newTestScheduler() *schedulerState {
	return newSchedulerState(zap.NewNop())
}

func heartbeatAll(s *schedulerState, ids ...string) {
	for _, id := range ids {
		s.RecordHeartbeat(id, 0, 0, 1)
	}
}

func drainAll(s *schedulerState, workerID string) []wire.Task {
	var tasks []wire.Task
	for {
		task := s.PullTask(workerID)
		if task.IsEmpty() {
			return tasks
		}
		tasks = append(tasks, task)
	}
}

func TestBeginRequestPartitions(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "C", "D")

	expected, ok := s.BeginRequest("req-1", "cities", 900)
	require.True(t, ok)
	assert.Equal(t, 6, expected)

	var tasks []wire.Task
	tasks = append(tasks, drainAll(s, "C")...)
	tasks = append(tasks, drainAll(s, "D")...)
	require.Len(t, tasks, 6)

	var total int64
	seen := make(map[int]bool)
	for _, task := range tasks {
		assert.Equal(t, "req-1", task.RequestID)
		assert.Equal(t, "cities", task.Dataset)
		assert.False(t, seen[task.ChunkID], "chunk %d assigned twice", task.ChunkID)
		seen[task.ChunkID] = true
		total += task.NumRows
	}
	assert.Equal(t, int64(900), total)
}

func TestBeginRequestRemainderGoesToLastChunk(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "C")

	expected, ok := s.BeginRequest("req-1", "cities", 100)
	require.True(t, ok)
	require.Equal(t, 3, expected)

	tasks := drainAll(s, "C")
	require.Len(t, tasks, 3)

	byChunk := make(map[int]wire.Task)
	for _, task := range tasks {
		byChunk[task.ChunkID] = task
	}
	assert.Equal(t, int64(33), byChunk[0].NumRows)
	assert.Equal(t, int64(33), byChunk[1].NumRows)
	assert.Equal(t, int64(34), byChunk[2].NumRows)
	assert.Equal(t, int64(66), byChunk[2].StartRow)
}

func TestBeginRequestFastFailsWithoutWorkers(t *testing.T) {
	s := newTestScheduler()
	_, ok := s.BeginRequest("req-1", "cities", 900)
	assert.False(t, ok)
}

func TestBeginRequestZeroRows(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "C")

	expected, ok := s.BeginRequest("req-1", "empty", 0)
	require.True(t, ok)
	assert.Zero(t, expected)
	task := s.PullTask("C")
	assert.True(t, task.IsEmpty())
}

func TestPlacementPrefersFasterWorker(t *testing.T) {
	s := newTestScheduler()
	// W1 averages 50ms, W2 500ms. 50 + 50*5 = 300 < 500, so W1 takes
	// all six tasks.
	s.RecordHeartbeat("W1", 50, 0, 1)
	s.RecordHeartbeat("W2", 500, 0, 1)

	expected, ok := s.BeginRequest("req-1", "cities", 600)
	require.True(t, ok)
	require.Equal(t, 6, expected)

	s.mu.Lock()
	w1Len := s.workers["W1"].queueLen()
	w2Len := s.workers["W2"].queueLen()
	s.mu.Unlock()
	assert.Equal(t, 6, w1Len)
	assert.Zero(t, w2Len)
}

func TestPlacementTiesBreakByRegistrationOrder(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1", "W2")

	expected, ok := s.BeginRequest("req-1", "cities", 600)
	require.True(t, ok)
	require.Equal(t, 6, expected)

	// Equal base latency: placement alternates as queue penalties grow,
	// with W1 winning each tie.
	s.mu.Lock()
	w1Len := s.workers["W1"].queueLen()
	w2Len := s.workers["W2"].queueLen()
	s.mu.Unlock()
	assert.Equal(t, 3, w1Len)
	assert.Equal(t, 3, w2Len)
}

func TestPullStealsFromDeepPeer(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1", "W2")

	s.mu.Lock()
	for chunk := 0; chunk < 6; chunk++ {
		s.workers["W1"].queue = append(s.workers["W1"].queue, wire.Task{
			RequestID: "req-1", ChunkID: chunk,
		})
	}
	s.mu.Unlock()

	// W2 has nothing of its own; W1's queue is over the watermark, so the
	// steal takes W1's tail.
	task := s.PullTask("W2")
	require.False(t, task.IsEmpty())
	assert.Equal(t, 5, task.ChunkID)

	s.mu.Lock()
	w1Len := s.workers["W1"].queueLen()
	s.mu.Unlock()
	assert.Equal(t, 5, w1Len)
}

func TestPullDoesNotStealBelowWatermark(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1", "W2")

	s.mu.Lock()
	for chunk := 0; chunk < StealHighWatermark; chunk++ {
		s.workers["W1"].queue = append(s.workers["W1"].queue, wire.Task{
			RequestID: "req-1", ChunkID: chunk,
		})
	}
	s.mu.Unlock()

	task := s.PullTask("W2")
	assert.True(t, task.IsEmpty())
}

func TestPullServesOverflowWhenQueuesEmpty(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1")

	s.mu.Lock()
	s.overflow = append(s.overflow, wire.Task{RequestID: "req-1", ChunkID: 7})
	s.mu.Unlock()

	task := s.PullTask("W1")
	require.False(t, task.IsEmpty())
	assert.Equal(t, 7, task.ChunkID)
	task2 := s.PullTask("W1")
	assert.True(t, task2.IsEmpty())
}

func TestReassignDrainsUnhealthyWorker(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1", "W2")

	s.mu.Lock()
	for chunk := 0; chunk < 4; chunk++ {
		s.workers["W1"].queue = append(s.workers["W1"].queue, wire.Task{
			RequestID: "req-1", ChunkID: chunk,
		})
	}
	s.workers["W1"].Healthy = false
	moved := s.reassignWorkerLocked(s.workers["W1"])
	w1Len := s.workers["W1"].queueLen()
	w2Len := s.workers["W2"].queueLen()
	s.mu.Unlock()

	assert.Equal(t, 4, moved)
	assert.Zero(t, w1Len)
	assert.Equal(t, 4, w2Len)
}

func TestHeartbeatRecoversWorker(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1")

	s.mu.Lock()
	s.workers["W1"].Healthy = false
	s.mu.Unlock()

	s.RecordHeartbeat("W1", 120, 2, 1)

	s.mu.Lock()
	worker := s.workers["W1"]
	healthy := worker.Healthy
	reported := worker.ReportedQueue
	avg := worker.AvgTaskMs
	s.mu.Unlock()

	assert.True(t, healthy)
	assert.Equal(t, 2, reported)
	assert.InDelta(t, 120, avg, 0.001)
}

func TestObserveTaskMovingAverage(t *testing.T) {
	w := &workerState{}
	w.observeTask(100)
	assert.InDelta(t, 100, w.AvgTaskMs, 0.001)
	w.observeTask(200)
	// 0.8*100 + 0.2*200
	assert.InDelta(t, 120, w.AvgTaskMs, 0.001)
	w.observeTask(0)
	assert.InDelta(t, 120, w.AvgTaskMs, 0.001)
}

func TestWaitForResultsCollectsAll(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1")

	expected, ok := s.BeginRequest("req-1", "cities", 300)
	require.True(t, ok)
	require.Equal(t, 3, expected)

	var wg sync.WaitGroup
	wg.Add(1)
	var results []wire.ChunkResult
	go func() {
		defer wg.Done()
		results = s.WaitForResults("req-1", expected, 5*time.Second)
	}()

	for chunk := 0; chunk < 3; chunk++ {
		s.AddResult(wire.ChunkResult{RequestID: "req-1", PartIndex: chunk, Payload: []byte("x")})
	}
	wg.Wait()
	assert.Len(t, results, 3)
}

func TestWaitForResultsTimesOutWithPartials(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1")

	expected, ok := s.BeginRequest("req-1", "cities", 300)
	require.True(t, ok)

	s.AddResult(wire.ChunkResult{RequestID: "req-1", PartIndex: 0})

	began := time.Now()
	results := s.WaitForResults("req-1", expected, 100*time.Millisecond)
	assert.Less(t, time.Since(began), 2*time.Second)
	assert.Len(t, results, 1)
}

func TestAddResultIgnoresRetiredRequests(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1")

	expected, ok := s.BeginRequest("req-1", "cities", 300)
	require.True(t, ok)
	_ = s.WaitForResults("req-1", expected, time.Millisecond)

	s.AddResult(wire.ChunkResult{RequestID: "req-1", PartIndex: 1})
	s.mu.Lock()
	_, pending := s.pending["req-1"]
	s.mu.Unlock()
	assert.False(t, pending)
}

func TestPendingTaskCountSpansQueuesAndOverflow(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1")

	s.mu.Lock()
	s.workers["W1"].queue = []wire.Task{{RequestID: "r", ChunkID: 0}, {RequestID: "r", ChunkID: 1}}
	s.overflow = []wire.Task{{RequestID: "r", ChunkID: 2}}
	s.mu.Unlock()

	assert.Equal(t, 3, s.PendingTaskCount())
}

func TestMaintenanceReassignsStaleWorker(t *testing.T) {
	s := newTestScheduler()
	heartbeatAll(s, "W1", "W2")

	s.mu.Lock()
	s.workers["W1"].queue = []wire.Task{{RequestID: "r", ChunkID: 0}}
	s.workers["W1"].LastHeartbeat = time.Now().Add(-HeartbeatStaleAfter - time.Second)
	s.mu.Unlock()

	m := newMaintenanceLoop(s, zap.NewNop())
	m.tick(time.Now())

	s.mu.Lock()
	w1 := s.workers["W1"]
	w2 := s.workers["W2"]
	healthy := w1.Healthy
	w1Len := w1.queueLen()
	w2Len := w2.queueLen()
	s.mu.Unlock()

	assert.False(t, healthy)
	assert.Zero(t, w1Len)
	assert.Equal(t, 1, w2Len)
}

func TestPullRegistersUnknownWorker(t *testing.T) {
	s := newTestScheduler()
	task := s.PullTask("newcomer")
	assert.True(t, task.IsEmpty())

	statuses := s.WorkerStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "newcomer", statuses[0].ID)
	assert.Equal(t, DefaultCapacityScore, statuses[0].CapacityScore)
}
