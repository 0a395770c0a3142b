package leader

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"queryfabric/Common/wire"
)

const (
	TasksPerWorker      = 3
	StealHighWatermark  = 4
	TeamWaitTimeout     = 10 * time.Second
	MaintenanceInterval = 500 * time.Millisecond
	WorkerQueueWarnLen  = 20
	OverflowWarnLen     = 100
)

// schedulerState owns everything the team leader schedules over: the worker
// registry, the per-worker task queues, the team overflow queue, and the
// pending-result map. One mutex guards it all; one condition variable wakes
// every waiter when a result lands.
type schedulerState struct {
	mu       sync.Mutex
	cond     *sync.Cond
	log      *zap.Logger
	workers  map[string]*workerState
	order    []string
	overflow []wire.Task
	pending  map[string][]wire.ChunkResult
	active   map[string]bool
}

func newSchedulerState(log *zap.Logger) *schedulerState {
	s := &schedulerState{
		log:     log,
		workers: make(map[string]*workerState),
		pending: make(map[string][]wire.ChunkResult),
		active:  make(map[string]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// registerWorkerLocked returns the worker's state, creating it on first
// contact. A non-positive capacity falls back to the default; ids first seen
// on a heartbeat or a pull are registered with the default capacity.
func (s *schedulerState) registerWorkerLocked(id string, capacity int, now time.Time) *workerState {
	worker := s.workers[id]
	if worker == nil {
		if capacity <= 0 {
			capacity = DefaultCapacityScore
		}
		worker = &workerState{
			ID:            id,
			CapacityScore: capacity,
			LastHeartbeat: now,
			Healthy:       true,
			order:         len(s.order),
		}
		s.workers[id] = worker
		s.order = append(s.order, id)
		s.log.Info("worker registered", zap.String("worker", id), zap.Int("capacity", worker.CapacityScore))
	}
	return worker
}

// EnsureWorker registers a worker id if it has never been seen.
func (s *schedulerState) EnsureWorker(id string, capacity int) {
	s.mu.Lock()
	s.registerWorkerLocked(id, capacity, time.Now())
	s.mu.Unlock()
}

// RecordHeartbeat refreshes a worker's liveness. Any heartbeat flips the
// worker back to healthy; a positive recent-task duration feeds the moving
// average.
func (s *schedulerState) RecordHeartbeat(id string, recentMs float64, reportedQueue, capacity int) {
	now := time.Now()
	s.mu.Lock()
	worker := s.registerWorkerLocked(id, DefaultCapacityScore, now)
	worker.LastHeartbeat = now
	if !worker.Healthy {
		s.log.Info("worker recovered", zap.String("worker", id))
	}
	worker.Healthy = true
	worker.ReportedQueue = reportedQueue
	worker.observeTask(recentMs)
	s.mu.Unlock()
}

func (s *schedulerState) healthyCountLocked() int {
	count := 0
	for _, worker := range s.workers {
		if worker.Healthy {
			count++
		}
	}
	return count
}

// pickWorkerLocked returns the healthy worker with the lowest placement
// score, ties broken by registration order.
func (s *schedulerState) pickWorkerLocked() *workerState {
	var best *workerState
	for _, id := range s.order {
		worker := s.workers[id]
		if worker == nil || !worker.Healthy {
			continue
		}
		if best == nil || worker.score() < best.score() {
			best = worker
		}
	}
	return best
}

// placeTaskLocked assigns one task to the cheapest healthy worker, or to
// the team overflow queue when nobody can take it.
func (s *schedulerState) placeTaskLocked(task wire.Task) {
	worker := s.pickWorkerLocked()
	if worker == nil {
		s.overflow = append(s.overflow, task)
		return
	}
	worker.queue = append(worker.queue, task)
}

// clearWorkerQueuesLocked drops every per-worker queue ahead of a fresh
// partition round.
func (s *schedulerState) clearWorkerQueuesLocked() {
	for _, worker := range s.workers {
		worker.queue = nil
	}
}

// pullTaskLocked serves a worker's pull: own queue head first, then a steal
// from the tail of the largest peer queue over the high-watermark, then the
// team overflow queue. Returns an empty task when nothing applies.
func (s *schedulerState) pullTaskLocked(workerID string) wire.Task {
	worker := s.workers[workerID]
	if worker != nil && len(worker.queue) > 0 {
		task := worker.queue[0]
		worker.queue = worker.queue[1:]
		return task
	}

	var victim *workerState
	for _, id := range s.order {
		if id == workerID {
			continue
		}
		peer := s.workers[id]
		if peer == nil || len(peer.queue) <= StealHighWatermark {
			continue
		}
		if victim == nil || len(peer.queue) > len(victim.queue) {
			victim = peer
		}
	}
	if victim != nil {
		last := len(victim.queue) - 1
		task := victim.queue[last]
		victim.queue = victim.queue[:last]
		s.log.Debug("task stolen",
			zap.String("thief", workerID),
			zap.String("victim", victim.ID),
			zap.String("request", task.RequestID),
			zap.Int("chunk", task.ChunkID))
		return task
	}

	if len(s.overflow) > 0 {
		task := s.overflow[0]
		s.overflow = s.overflow[1:]
		return task
	}
	return wire.Task{}
}

// PullTask is the RequestTask entry point.
func (s *schedulerState) PullTask(workerID string) wire.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerWorkerLocked(workerID, DefaultCapacityScore, time.Now())
	return s.pullTaskLocked(workerID)
}

// reassignWorkerLocked drains an unhealthy worker's queue and replaces each
// task via the normal placement rule. Tasks move; they are never copied.
func (s *schedulerState) reassignWorkerLocked(worker *workerState) int {
	drained := worker.queue
	worker.queue = nil
	for _, task := range drained {
		s.placeTaskLocked(task)
	}
	return len(drained)
}

// BeginRequest partitions totalRows into 3x|registered workers| contiguous
// tasks and places them. Returns the number of tasks created, or ok=false
// when no healthy worker exists (the fast-fail path).
func (s *schedulerState) BeginRequest(requestID, datasetKey string, totalRows int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.healthyCountLocked() == 0 {
		return 0, false
	}

	registered := len(s.order)
	taskCount := TasksPerWorker * registered
	if totalRows <= 0 {
		taskCount = 0
	}

	s.clearWorkerQueuesLocked()
	s.pending[requestID] = nil
	s.active[requestID] = true

	if taskCount > 0 {
		rowsPer := totalRows / int64(taskCount)
		for chunk := 0; chunk < taskCount; chunk++ {
			start := int64(chunk) * rowsPer
			count := rowsPer
			if chunk == taskCount-1 {
				count = totalRows - start
			}
			s.placeTaskLocked(wire.Task{
				RequestID: requestID,
				ChunkID:   chunk,
				StartRow:  start,
				NumRows:   count,
				Dataset:   datasetKey,
			})
		}
	}
	return taskCount, true
}

// AddResult records one arrived chunk and wakes every waiter.
func (s *schedulerState) AddResult(result wire.ChunkResult) {
	s.mu.Lock()
	if s.active[result.RequestID] {
		s.pending[result.RequestID] = append(s.pending[result.RequestID], result)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitForResults blocks until expected results have arrived for requestID
// or the deadline fires, then retires the request and returns what came.
func (s *schedulerState) WaitForResults(requestID string, expected int, timeout time.Duration) []wire.ChunkResult {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, s.cond.Broadcast)
	defer timer.Stop()

	s.mu.Lock()
	for len(s.pending[requestID]) < expected && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	results := s.pending[requestID]
	delete(s.pending, requestID)
	delete(s.active, requestID)
	s.mu.Unlock()
	return results
}

// PendingTaskCount is the load figure reported on the control surface:
// everything queued but not yet pulled.
func (s *schedulerState) PendingTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.overflow)
	for _, worker := range s.workers {
		total += len(worker.queue)
	}
	return total
}

// WorkerStatuses copies the registry for logging and status reporting.
func (s *schedulerState) WorkerStatuses() []workerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]workerStatus, 0, len(s.order))
	for _, id := range s.order {
		worker := s.workers[id]
		statuses = append(statuses, workerStatus{
			ID:            worker.ID,
			CapacityScore: worker.CapacityScore,
			AvgTaskMs:     worker.AvgTaskMs,
			QueueLen:      worker.queueLen(),
			LastHeartbeat: worker.LastHeartbeat,
			Healthy:       worker.Healthy,
		})
	}
	return statuses
}
