package leader

import (
	"time"

	"go.uber.org/zap"
)

// maintenanceLoop watches the registry on a fixed tick: stale workers are
// marked unhealthy and their queues reassigned, and queue depths past the
// warning thresholds are logged.
type maintenanceLoop struct {
	sched  *schedulerState
	log    *zap.Logger
	stopCh chan struct{}
}

func newMaintenanceLoop(sched *schedulerState, log *zap.Logger) *maintenanceLoop {
	return &maintenanceLoop{sched: sched, log: log, stopCh: make(chan struct{})}
}

func (m *maintenanceLoop) Start() {
	if m == nil || m.sched == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(MaintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick(time.Now())
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *maintenanceLoop) Stop() {
	if m == nil || m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.stopCh = nil
}

func (m *maintenanceLoop) tick(now time.Time) {
	type reassignment struct {
		workerID string
		moved    int
	}
	var (
		reassigned []reassignment
		deepQueues []workerStatus
		overflow   int
	)

	s := m.sched
	s.mu.Lock()
	for _, id := range s.order {
		worker := s.workers[id]
		if worker.Healthy && !workerHealthy(now, worker.LastHeartbeat, HeartbeatStaleAfter) {
			worker.Healthy = false
			moved := s.reassignWorkerLocked(worker)
			reassigned = append(reassigned, reassignment{workerID: id, moved: moved})
		}
		if worker.queueLen() > WorkerQueueWarnLen {
			deepQueues = append(deepQueues, workerStatus{ID: id, QueueLen: worker.queueLen()})
		}
	}
	overflow = len(s.overflow)
	s.mu.Unlock()

	for _, r := range reassigned {
		m.log.Warn("worker unhealthy, queue reassigned",
			zap.String("worker", r.workerID),
			zap.Int("tasks_moved", r.moved))
	}
	for _, dq := range deepQueues {
		m.log.Warn("worker queue deep",
			zap.String("worker", dq.ID),
			zap.Int("queue_len", dq.QueueLen))
	}
	if overflow > OverflowWarnLen {
		m.log.Warn("overflow queue deep", zap.Int("overflow_len", overflow))
	}
}
