package worker

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"queryfabric/Common/dataset"
	"queryfabric/Common/wire"
)

const (
	PullBackoff       = 100 * time.Millisecond
	HeartbeatInterval = 3 * time.Second
	initialErrorDelay = 500 * time.Millisecond
	maxErrorDelay     = 15 * time.Second
	pullTimeout       = 4 * time.Second
	pushTimeout       = 2 * time.Second
	pingTimeout       = time.Second
)

// leaderLink is the worker's connection to its team leader: tasks are
// pulled and results pushed on the ingress surface, heartbeats ride the
// control surface.
type leaderLink struct {
	addr string

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func newLeaderLink(addr string) *leaderLink {
	return &leaderLink{addr: addr}
}

func (l *leaderLink) get() (*grpc.ClientConn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		conn, err := wire.Dial(l.addr)
		if err != nil {
			return nil, err
		}
		l.conn = conn
	}
	return l.conn, nil
}

func (l *leaderLink) Ingress() (*wire.TeamIngressClient, error) {
	conn, err := l.get()
	if err != nil {
		return nil, err
	}
	return wire.NewTeamIngressClient(conn), nil
}

func (l *leaderLink) Control() (*wire.NodeControlClient, error) {
	conn, err := l.get()
	if err != nil {
		return nil, err
	}
	return wire.NewNodeControlClient(conn), nil
}

func (l *leaderLink) Close() {
	l.mu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
}

// workerNode runs the pull loop and the heartbeat loop. One task at a time;
// the reported queue length is always zero and the team leader's own queue
// view drives scheduling.
type workerNode struct {
	nodeID   string
	team     string
	capacity int
	dataDir  string
	slowdown time.Duration

	leader   *leaderLink
	datasets *dataset.Cache
	log      *zap.Logger

	busy       atomic.Bool
	lastTaskMs atomic.Uint64
	stopCh     chan struct{}
}

func (w *workerNode) setLastTaskMs(ms float64) {
	w.lastTaskMs.Store(math.Float64bits(ms))
}

func (w *workerNode) recentTaskMs() float64 {
	return math.Float64frombits(w.lastTaskMs.Load())
}

// Pending reports the worker's own load for the control surface.
func (w *workerNode) Pending() int {
	if w.busy.Load() {
		return 1
	}
	return 0
}

func (w *workerNode) Stop() {
	close(w.stopCh)
}

// pullLoop long-polls the team leader for tasks. Empty tasks back the loop
// off briefly; transport errors back off exponentially.
func (w *workerNode) pullLoop() {
	errorDelay := initialErrorDelay
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), pullTimeout)
		task, err := w.requestTask(ctx)
		cancel()
		if err != nil {
			if errorDelay == initialErrorDelay {
				w.log.Warn("task pull failed", zap.Error(err))
			}
			w.sleep(errorDelay)
			errorDelay = nextDelay(errorDelay, maxErrorDelay)
			continue
		}
		errorDelay = initialErrorDelay

		if task.IsEmpty() {
			w.sleep(PullBackoff)
			continue
		}
		w.process(*task)
	}
}

func (w *workerNode) requestTask(ctx context.Context) (*wire.Task, error) {
	client, err := w.leader.Ingress()
	if err != nil {
		return nil, err
	}
	return client.RequestTask(ctx, &wire.TaskRequest{WorkerID: w.nodeID})
}

// process extracts the task's row range and pushes the chunk back. Failures
// still push, with an empty payload; the part index is the chunk id.
func (w *workerNode) process(task wire.Task) {
	w.busy.Store(true)
	defer w.busy.Store(false)

	if w.slowdown > 0 {
		time.Sleep(w.slowdown)
	}
	started := time.Now()

	var payload []byte
	desc, err := w.datasets.Get(dataset.ResolvePath(w.dataDir, task.Dataset))
	if err == nil {
		payload, err = desc.Extract(task.StartRow, task.NumRows)
	}
	if err != nil {
		w.log.Error("task processing failed",
			zap.String("request", task.RequestID),
			zap.Int("chunk", task.ChunkID),
			zap.Error(err))
		payload = nil
	}

	elapsed := time.Since(started)
	w.setLastTaskMs(float64(elapsed.Microseconds()) / 1000.0)
	w.log.Debug("task processed",
		zap.String("request", task.RequestID),
		zap.Int("chunk", task.ChunkID),
		zap.Int64("start_row", task.StartRow),
		zap.Int64("num_rows", task.NumRows),
		zap.Duration("took", elapsed))

	w.push(&wire.ChunkResult{
		RequestID: task.RequestID,
		PartIndex: task.ChunkID,
		Payload:   payload,
	})
}

// push hands the chunk to the team leader once. A transport failure is
// logged and the chunk dropped; the deadlines upstream account for it.
func (w *workerNode) push(result *wire.ChunkResult) {
	client, err := w.leader.Ingress()
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		_, err = client.PushWorkerResult(ctx, result)
		cancel()
	}
	if err != nil {
		w.log.Error("result push failed",
			zap.String("request", result.RequestID),
			zap.Int("part", result.PartIndex),
			zap.Error(err))
	}
}

// heartbeatLoop runs independently of the pull loop.
func (w *workerNode) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.heartbeat()
		}
	}
}

func (w *workerNode) heartbeat() {
	client, err := w.leader.Control()
	if err != nil {
		w.log.Debug("heartbeat dial failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	_, err = client.Ping(ctx, &wire.Heartbeat{
		From:          w.nodeID,
		TsUnixMs:      time.Now().UnixMilli(),
		RecentTaskMs:  w.recentTaskMs(),
		QueueLen:      0,
		CapacityScore: w.capacity,
	})
	if err != nil {
		w.log.Debug("heartbeat failed", zap.Error(err))
	}
}

func (w *workerNode) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	if current <= 0 {
		return max
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
