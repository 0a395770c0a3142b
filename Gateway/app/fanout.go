package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"queryfabric/Common/config"
	"queryfabric/Common/wire"
)

const GatewayWaitTimeout = 12 * time.Second

// aggregator is the gateway's pending-result map: chunks pushed up by team
// leaders accumulate per request until the session processor consumes them.
// One condition variable serves every request.
type aggregator struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string][]wire.ChunkResult
	active  map[string]bool
	done    map[string]bool
}

func newAggregator() *aggregator {
	a := &aggregator{
		pending: make(map[string][]wire.ChunkResult),
		active:  make(map[string]bool),
		done:    make(map[string]bool),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

func (a *aggregator) open(requestID string) {
	a.mu.Lock()
	a.active[requestID] = true
	a.mu.Unlock()
}

// Add buffers one chunk if the request is still wanted. Chunks for retired
// requests are dropped without comment; the team leader pushed in good
// faith and nobody is listening anymore.
func (a *aggregator) Add(result wire.ChunkResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active[result.RequestID] {
		return false
	}
	a.pending[result.RequestID] = append(a.pending[result.RequestID], result)
	a.cond.Broadcast()
	return true
}

func (a *aggregator) markDone(requestID string) {
	a.mu.Lock()
	a.done[requestID] = true
	a.cond.Broadcast()
	a.mu.Unlock()
}

func (a *aggregator) retire(requestID string) {
	a.mu.Lock()
	delete(a.pending, requestID)
	delete(a.active, requestID)
	delete(a.done, requestID)
	a.mu.Unlock()
}

// leaderLink is one lazily dialed connection to a team leader.
type leaderLink struct {
	node config.Node

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func (l *leaderLink) client() (*wire.TeamIngressClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		conn, err := wire.Dial(l.node.Address())
		if err != nil {
			return nil, err
		}
		l.conn = conn
	}
	return wire.NewTeamIngressClient(l.conn), nil
}

func (l *leaderLink) close() {
	l.mu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
}

// fanout dispatches requests to the selected team leaders and feeds each
// arriving chunk into the session, in arrival order.
type fanout struct {
	leaders  map[string]*leaderLink
	agg      *aggregator
	sessions *sessionManager
	log      *zap.Logger
}

func newFanout(topo *config.Topology, agg *aggregator, sessions *sessionManager, log *zap.Logger) *fanout {
	leaders := make(map[string]*leaderLink)
	for _, node := range topo.TeamLeaders() {
		leaders[node.Team] = &leaderLink{node: node}
	}
	return &fanout{leaders: leaders, agg: agg, sessions: sessions, log: log}
}

func (f *fanout) Close() {
	for _, link := range f.leaders {
		link.close()
	}
}

func (f *fanout) selectTeams(req *wire.Request) []string {
	var teams []string
	if req.NeedGreen {
		teams = append(teams, "green")
	}
	if req.NeedPink {
		teams = append(teams, "pink")
	}
	return teams
}

// Process is the per-session background processor. It owns the session from
// dispatch until complete and never touches the client transport.
func (f *fanout) Process(sessionID string, req wire.Request) {
	teams := f.selectTeams(&req)
	f.agg.open(sessionID)
	defer f.agg.retire(sessionID)

	teamOK := make(map[string]bool, len(teams))
	var teamMu sync.Mutex
	var wg sync.WaitGroup
	for _, team := range teams {
		link := f.leaders[team]
		if link == nil {
			f.log.Error("no team leader configured", zap.String("team", team))
			continue
		}
		wg.Add(1)
		go func(team string, link *leaderLink) {
			defer wg.Done()
			ok := f.dispatch(team, link, &req)
			teamMu.Lock()
			teamOK[team] = ok
			teamMu.Unlock()
		}(team, link)
	}
	go func() {
		wg.Wait()
		f.agg.markDone(sessionID)
	}()

	chunkCount := f.consume(sessionID)
	f.sessions.Complete(sessionID)

	teamMu.Lock()
	failedTeams := 0
	for _, team := range teams {
		if !teamOK[team] {
			failedTeams++
		}
	}
	teamMu.Unlock()

	switch {
	case chunkCount == 0:
		f.log.Warn("request returned no data",
			zap.String("session", sessionID),
			zap.Int("teams", len(teams)))
	case failedTeams > 0:
		f.log.Warn("request partially served",
			zap.String("session", sessionID),
			zap.Int("chunks", chunkCount),
			zap.Int("failed_teams", failedTeams))
	default:
		f.log.Info("request fully served",
			zap.String("session", sessionID),
			zap.Int("chunks", chunkCount))
	}
}

// dispatch calls one team leader synchronously. A transport failure or a
// rejecting ack counts as team failure; chunks flow in separately.
func (f *fanout) dispatch(team string, link *leaderLink, req *wire.Request) bool {
	client, err := link.client()
	if err != nil {
		f.log.Error("team leader dial failed", zap.String("team", team), zap.Error(err))
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), GatewayWaitTimeout)
	defer cancel()
	ack, err := client.HandleRequest(ctx, req)
	if err != nil {
		f.log.Error("team leader call failed",
			zap.String("team", team),
			zap.String("request", req.RequestID),
			zap.Error(err))
		return false
	}
	if !ack.OK {
		f.log.Warn("team rejected request",
			zap.String("team", team),
			zap.String("request", req.RequestID))
		return false
	}
	return true
}

// consume drains arriving chunks into the session until the fan-out settles
// or the gateway deadline fires. Returns the number delivered.
func (f *fanout) consume(sessionID string) int {
	deadline := time.Now().Add(GatewayWaitTimeout)
	timer := time.AfterFunc(GatewayWaitTimeout, f.agg.cond.Broadcast)
	defer timer.Stop()

	consumed := 0
	for {
		f.agg.mu.Lock()
		for len(f.agg.pending[sessionID]) <= consumed &&
			!f.agg.done[sessionID] &&
			time.Now().Before(deadline) {
			f.agg.cond.Wait()
		}
		batch := f.agg.pending[sessionID][consumed:]
		consumed += len(batch)
		finished := f.agg.done[sessionID]
		expired := !time.Now().Before(deadline)
		f.agg.mu.Unlock()

		for _, result := range batch {
			f.sessions.AddChunk(sessionID, result.Payload)
		}
		if len(batch) > 0 {
			continue
		}
		if finished || expired {
			if expired && !finished {
				f.log.Warn("gateway wait timed out", zap.String("session", sessionID))
			}
			return consumed
		}
	}
}
