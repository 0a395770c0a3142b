package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	GetNextTimeout     = 185 * time.Second
	SessionIdleTimeout = 300 * time.Second
	CleanerInterval    = time.Minute
)

// session buffers one request's chunks for indexed or cursored retrieval.
// chunks is append-only; once complete flips it stays set. The poll cursor
// and the indexed reads must not be mixed on the same session.
type session struct {
	mu            sync.Mutex
	cond          *sync.Cond
	id            string
	chunks        [][]byte
	complete      bool
	nextPollIndex int
	createdAt     time.Time
	lastAccess    time.Time
}

func newSession(id string, now time.Time) *session {
	s := &session{
		id:         id,
		createdAt:  now,
		lastAccess: now,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// sessionManager owns the session map. Each session has its own lock; the
// manager lock only guards the map itself.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	log      *zap.Logger
	stopCh   chan struct{}
}

func newSessionManager(log *zap.Logger) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*session),
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

func newSessionID() string {
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Create opens a fresh session and returns its id.
func (m *sessionManager) Create() string {
	id := newSessionID()
	now := time.Now()
	m.mu.Lock()
	m.sessions[id] = newSession(id, now)
	m.mu.Unlock()
	return id
}

func (m *sessionManager) get(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// AddChunk appends one chunk and wakes blocked readers. A missing session
// swallows the chunk; the producer does not care.
func (m *sessionManager) AddChunk(id string, payload []byte) {
	s := m.get(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.complete {
		s.chunks = append(s.chunks, payload)
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Complete marks the session finished. No chunk is appended afterwards.
func (m *sessionManager) Complete(id string) {
	s := m.get(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.complete = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// GetNext returns the chunk at index, blocking until it exists, the session
// completes, or the timeout fires. Reads are idempotent: the same index
// yields the same payload. ok is false for unknown sessions.
func (m *sessionManager) GetNext(id string, index int) (payload []byte, hasMore, ok bool) {
	s := m.get(id)
	if s == nil {
		return nil, false, false
	}
	deadline := time.Now().Add(GetNextTimeout)
	timer := time.AfterFunc(GetNextTimeout, s.cond.Broadcast)
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
	for index >= len(s.chunks) && !s.complete && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	s.lastAccess = time.Now()
	if index < len(s.chunks) {
		return s.chunks[index], index+1 < len(s.chunks) || !s.complete, true
	}
	return nil, !s.complete, true
}

// PollNext returns the chunk at the session cursor without blocking and
// advances the cursor exactly once per ready chunk.
func (m *sessionManager) PollNext(id string) (payload []byte, ready, hasMore, ok bool) {
	s := m.get(id)
	if s == nil {
		return nil, false, false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
	if s.nextPollIndex < len(s.chunks) {
		payload = s.chunks[s.nextPollIndex]
		s.nextPollIndex++
		return payload, true, s.nextPollIndex < len(s.chunks) || !s.complete, true
	}
	return nil, false, !s.complete, true
}

// Remove erases a session. Idempotent; unknown ids are fine.
func (m *sessionManager) Remove(id string) {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if s != nil {
		s.mu.Lock()
		s.complete = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// OpenCount reports sessions that have not yet completed.
func (m *sessionManager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.complete {
			open++
		}
		s.mu.Unlock()
	}
	return open
}

// StartCleaner evicts idle sessions once per minute, complete or not.
func (m *sessionManager) StartCleaner() {
	go func() {
		ticker := time.NewTicker(CleanerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.evictIdle(time.Now())
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *sessionManager) StopCleaner() {
	close(m.stopCh)
}

func (m *sessionManager) evictIdle(now time.Time) {
	var evicted []string
	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastAccess)
		s.mu.Unlock()
		if idle > SessionIdleTimeout {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()
	for _, id := range evicted {
		m.log.Info("session evicted", zap.String("session", id))
	}
}
