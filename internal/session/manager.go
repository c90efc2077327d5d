package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxSessions bounds live sessions when no limit is configured.
const DefaultMaxSessions = 10000

// ErrSessionLimit is returned by Create when every live session is busy
// and the limit is reached.
var ErrSessionLimit = errors.New("session: too many live sessions")

// Manager holds live sessions by ID and expires idle ones. At most max
// sessions are kept; creating one more evicts the least recently used
// session that has no call in flight.
type Manager struct {
	deps Deps
	idle time.Duration
	max  int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxSessions caps the number of live sessions. n <= 0 keeps the default.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.max = n
		}
	}
}

// NewManager creates a Manager. Sessions idle longer than idle are
// removed by Sweep.
func NewManager(deps Deps, idle time.Duration, opts ...ManagerOption) *Manager {
	if idle <= 0 {
		idle = time.Hour
	}
	m := &Manager{deps: deps, idle: idle, max: DefaultMaxSessions, sessions: make(map[string]*Session)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create starts a new session with a fresh ID, evicting the least recently
// used idle session when the limit is reached.
func (m *Manager) Create() (*Session, error) {
	s := New(uuid.New().String(), m.deps)

	m.mu.Lock()
	if len(m.sessions) >= m.max {
		victim := m.leastRecentIdle()
		if victim == "" {
			m.mu.Unlock()
			zap.L().Warn("session: limit reached", zap.Int("max", m.max))
			return nil, ErrSessionLimit
		}
		delete(m.sessions, victim)
		zap.L().Debug("session: evicted", zap.String("session", victim))
	}
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(n)
	return s, nil
}

// leastRecentIdle returns the ID of the oldest session with no call in
// flight, or "". Callers hold m.mu.
func (m *Manager) leastRecentIdle() string {
	var (
		id     string
		oldest time.Time
	)
	for sid, s := range m.sessions {
		if s.tracker.Busy() {
			continue
		}
		if used := s.idleSince(); id == "" || used.Before(oldest) {
			id, oldest = sid, used
		}
	}
	return id
}

// Get returns the session with id and marks it used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.deps.now())
	}
	return s, ok
}

// GetOrCreate returns the session with id, or a new one when id is empty
// or unknown. created reports which.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool, err error) {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s, false, nil
		}
	}
	s, err = m.Create()
	return s, err == nil, err
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle since before now-idle. Sessions with a call
// in flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.idle)

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) && !s.tracker.Busy() {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(n)
	return removed
}

// Run sweeps idle sessions periodically. It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "session.janitor"))
	log.Info("starting session janitor",
		zap.Duration("interval", interval),
		zap.Duration("idle_timeout", m.idle),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session janitor stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(m.deps.now()); n > 0 {
				log.Info("expired idle sessions", zap.Int("removed", n), zap.Int("active", m.Len()))
			}
		}
	}
}
