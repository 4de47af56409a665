package navigator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/observability"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("navigation session not found")
	// ErrTooManySessions is returned by Create when the registry is full.
	ErrTooManySessions = errors.New("too many navigation sessions")
)

const (
	DefaultIdleTTL        = 30 * time.Minute
	DefaultExpirySchedule = "@every 1m"
	DefaultMaxSessions    = 1024
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Session        Options
	IdleTTL        time.Duration
	ExpirySchedule string
	MaxSessions    int
}

// Manager is a registry of sessions keyed by uuid. Idle sessions expire.
type Manager struct {
	src    Source
	opts   ManagerOptions
	logger logrus.FieldLogger
	cron   *cron.Cron

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. Expiry runs only after Start.
func NewManager(src Source, opts ManagerOptions) (*Manager, error) {
	opts.Session = opts.Session.withDefaults()
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.ExpirySchedule == "" {
		opts.ExpirySchedule = DefaultExpirySchedule
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}

	m := &Manager{
		src:      src,
		opts:     opts,
		logger:   opts.Session.Logger.WithField("component", "session_manager"),
		cron:     cron.New(),
		sessions: make(map[string]*Session),
	}
	if _, err := m.cron.AddFunc(opts.ExpirySchedule, func() { m.ExpireIdle() }); err != nil {
		return nil, fmt.Errorf("schedule session expiry %q: %w", opts.ExpirySchedule, err)
	}
	return m, nil
}

// Create registers and starts a new session.
func (m *Manager) Create(pinned string) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s := NewSession(uuid.NewString(), m.src, m.opts.Session)
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	if err := s.Start(pinned); err != nil {
		_ = m.Delete(s.ID())
		return nil, err
	}
	observability.UpdateActiveSessions(n)
	return s, nil
}

// Get returns a registered session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete stops and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	observability.UpdateActiveSessions(n)
	return nil
}

// IDs returns registered session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ExpireIdle removes sessions unused for longer than IdleTTL.
func (m *Manager) ExpireIdle() int {
	cutoff := m.opts.Session.Now().Add(-m.opts.IdleTTL).UnixMilli()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastActive() < cutoff {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Stop()
	}
	if len(expired) > 0 {
		observability.UpdateActiveSessions(n)
		m.logger.WithField("expired", len(expired)).Info("expired idle navigation sessions")
	}
	return len(expired)
}

// Start begins the expiry schedule.
func (m *Manager) Start() {
	m.cron.Start()
}

// Stop halts the expiry schedule and stops every session.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	observability.UpdateActiveSessions(0)
}
