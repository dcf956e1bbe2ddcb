package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultOutboxSize is the number of outbound events buffered per session.
const DefaultOutboxSize = 256

// Manager creates sessions and tracks the ones still open.
type Manager struct {
	deps       Dependencies
	outboxSize int
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithOutboxSize sets the per-session outbound buffer.
func WithOutboxSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.outboxSize = n
		}
	}
}

// NewManager returns a manager whose sessions share deps. A nil Access
// policy admits everyone.
func NewManager(deps Dependencies, opts ...Option) *Manager {
	if deps.Access == nil {
		deps.Access = OpenAccess{}
	}
	m := &Manager{
		deps:       deps,
		outboxSize: DefaultOutboxSize,
		logger:     slog.Default().With("component", "session"),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a session in the Connected state.
func (m *Manager) Open(remoteAddr string) *Session {
	s := newSession(uuid.NewString(), remoteAddr, m.outboxSize, m.deps, m.remove)

	m.mu.Lock()
	m.sessions[s.id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Debug("Session opened", "session_id", s.id, "remote_addr", remoteAddr, "total_sessions", total)
	return s
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
}

// Get returns an open session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every open session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	open := lo.Values(m.sessions)
	m.mu.RUnlock()

	for _, s := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Close("server shutdown")
	}
	m.logger.Info("Closed all sessions", "count", len(open))
	return nil
}
