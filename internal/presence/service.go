// Package presence tracks which users currently hold at least one
// authenticated session.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/chatrelay/internal/events"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/samber/lo"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// OfflineDebounceDelay is how long a user with no sessions stays listed
// before going offline. It absorbs page reloads and quick reconnects.
const OfflineDebounceDelay = 5 * time.Second

type Presence struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      Status    `json:"status"`
	SessionID   string    `json:"session_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Service struct {
	mu        sync.RWMutex
	presences map[string]map[string]Presence // userID -> sessionID -> Presence
	publisher pubsub.Publisher
	logger    *slog.Logger

	offlineDebounce      map[string]*time.Timer // userID -> pending offline
	offlineDebounceDelay time.Duration
	debounceMu           sync.Mutex
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithOfflineDebounce sets the delay before a user with no sessions is
// reported offline. Zero reports immediately.
func WithOfflineDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.offlineDebounceDelay = d
	}
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}

// NewService subscribes to session lifecycle events. publisher may be nil,
// in which case presence changes are not announced.
func NewService(ctx context.Context, publisher pubsub.Publisher, subscriber pubsub.Subscriber, opts ...Option) (*Service, error) {
	svc := &Service{
		presences:            make(map[string]map[string]Presence),
		publisher:            publisher,
		logger:               slog.Default().With("service", "presence"),
		offlineDebounce:      make(map[string]*time.Timer),
		offlineDebounceDelay: OfflineDebounceDelay,
	}
	for _, opt := range opts {
		opt(svc)
	}

	if err := pubsub.Subscribe(ctx, subscriber, events.TopicSessionConnected, svc.handleSessionConnected); err != nil {
		return nil, err
	}
	if err := pubsub.Subscribe(ctx, subscriber, events.TopicSessionDisconnected, svc.handleSessionDisconnected); err != nil {
		return nil, err
	}

	svc.logger.Info("Presence service initialized")
	return svc, nil
}

func (s *Service) handleSessionConnected(ctx context.Context, ev events.SessionConnected) error {
	s.addPresence(Presence{
		UserID:      ev.UserID,
		DisplayName: ev.DisplayName,
		Status:      StatusOnline,
		SessionID:   ev.SessionID,
		RemoteAddr:  ev.RemoteAddr,
		Timestamp:   ev.At,
	})
	return nil
}

func (s *Service) handleSessionDisconnected(ctx context.Context, ev events.SessionDisconnected) error {
	if ev.UserID == "" {
		return nil
	}
	s.removeSession(ev.UserID, ev.SessionID)
	return nil
}

func (s *Service) addPresence(p Presence) {
	if p.Timestamp.IsZero() {
		p.Timestamp = Now()
	}

	s.debounceMu.Lock()
	if timer, exists := s.offlineDebounce[p.UserID]; exists {
		timer.Stop()
		delete(s.offlineDebounce, p.UserID)
		s.logger.Debug("Cancelled offline debounce due to reconnection", "user_id", p.UserID)
	}
	s.debounceMu.Unlock()

	s.mu.Lock()
	sessions, known := s.presences[p.UserID]
	if !known {
		sessions = make(map[string]Presence)
		s.presences[p.UserID] = sessions
	}
	sessions[p.SessionID] = p
	onlineUsers := s.onlineUsersLocked()
	s.mu.Unlock()

	if known {
		s.logger.Debug("Additional session for user", "user_id", p.UserID, "session_id", p.SessionID)
		return
	}
	s.logger.Info("User came online", "user_id", p.UserID, "session_id", p.SessionID)
	s.publishUpdate(onlineUsers)
}

// removeSession drops one session. The user goes offline once the last
// session is gone and the debounce delay has passed without a reconnect.
func (s *Service) removeSession(userID, sessionID string) {
	s.mu.Lock()
	sessions, exists := s.presences[userID]
	if !exists {
		s.mu.Unlock()
		return
	}
	delete(sessions, sessionID)
	if remaining := len(sessions); remaining > 0 {
		s.mu.Unlock()
		s.logger.Debug("Session disconnected", "user_id", userID, "session_id", sessionID, "remaining_sessions", remaining)
		return
	}

	if s.offlineDebounceDelay == 0 {
		delete(s.presences, userID)
		onlineUsers := s.onlineUsersLocked()
		s.mu.Unlock()
		s.logger.Info("User went offline", "user_id", userID)
		s.publishUpdate(onlineUsers)
		return
	}
	s.mu.Unlock()

	s.debounceMu.Lock()
	if timer, exists := s.offlineDebounce[userID]; exists {
		timer.Stop()
	}
	s.offlineDebounce[userID] = time.AfterFunc(s.offlineDebounceDelay, func() {
		s.handleDebouncedOffline(userID)
	})
	s.debounceMu.Unlock()
}

func (s *Service) handleDebouncedOffline(userID string) {
	s.debounceMu.Lock()
	delete(s.offlineDebounce, userID)
	s.debounceMu.Unlock()

	s.mu.Lock()
	if sessions, exists := s.presences[userID]; exists && len(sessions) > 0 {
		s.mu.Unlock()
		s.logger.Debug("User reconnected during debounce period", "user_id", userID)
		return
	}
	delete(s.presences, userID)
	onlineUsers := s.onlineUsersLocked()
	s.mu.Unlock()

	s.logger.Info("User went offline after debounce period", "user_id", userID)
	s.publishUpdate(onlineUsers)
}

// GetPresence returns the most recent session presence for a user.
func (s *Service) GetPresence(userID string) (Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.presences[userID]
	if len(sessions) == 0 {
		return Presence{}, false
	}
	return lo.MaxBy(lo.Values(sessions), func(a, b Presence) bool {
		return a.Timestamp.After(b.Timestamp)
	}), true
}

// GetOnlineUsers returns the sorted ids of users with at least one session.
// A user whose last session closed stays listed until the debounce expires.
func (s *Service) GetOnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onlineUsersLocked()
}

// SessionCount returns the number of sessions held by userID.
func (s *Service) SessionCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.presences[userID])
}

func (s *Service) onlineUsersLocked() []string {
	users := lo.Keys(s.presences)
	sort.Strings(users)
	return users
}

func (s *Service) publishUpdate(onlineUsers []string) {
	if s.publisher == nil {
		return
	}
	err := pubsub.Publish(context.Background(), s.publisher, events.TopicPresenceChanged, "", events.PresenceChanged{
		Users: onlineUsers,
		At:    Now(),
	})
	if err != nil {
		s.logger.Error("Failed to publish presence update", "error", err)
	}
}

// Shutdown cancels pending offline timers.
func (s *Service) Shutdown() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()
	for userID, timer := range s.offlineDebounce {
		timer.Stop()
		delete(s.offlineDebounce, userID)
	}
}
