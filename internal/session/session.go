// Package session implements the per-connection state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/chatrelay/internal/dispatch"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/events"
	"github.com/nfrund/chatrelay/internal/identity"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/nfrund/chatrelay/internal/rooms"
	"github.com/samber/lo"
)

// State is the lifecycle stage of a session.
type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Directory is the subset of the room directory a session mutates.
type Directory interface {
	Join(roomID string, m rooms.Member) error
	Leave(roomID string, m rooms.Member)
	RemoveAll(m rooms.Member) []string
}

// Gateway persists messages.
type Gateway interface {
	Submit(ctx context.Context, sessionID, roomID, senderID, text string) (domain.Message, error)
}

// Dispatcher broadcasts persisted messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, roomID string, msg domain.Message) dispatch.Report
}

// Dependencies are the shared collaborators of every session.
type Dependencies struct {
	Authenticator identity.Authenticator
	Directory     Directory
	Gateway       Gateway
	Dispatcher    Dispatcher
	Access        AccessPolicy
	Publisher     pubsub.Publisher
}

// Session is one client connection. Handle must be called from a single
// goroutine; Deliver and Close are safe for concurrent use.
type Session struct {
	id         string
	remoteAddr string
	deps       Dependencies
	logger     *slog.Logger
	onClose    func(*Session)

	mu        sync.Mutex
	state     State
	principal domain.Principal
	joined    map[string]struct{}

	outMu  sync.RWMutex
	outbox chan Outbound // nil once closed
	out    <-chan Outbound
}

func newSession(id, remoteAddr string, outboxSize int, deps Dependencies, onClose func(*Session)) *Session {
	ch := make(chan Outbound, outboxSize)
	return &Session{
		id:         id,
		remoteAddr: remoteAddr,
		deps:       deps,
		logger:     slog.Default().With("component", "session", "session_id", id),
		onClose:    onClose,
		state:      StateConnected,
		joined:     make(map[string]struct{}),
		outbox:     ch,
		out:        ch,
	}
}

// SessionID implements rooms.Member.
func (s *Session) SessionID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Principal returns the bound identity and whether one is bound.
func (s *Session) Principal() (domain.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, !s.principal.IsZero()
}

// JoinedRooms returns the rooms this session believes it has joined.
func (s *Session) JoinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.joined)
}

// Outbox yields events queued for the client. It is closed when the session
// closes.
func (s *Session) Outbox() <-chan Outbound {
	return s.out
}

// Deliver implements rooms.Member. It never blocks: a full outbox is a
// delivery failure for this session only.
func (s *Session) Deliver(ctx context.Context, msg domain.Message) error {
	s.outMu.RLock()
	defer s.outMu.RUnlock()

	if s.outbox == nil {
		return domain.ErrSessionClosed
	}
	select {
	case s.outbox <- Outbound{Type: OutMessage, RoomID: msg.RoomID, Message: &msg}:
		return nil
	default:
		return fmt.Errorf("%w: outbox full", domain.ErrDeliveryFailure)
	}
}

// Reply queues acknowledgements for the client, waiting for outbox space
// until ctx is done.
func (s *Session) Reply(ctx context.Context, out ...Outbound) error {
	s.outMu.RLock()
	defer s.outMu.RUnlock()

	for _, o := range out {
		if s.outbox == nil {
			return domain.ErrSessionClosed
		}
		select {
		case s.outbox <- o:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Handle applies one inbound event and returns the acknowledgements owed to
// this client. Broadcast messages, including the echo of the client's own
// sends, arrive through the outbox instead.
func (s *Session) Handle(ctx context.Context, in Inbound) []Outbound {
	if s.State() == StateClosed {
		return nil
	}

	switch in.Type {
	case InAuthenticate:
		return s.authenticate(ctx, in)
	case InJoinRoom:
		return s.join(ctx, in)
	case InLeaveRoom:
		return s.leave(in)
	case InSendMessage:
		return s.send(ctx, in)
	case InDisconnect:
		s.Close("client disconnect")
		return nil
	default:
		return []Outbound{ErrorEvent(fmt.Errorf("%w: unknown event %q", domain.ErrValidation, in.Type), in.Ref)}
	}
}

func (s *Session) authenticate(ctx context.Context, in Inbound) []Outbound {
	if _, bound := s.Principal(); bound {
		return []Outbound{ErrorEvent(fmt.Errorf("%w: session already authenticated", domain.ErrValidation), in.Ref)}
	}

	principal, err := s.deps.Authenticator.Authenticate(ctx, in.Credential)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		s.logger.Info("Authentication failed", "error", err)
		return []Outbound{ErrorEvent(err, in.Ref)}
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateAuthenticated
	s.principal = principal
	s.mu.Unlock()

	s.logger.Info("Session authenticated", "user_id", principal.ID)
	publishEvent(ctx, s, events.TopicSessionConnected, principal.ID, events.SessionConnected{
		SessionID:   s.id,
		UserID:      principal.ID,
		DisplayName: principal.DisplayName,
		RemoteAddr:  s.remoteAddr,
		At:          time.Now().UTC(),
	})

	p := principal
	return []Outbound{{Type: OutAuthenticated, Principal: &p, Ref: in.Ref}}
}

// requirePrincipal returns the bound principal or ErrUnauthenticated.
func (s *Session) requirePrincipal() (domain.Principal, error) {
	p, ok := s.Principal()
	if !ok {
		return domain.Principal{}, fmt.Errorf("%w: authenticate first", domain.ErrUnauthenticated)
	}
	return p, nil
}

func (s *Session) join(ctx context.Context, in Inbound) []Outbound {
	principal, err := s.requirePrincipal()
	if err != nil {
		return []Outbound{ErrorEvent(err, in.Ref)}
	}
	if err := domain.ValidateRoomID(in.RoomID); err != nil {
		return []Outbound{ErrorEvent(err, in.Ref)}
	}
	if err := s.deps.Access.CanJoin(ctx, in.RoomID, principal); err != nil {
		s.logger.Info("Join refused", "room_id", in.RoomID, "error", err)
		return []Outbound{ErrorEvent(err, in.Ref)}
	}

	// Holding mu across the directory update keeps Close from running
	// RemoveAll between the two writes.
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return []Outbound{ErrorEvent(domain.ErrSessionClosed, in.Ref)}
	}
	if err := s.deps.Directory.Join(in.RoomID, s); err != nil {
		s.mu.Unlock()
		return []Outbound{ErrorEvent(err, in.Ref)}
	}
	s.joined[in.RoomID] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("Joined room", "room_id", in.RoomID)
	return []Outbound{{Type: OutJoined, RoomID: in.RoomID, Ref: in.Ref}}
}

func (s *Session) leave(in Inbound) []Outbound {
	if _, err := s.requirePrincipal(); err != nil {
		return []Outbound{ErrorEvent(err, in.Ref)}
	}

	s.mu.Lock()
	s.deps.Directory.Leave(in.RoomID, s)
	delete(s.joined, in.RoomID)
	s.mu.Unlock()

	return []Outbound{{Type: OutLeft, RoomID: in.RoomID, Ref: in.Ref}}
}

func (s *Session) send(ctx context.Context, in Inbound) []Outbound {
	principal, err := s.requirePrincipal()
	if err != nil {
		return []Outbound{ErrorEvent(err, in.Ref)}
	}

	msg, err := s.deps.Gateway.Submit(ctx, s.id, in.RoomID, principal.ID, in.Text)
	if err != nil {
		s.logger.Info("Message rejected", "room_id", in.RoomID, "kind", domain.Kind(err), "error", err)
		return []Outbound{ErrorEvent(err, in.Ref)}
	}

	s.deps.Dispatcher.Dispatch(ctx, in.RoomID, msg)
	return nil
}

// Close moves the session to its terminal state, removes it from every room
// and closes the outbox. Calling Close more than once has no effect.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	principal := s.principal
	s.joined = make(map[string]struct{})
	left := s.deps.Directory.RemoveAll(s)
	s.mu.Unlock()

	s.outMu.Lock()
	close(s.outbox)
	s.outbox = nil
	s.outMu.Unlock()

	s.logger.Info("Session closed", "reason", reason, "rooms", len(left))

	if !principal.IsZero() {
		publishEvent(context.Background(), s, events.TopicSessionDisconnected, principal.ID, events.SessionDisconnected{
			SessionID: s.id,
			UserID:    principal.ID,
			Rooms:     left,
			Reason:    reason,
			At:        time.Now().UTC(),
		})
	}
	if s.onClose != nil {
		s.onClose(s)
	}
}

func publishEvent[T any](ctx context.Context, s *Session, event pubsub.Event[T], userID string, payload T) {
	if s.deps.Publisher == nil {
		return
	}
	if err := pubsub.Publish(ctx, s.deps.Publisher, event, userID, payload); err != nil {
		s.logger.Error("Failed to publish event", "topic", event.Name(), "error", err)
	}
}
