// Package gateway is the single path through which messages are persisted.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/store"
	"golang.org/x/text/unicode/norm"
)

// MembershipChecker reports live room membership for a session.
type MembershipChecker interface {
	IsMember(roomID, sessionID string) bool
}

const (
	DefaultTimeout          = 5 * time.Second
	DefaultMaxMessageLength = 4000
)

// Gateway validates, authorizes and persists messages. A Message returned by
// Submit has been durably appended and is the only value that may be
// broadcast.
type Gateway struct {
	store     store.Store
	members   MembershipChecker
	timeout   time.Duration
	maxLength int
	logger    *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout bounds each append to the store.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxMessageLength sets the maximum text length in runes.
func WithMaxMessageLength(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxLength = n
		}
	}
}

// New creates a gateway over s that consults members for authorization.
func New(s store.Store, members MembershipChecker, opts ...Option) *Gateway {
	g := &Gateway{
		store:     s,
		members:   members,
		timeout:   DefaultTimeout,
		maxLength: DefaultMaxMessageLength,
		logger:    slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit persists text from senderID, sent over sessionID, into roomID.
//
// It fails with ErrValidation for missing or oversized input, ErrNotAMember
// when the session has not joined the room, and ErrStoreUnavailable when the
// append fails or exceeds the configured timeout.
func (g *Gateway) Submit(ctx context.Context, sessionID, roomID, senderID, text string) (domain.Message, error) {
	if !utf8.ValidString(text) {
		return domain.Message{}, fmt.Errorf("%w: text is not valid UTF-8", domain.ErrValidation)
	}
	text = norm.NFC.String(text)

	sub := domain.Submission{RoomID: roomID, SenderID: senderID, Text: text}
	if err := sub.Validate(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if n := utf8.RuneCountInString(text); n > g.maxLength {
		return domain.Message{}, fmt.Errorf("%w: text is %d characters, limit is %d", domain.ErrValidation, n, g.maxLength)
	}

	if !g.members.IsMember(roomID, sessionID) {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrNotAMember, roomID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	msg, err := g.store.AppendMessage(storeCtx, roomID, senderID, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(storeCtx.Err(), context.DeadlineExceeded) {
			g.logger.Error("Message append timed out",
				"room_id", roomID, "sender_id", senderID, "timeout", g.timeout)
		} else {
			g.logger.Error("Message append failed",
				"room_id", roomID, "sender_id", senderID, "error", err)
		}
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	g.logger.Debug("Message persisted",
		"message_id", msg.ID, "room_id", roomID, "sender_id", senderID,
		"duration_ms", time.Since(start).Milliseconds())
	return msg, nil
}
