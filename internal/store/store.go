// Package store defines the durable storage contract used by the relay.
package store

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/chatrelay/internal/domain"
)

// ErrClosed is returned by stores that have been shut down.
var ErrClosed = errors.New("store closed")

// Store persists rooms, durable room membership and messages. Implementations
// assign message ids and timestamps at append time.
type Store interface {
	AppendMessage(ctx context.Context, roomID, senderID, text string) (domain.Message, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	ListRoomsFor(ctx context.Context, userID string) ([]domain.Room, error)
	CreateRoom(ctx context.Context, title string, isGroup bool, creatorID string) (domain.Room, error)
	AddMember(ctx context.Context, roomID, userID string) error
	ListMessages(ctx context.Context, roomID string, q HistoryQuery) ([]domain.Message, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// HistoryQuery selects a page of a room's history. Messages are returned
// oldest first.
type HistoryQuery struct {
	// Limit caps the number of messages returned. Zero means DefaultHistoryLimit.
	Limit int
	// Before, when set, restricts the page to messages that sort before the
	// message with this id.
	Before string
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Normalize clamps the limit into the accepted range.
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return q
}

// NewID returns a time-ordered identifier. Ids generated by one process sort
// in creation order, which breaks ties between equal timestamps.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Now is the timestamp source for created_at values, truncated to the
// precision every backend can store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
