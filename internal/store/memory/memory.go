// Package memory is an in-process Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/samber/lo"
)

// Store keeps rooms, memberships and messages in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string]domain.Room
	members  map[string]map[string]struct{} // roomID -> userIDs
	messages map[string][]domain.Message    // roomID -> messages in append order
	closed   bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		rooms:    make(map[string]domain.Room),
		members:  make(map[string]map[string]struct{}),
		messages: make(map[string][]domain.Message),
	}
}

func (s *Store) AppendMessage(ctx context.Context, roomID, senderID, text string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Message{}, store.ErrClosed
	}

	msg := domain.Message{
		ID:        store.NewID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: store.Now(),
	}
	s.messages[roomID] = append(s.messages[roomID], msg)
	return msg, nil
}

func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.members[roomID][userID]
	return ok, nil
}

func (s *Store) ListRoomsFor(ctx context.Context, userID string) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := lo.FilterMap(lo.Keys(s.members), func(roomID string, _ int) (domain.Room, bool) {
		if _, ok := s.members[roomID][userID]; !ok {
			return domain.Room{}, false
		}
		room, ok := s.rooms[roomID]
		if !ok {
			room = domain.Room{ID: roomID}
		}
		return room, true
	})
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *Store) CreateRoom(ctx context.Context, title string, isGroup bool, creatorID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Room{}, store.ErrClosed
	}

	room := domain.Room{
		ID:        store.NewID(),
		Title:     title,
		IsGroup:   isGroup,
		CreatedBy: creatorID,
		CreatedAt: store.Now(),
	}
	s.rooms[room.ID] = room
	s.members[room.ID] = map[string]struct{}{creatorID: {}}
	return room, nil
}

func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	s.members[roomID][userID] = struct{}{}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, q store.HistoryQuery) ([]domain.Message, error) {
	q = q.Normalize()

	s.mu.RLock()
	history := append([]domain.Message(nil), s.messages[roomID]...)
	s.mu.RUnlock()

	sort.SliceStable(history, func(i, j int) bool { return history[i].Before(history[j]) })

	if q.Before != "" {
		idx := lo.IndexOf(lo.Map(history, func(m domain.Message, _ int) string { return m.ID }), q.Before)
		if idx < 0 {
			return nil, fmt.Errorf("cursor message %s: %w", q.Before, domain.ErrNotFound)
		}
		history = history[:idx]
	}

	if len(history) > q.Limit {
		history = history[len(history)-q.Limit:]
	}
	return history, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
