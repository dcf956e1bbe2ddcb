// Package rooms tracks which live sessions are subscribed to which rooms.
package rooms

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/samber/lo"
)

// Member is a live connection that can be subscribed to rooms and receive
// messages dispatched to them. Deliver must not block.
type Member interface {
	SessionID() string
	Deliver(ctx context.Context, msg domain.Message) error
}

// Directory is the authoritative in-memory record of room membership.
// A single lock guards both indexes, so RemoveAll is atomic with respect
// to MembersOf snapshots.
type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]Member   // roomID -> sessionID -> member
	sessions map[string]map[string]struct{} // sessionID -> set of roomIDs
	logger   *slog.Logger
}

// Stats is a point-in-time summary of the directory.
type Stats struct {
	Rooms    int `json:"rooms"`
	Sessions int `json:"sessions"`
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms:    make(map[string]map[string]Member),
		sessions: make(map[string]map[string]struct{}),
		logger:   slog.Default().With("component", "rooms"),
	}
}

// Join subscribes m to roomID. Joining a room twice is a no-op.
func (d *Directory) Join(roomID string, m Member) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	sid := m.SessionID()

	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[roomID]
	if !ok {
		members = make(map[string]Member)
		d.rooms[roomID] = members
	}
	if _, already := members[sid]; already {
		return nil
	}
	members[sid] = m

	joined, ok := d.sessions[sid]
	if !ok {
		joined = make(map[string]struct{})
		d.sessions[sid] = joined
	}
	joined[roomID] = struct{}{}

	d.logger.Debug("Session joined room", "session_id", sid, "room_id", roomID, "members", len(members))
	return nil
}

// Leave unsubscribes m from roomID. Leaving a room not joined is a no-op.
func (d *Directory) Leave(roomID string, m Member) {
	sid := m.SessionID()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeLocked(roomID, sid)
	if joined, ok := d.sessions[sid]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(d.sessions, sid)
		}
	}
}

// RemoveAll drops m from every room it belongs to and returns the rooms it
// was removed from.
func (d *Directory) RemoveAll(m Member) []string {
	sid := m.SessionID()

	d.mu.Lock()
	defer d.mu.Unlock()

	joined := d.sessions[sid]
	removed := lo.Keys(joined)
	for roomID := range joined {
		d.removeLocked(roomID, sid)
	}
	delete(d.sessions, sid)

	if len(removed) > 0 {
		d.logger.Debug("Session removed from all rooms", "session_id", sid, "rooms", len(removed))
	}
	return removed
}

// removeLocked deletes sid from roomID, reaping the room when it empties.
func (d *Directory) removeLocked(roomID, sid string) {
	members, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(d.rooms, roomID)
	}
}

// MembersOf returns a snapshot of the members of roomID. The returned slice
// is owned by the caller and unaffected by later joins or leaves.
func (d *Directory) MembersOf(roomID string) []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return lo.Values(d.rooms[roomID])
}

// IsMember reports whether the session is currently subscribed to roomID.
func (d *Directory) IsMember(roomID, sessionID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.rooms[roomID][sessionID]
	return ok
}

// RoomsOf returns the rooms the session is subscribed to.
func (d *Directory) RoomsOf(sessionID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return lo.Keys(d.sessions[sessionID])
}

// Stats reports the number of non-empty rooms and subscribed sessions.
func (d *Directory) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{Rooms: len(d.rooms), Sessions: len(d.sessions)}
}
