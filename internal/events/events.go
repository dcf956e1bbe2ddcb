// Package events declares the lifecycle events the relay publishes on the bus.
package events

import (
	"time"

	"github.com/nfrund/chatrelay/internal/pubsub"
)

// SessionConnected is published once a session has authenticated.
type SessionConnected struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	At          time.Time `json:"at"`
}

// SessionDisconnected is published after a session has been removed from
// every room.
type SessionDisconnected struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Rooms     []string  `json:"rooms,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// MessageDispatched summarizes the fan-out of one persisted message.
type MessageDispatched struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// DeliveryFailed records a single recipient that did not receive a message.
type DeliveryFailed struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// PresenceChanged carries the full set of online users after a change.
type PresenceChanged struct {
	Users []string  `json:"users"`
	At    time.Time `json:"at"`
}

var (
	TopicSessionConnected    = pubsub.NewEvent[SessionConnected]("relay.session.connected")
	TopicSessionDisconnected = pubsub.NewEvent[SessionDisconnected]("relay.session.disconnected")
	TopicMessageDispatched   = pubsub.NewEvent[MessageDispatched]("relay.message.dispatched")
	TopicDeliveryFailed      = pubsub.NewEvent[DeliveryFailed]("relay.delivery.failed")
	TopicPresenceChanged     = pubsub.NewEvent[PresenceChanged]("relay.presence.changed")
)

// Topic describes one bus topic for tooling.
type Topic struct {
	Name        string `json:"name"`
	Publisher   string `json:"publisher"`
	Description string `json:"description"`
}

// Catalog lists every topic the relay publishes, sorted by name.
func Catalog() []Topic {
	return []Topic{
		{TopicDeliveryFailed.Name(), "dispatch", "A recipient session could not be sent a message"},
		{TopicMessageDispatched.Name(), "dispatch", "A persisted message was fanned out to a room"},
		{TopicPresenceChanged.Name(), "presence", "The set of online users changed"},
		{TopicSessionConnected.Name(), "session", "A session authenticated"},
		{TopicSessionDisconnected.Name(), "session", "A session closed and left its rooms"},
	}
}
