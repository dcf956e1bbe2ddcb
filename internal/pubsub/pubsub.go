// Package pubsub carries relay lifecycle events between components in the
// same process.
package pubsub

import (
	"context"
)

// Message is the envelope passed between components on the bus.
type Message struct {
	// Topic identifies the event stream, e.g. "relay.session.connected".
	Topic string
	// UserID identifies the principal the event is about, if any.
	UserID string
	// Payload is the JSON encoded event body.
	Payload []byte
	// Metadata carries arbitrary string attributes.
	Metadata map[string]string
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe registers handler for topic and returns once the
	// subscription is active. Delivery stops when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// PubSub is both ends of the bus.
type PubSub interface {
	Publisher
	Subscriber
}
