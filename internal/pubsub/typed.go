package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUndecodable marks a payload that can never be handled. Such messages are
// acknowledged rather than redelivered.
var ErrUndecodable = errors.New("undecodable payload")

// Event binds a topic name to its payload type.
type Event[T any] struct {
	name string
}

// NewEvent declares a typed event on topic name.
func NewEvent[T any](name string) Event[T] {
	return Event[T]{name: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.name
}

// Publish JSON-encodes payload and sends it on the event's topic.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], userID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.name, err)
	}
	return p.Publish(ctx, Message{
		Topic:   event.name,
		UserID:  userID,
		Payload: data,
	})
}

// Subscribe decodes each message on the event's topic into T before calling
// handler. Undecodable payloads are reported as handler errors.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, payload T) error) error {
	return s.Subscribe(ctx, event.name, func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w: %w", event.name, ErrUndecodable, err)
		}
		return handler(ctx, payload)
	})
}
