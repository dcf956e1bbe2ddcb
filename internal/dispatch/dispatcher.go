// Package dispatch fans persisted messages out to the live members of a room.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/events"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/nfrund/chatrelay/internal/rooms"
)

// Snapshotter returns the members of a room at the time of the call.
type Snapshotter interface {
	MembersOf(roomID string) []rooms.Member
}

// Failure identifies a recipient that could not be reached.
type Failure struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Report describes the outcome of one Dispatch call. Skipped counts members
// that closed between the snapshot and delivery.
type Report struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Counters are cumulative dispatch totals since startup.
type Counters struct {
	Messages         uint64 `json:"messages"`
	Deliveries       uint64 `json:"deliveries"`
	DeliveryFailures uint64 `json:"delivery_failures"`
}

// Dispatcher delivers messages to every session in a room's snapshot,
// including the sender. Delivery is best effort per session.
type Dispatcher struct {
	members   Snapshotter
	publisher pubsub.Publisher
	logger    *slog.Logger

	messages   atomic.Uint64
	deliveries atomic.Uint64
	failures   atomic.Uint64
}

// New creates a dispatcher. publisher may be nil, in which case no events
// are emitted.
func New(members Snapshotter, publisher pubsub.Publisher) *Dispatcher {
	return &Dispatcher{
		members:   members,
		publisher: publisher,
		logger:    slog.Default().With("component", "dispatch"),
	}
}

// Dispatch delivers msg to the current members of roomID. A failed delivery
// is logged and counted; it never stops delivery to the remaining members.
// Members that close while the dispatch is in progress are skipped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, roomID string, msg domain.Message) Report {
	recipients := d.members.MembersOf(roomID)
	report := Report{
		RoomID:    roomID,
		MessageID: msg.ID,
		Attempted: len(recipients),
	}

	for _, r := range recipients {
		err := r.Deliver(ctx, msg)
		if errors.Is(err, domain.ErrSessionClosed) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Failures = append(report.Failures, Failure{SessionID: r.SessionID(), Error: err.Error()})
			d.logger.Warn("Delivery failed",
				"room_id", roomID, "message_id", msg.ID,
				"session_id", r.SessionID(), "error", err)
			publish(ctx, d, events.TopicDeliveryFailed, msg.SenderID, events.DeliveryFailed{
				MessageID: msg.ID,
				RoomID:    roomID,
				SessionID: r.SessionID(),
				Error:     err.Error(),
			})
			continue
		}
		report.Delivered++
	}

	d.messages.Add(1)
	d.deliveries.Add(uint64(report.Delivered))
	d.failures.Add(uint64(len(report.Failures)))

	d.logger.Debug("Message dispatched",
		"room_id", roomID, "message_id", msg.ID,
		"attempted", report.Attempted, "delivered", report.Delivered)

	publish(ctx, d, events.TopicMessageDispatched, msg.SenderID, events.MessageDispatched{
		MessageID: msg.ID,
		RoomID:    roomID,
		SenderID:  msg.SenderID,
		Attempted: report.Attempted,
		Delivered: report.Delivered,
		Failed:    len(report.Failures),
	})
	return report
}

// Counters returns the cumulative totals.
func (d *Dispatcher) Counters() Counters {
	return Counters{
		Messages:         d.messages.Load(),
		Deliveries:       d.deliveries.Load(),
		DeliveryFailures: d.failures.Load(),
	}
}

func publish[T any](ctx context.Context, d *Dispatcher, event pubsub.Event[T], userID string, payload T) {
	if d.publisher == nil {
		return
	}
	if err := pubsub.Publish(ctx, d.publisher, event, userID, payload); err != nil {
		d.logger.Error("Failed to publish event", "topic", event.Name(), "error", err)
	}
}
