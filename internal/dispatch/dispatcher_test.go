package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/events"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/nfrund/chatrelay/internal/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPublisher implements pubsub.Publisher for testing.
type mockPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg.Topic)
	}
	return out
}

type recipient struct {
	id  string
	err error

	mu       sync.Mutex
	received []domain.Message
}

func (r *recipient) SessionID() string { return r.id }

func (r *recipient) Deliver(ctx context.Context, msg domain.Message) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, msg)
	return nil
}

func (r *recipient) messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.received...)
}

func newMessage() domain.Message {
	return domain.Message{
		ID:        "m1",
		RoomID:    "r1",
		SenderID:  "alice",
		Text:      "hi",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_DeliversToEveryMemberIncludingSender(t *testing.T) {
	dir := rooms.NewDirectory()
	sender := &recipient{id: "s-alice"}
	other := &recipient{id: "s-bob"}
	outsider := &recipient{id: "s-carol"}
	require.NoError(t, dir.Join("r1", sender))
	require.NoError(t, dir.Join("r1", other))
	require.NoError(t, dir.Join("r2", outsider))

	pub := &mockPublisher{}
	d := New(dir, pub)
	msg := newMessage()

	report := d.Dispatch(context.Background(), "r1", msg)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Delivered)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []domain.Message{msg}, sender.messages())
	assert.Equal(t, []domain.Message{msg}, other.messages())
	assert.Empty(t, outsider.messages())
	assert.Equal(t, []string{events.TopicMessageDispatched.Name()}, pub.topics())
}

func TestDispatch_FailureDoesNotAbortFanOut(t *testing.T) {
	dir := rooms.NewDirectory()
	broken := &recipient{id: "s-broken", err: domain.ErrDeliveryFailure}
	healthy := []*recipient{{id: "s1"}, {id: "s2"}, {id: "s3"}}
	require.NoError(t, dir.Join("r1", broken))
	for _, r := range healthy {
		require.NoError(t, dir.Join("r1", r))
	}

	pub := &mockPublisher{}
	d := New(dir, pub)
	report := d.Dispatch(context.Background(), "r1", newMessage())

	assert.Equal(t, 4, report.Attempted)
	assert.Equal(t, 3, report.Delivered)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "s-broken", report.Failures[0].SessionID)
	for _, r := range healthy {
		assert.Len(t, r.messages(), 1, "recipient %s", r.id)
	}

	assert.ElementsMatch(t, []string{
		events.TopicDeliveryFailed.Name(),
		events.TopicMessageDispatched.Name(),
	}, pub.topics())

	var failed events.DeliveryFailed
	require.NoError(t, json.Unmarshal(pub.messages[0].Payload, &failed))
	assert.Equal(t, "s-broken", failed.SessionID)
	assert.Equal(t, "m1", failed.MessageID)

	assert.Equal(t, Counters{Messages: 1, Deliveries: 3, DeliveryFailures: 1}, d.Counters())
}

func TestDispatch_ClosedMemberIsSkipped(t *testing.T) {
	dir := rooms.NewDirectory()
	closing := &recipient{id: "s-closing", err: domain.ErrSessionClosed}
	live := &recipient{id: "s-live"}
	require.NoError(t, dir.Join("r1", closing))
	require.NoError(t, dir.Join("r1", live))

	pub := &mockPublisher{}
	d := New(dir, pub)
	report := d.Dispatch(context.Background(), "r1", newMessage())

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{events.TopicMessageDispatched.Name()}, pub.topics())
	assert.Equal(t, uint64(0), d.Counters().DeliveryFailures)
}

func TestDispatch_EmptyRoom(t *testing.T) {
	d := New(rooms.NewDirectory(), nil)
	report := d.Dispatch(context.Background(), "nobody-here", newMessage())

	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, Counters{Messages: 1}, d.Counters())
}

func TestDispatch_RemovedSessionIsNotTargeted(t *testing.T) {
	dir := rooms.NewDirectory()
	a := &recipient{id: "a"}
	b := &recipient{id: "b"}
	require.NoError(t, dir.Join("r1", a))
	require.NoError(t, dir.Join("r1", b))

	dir.RemoveAll(a)

	report := New(dir, nil).Dispatch(context.Background(), "r1", newMessage())
	assert.Equal(t, 1, report.Attempted)
	assert.Empty(t, a.messages())
	assert.Len(t, b.messages(), 1)
}

func TestDispatch_PublisherErrorsAreIgnored(t *testing.T) {
	dir := rooms.NewDirectory()
	a := &recipient{id: "a"}
	require.NoError(t, dir.Join("r1", a))

	report := New(dir, failingPublisher{}).Dispatch(context.Background(), "r1", newMessage())
	assert.Equal(t, 1, report.Delivered)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	return errors.New("bus closed")
}

func (failingPublisher) Close() error { return nil }
