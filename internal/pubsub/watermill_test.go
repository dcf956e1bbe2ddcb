package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_PublishSubscribe(t *testing.T) {
	bus := NewWatermillBridge(16)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bus.Subscribe(ctx, "relay.test", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, Message{
		Topic:    "relay.test",
		UserID:   "u1",
		Payload:  []byte(`{"ok":true}`),
		Metadata: map[string]string{"room_id": "r1"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "relay.test", msg.Topic)
		assert.Equal(t, "u1", msg.UserID)
		assert.JSONEq(t, `{"ok":true}`, string(msg.Payload))
		assert.Equal(t, "r1", msg.Metadata["room_id"])
		assert.NotContains(t, msg.Metadata, metaKeyTopic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

type sample struct {
	RoomID string `json:"room_id"`
	Count  int    `json:"count"`
}

func TestTypedEvent(t *testing.T) {
	bus := NewWatermillBridge(16)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := NewEvent[sample]("relay.sample")
	assert.Equal(t, "relay.sample", event.Name())

	var (
		mu  sync.Mutex
		got []sample
	)
	require.NoError(t, Subscribe(ctx, bus, event, func(ctx context.Context, s sample) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
		return nil
	}))

	require.NoError(t, Publish(ctx, bus, event, "u1", sample{RoomID: "r1", Count: 2}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sample{RoomID: "r1", Count: 2}, got[0])
}

func TestTypedEvent_DecodeError(t *testing.T) {
	sub := &captureSubscriber{}
	event := NewEvent[sample]("relay.sample")

	require.NoError(t, Subscribe(context.Background(), sub, event, func(ctx context.Context, s sample) error {
		return errors.New("must not be called")
	}))

	err := sub.handler(context.Background(), Message{Topic: "relay.sample", Payload: []byte("not json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode relay.sample payload")
	assert.ErrorIs(t, err, ErrUndecodable)
}

type captureSubscriber struct {
	handler Handler
}

func (c *captureSubscriber) Subscribe(ctx context.Context, topic string, handler Handler) error {
	c.handler = handler
	return nil
}

func (c *captureSubscriber) Close() error { return nil }
