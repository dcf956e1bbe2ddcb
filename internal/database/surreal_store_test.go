package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/nfrund/chatrelay/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupSurreal connects to the database named by TEST_SURREAL_URL in a fresh
// database so runs do not see each other's rows.
func setupSurreal(t *testing.T) *SurrealStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping SurrealDB integration test in short mode")
	}
	testutils.LoadEnvTest(t)
	url := os.Getenv("TEST_SURREAL_URL")
	if url == "" {
		t.Skip("TEST_SURREAL_URL not set")
	}

	cfg := &config.Config{
		DBURL:            url,
		DBNs:             "chatrelay_test",
		DBDb:             "t" + strings.ReplaceAll(store.NewID(), "-", "")[20:],
		DBUser:           os.Getenv("TEST_SURREAL_USER"),
		DBPass:           os.Getenv("TEST_SURREAL_PASS"),
		DBQueryTimeout:   5 * time.Second,
		DBExecuteTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSurrealStore_RoomsAndMembership(t *testing.T) {
	s := setupSurreal(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "general", true, "u1")
	require.NoError(t, err)

	ok, err := s.IsMember(ctx, room.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsMember(ctx, room.ID, "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddMember(ctx, room.ID, "u2"))
	require.NoError(t, s.AddMember(ctx, room.ID, "u2"))
	assert.ErrorIs(t, s.AddMember(ctx, "missing", "u2"), domain.ErrNotFound)

	rooms, err := s.ListRoomsFor(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)
	assert.Equal(t, "general", rooms[0].Title)
	assert.True(t, rooms[0].IsGroup)
	assert.WithinDuration(t, room.CreatedAt, rooms[0].CreatedAt, time.Millisecond)
}

func TestSurrealStore_History(t *testing.T) {
	s := setupSurreal(t)
	ctx := context.Background()

	var sent []domain.Message
	for _, text := range []string{"one", "two", "three", "four"} {
		msg, err := s.AppendMessage(ctx, "r1", "u1", text)
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	page, err := s.ListMessages(ctx, "r1", store.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []string{sent[2].ID, sent[3].ID}, []string{page[0].ID, page[1].ID})
	assert.Equal(t, "three", page[0].Text)

	older, err := s.ListMessages(ctx, "r1", store.HistoryQuery{Limit: 10, Before: page[0].ID})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, sent[0].ID, older[0].ID)

	_, err = s.ListMessages(ctx, "r1", store.HistoryQuery{Before: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Ping(ctx))
}
