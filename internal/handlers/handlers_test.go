package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/dispatch"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/handlers"
	"github.com/nfrund/chatrelay/internal/middleware"
	"github.com/nfrund/chatrelay/internal/presence"
	"github.com/nfrund/chatrelay/internal/rooms"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/nfrund/chatrelay/internal/store/memory"
	"github.com/nfrund/chatrelay/internal/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// asUser stands in for the auth middleware, trusting the X-Test-User header.
func asUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Request().Header.Get("X-Test-User"); id != "" {
			c.Set(middleware.UserContextKey, domain.Principal{ID: id, DisplayName: id})
		}
		return next(c)
	}
}

func newRoomServer(s store.Store, requireMembers bool) *echo.Echo {
	e := echo.New()
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	h := handlers.NewRoomHandler(s, requireMembers, 2)
	api := e.Group("/api", asUser)
	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms", h.ListRooms)
	api.POST("/rooms/:id/members", h.AddMember)
	api.GET("/rooms/:id/messages", h.ListMessages)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRoomHandler_CreateAndList(t *testing.T) {
	e := newRoomServer(memory.New(), false)

	rec := do(t, e, http.MethodPost, "/api/rooms", "alice", `{"title":"General","is_group":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	room := decode[domain.Room](t, rec)
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, "General", room.Title)
	assert.True(t, room.IsGroup)
	assert.Equal(t, "alice", room.CreatedBy)

	rec = do(t, e, http.MethodGet, "/api/rooms", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string][]domain.Room](t, rec)
	require.Len(t, listed["rooms"], 1)
	assert.Equal(t, room.ID, listed["rooms"][0].ID)

	rec = do(t, e, http.MethodGet, "/api/rooms", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[]}`, rec.Body.String())
}

func TestRoomHandler_Errors(t *testing.T) {
	e := newRoomServer(memory.New(), false)

	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		body     string
		status   int
		wantCode string
	}{
		{"unauthenticated", http.MethodGet, "/api/rooms", "", "", http.StatusUnauthorized, domain.KindUnauthenticated},
		{"missing title", http.MethodPost, "/api/rooms", "alice", `{"is_group":false}`, http.StatusBadRequest, domain.KindValidation},
		{"bad json", http.MethodPost, "/api/rooms", "alice", `{`, http.StatusBadRequest, domain.KindValidation},
		{"limit out of range", http.MethodGet, "/api/rooms/r1/messages?limit=9000", "alice", "", http.StatusBadRequest, domain.KindValidation},
		{"unknown cursor", http.MethodGet, "/api/rooms/r1/messages?before=nope", "alice", "", http.StatusNotFound, domain.KindNotFound},
		{"add to unknown room", http.MethodPost, "/api/rooms/nope/members", "alice", `{"user_id":"bob"}`, http.StatusForbidden, domain.KindNotAMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[handlers.ErrorResponse](t, rec).Code)
		})
	}
}

func TestRoomHandler_AddMemberRequiresMembership(t *testing.T) {
	st := memory.New()
	e := newRoomServer(st, true)

	room, err := st.CreateRoom(context.Background(), "Team", true, "alice")
	require.NoError(t, err)

	rec := do(t, e, http.MethodPost, "/api/rooms/"+room.ID+"/members", "mallory", `{"user_id":"mallory"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/rooms/"+room.ID+"/members", "alice", `{"user_id":"bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ok, err := st.IsMember(context.Background(), room.ID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoomHandler_History(t *testing.T) {
	st := memory.New()
	e := newRoomServer(st, true)

	room, err := st.CreateRoom(context.Background(), "Team", true, "alice")
	require.NoError(t, err)
	var sent []domain.Message
	for _, text := range []string{"one", "two", "three"} {
		msg, err := st.AppendMessage(context.Background(), room.ID, "alice", text)
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	rec := do(t, e, http.MethodGet, "/api/rooms/"+room.ID+"/messages", "bob", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "non-members cannot read history")

	type page struct {
		RoomID   string           `json:"room_id"`
		Messages []domain.Message `json:"messages"`
	}

	// The handler's default page size is 2.
	rec = do(t, e, http.MethodGet, "/api/rooms/"+room.ID+"/messages", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	latest := decode[page](t, rec)
	require.Len(t, latest.Messages, 2)
	assert.Equal(t, "two", latest.Messages[0].Text)
	assert.Equal(t, "three", latest.Messages[1].Text)

	rec = do(t, e, http.MethodGet, "/api/rooms/"+room.ID+"/messages?before="+latest.Messages[0].ID, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	older := decode[page](t, rec)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, sent[0].ID, older.Messages[0].ID)
}

func TestRoomHandler_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().ListRoomsFor(gomock.Any(), "alice").Return(nil, errors.New("connection reset"))

	e := newRoomServer(st, false)
	rec := do(t, e, http.MethodGet, "/api/rooms", "alice", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.KindStoreUnavailable, decode[handlers.ErrorResponse](t, rec).Code)
}

type fakePresence map[string]presence.Presence

func (f fakePresence) GetOnlineUsers() []string {
	users := make([]string, 0, len(f))
	for id := range f {
		users = append(users, id)
	}
	return users
}

func (f fakePresence) GetPresence(userID string) (presence.Presence, bool) {
	p, ok := f[userID]
	return p, ok
}

func TestPresenceHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = handlers.ErrorHandler
	h := handlers.NewPresenceHandler(fakePresence{"alice": {UserID: "alice", Status: presence.StatusOnline}})
	e.GET("/api/presence", h.GetPresence)
	e.GET("/api/presence/:userID", h.GetUserPresence)

	rec := do(t, e, http.MethodGet, "/api/presence", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online_users":["alice"],"count":1}`, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/api/presence/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, presence.StatusOnline, decode[presence.Presence](t, rec).Status)

	rec = do(t, e, http.MethodGet, "/api/presence/bob", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type staticCounters dispatch.Counters

func (s staticCounters) Counters() dispatch.Counters { return dispatch.Counters(s) }

type staticCount int

func (s staticCount) Count() int { return int(s) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestOpsHandler(t *testing.T) {
	dir := rooms.NewDirectory()
	healthy := true
	h := handlers.NewOpsHandler(
		pingFunc(func(ctx context.Context) error {
			if healthy {
				return nil
			}
			return store.ErrClosed
		}),
		staticCounters{Messages: 3, Deliveries: 5, DeliveryFailures: 1},
		dir,
		staticCount(2),
	)

	e := echo.New()
	e.GET("/health", h.Health)
	e.GET("/api/stats", h.Stats)

	rec := do(t, e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = do(t, e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[handlers.StatsResponse](t, rec)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, uint64(3), stats.Dispatch.Messages)
	assert.Equal(t, uint64(1), stats.Dispatch.DeliveryFailures)
	assert.Equal(t, rooms.Stats{}, stats.Directory)
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, handlers.StatusForKind(domain.KindUnauthenticated))
	assert.Equal(t, http.StatusBadRequest, handlers.StatusForKind(domain.KindInvalidRoom))
	assert.Equal(t, http.StatusForbidden, handlers.StatusForKind(domain.KindNotAMember))
	assert.Equal(t, http.StatusServiceUnavailable, handlers.StatusForKind(domain.KindStoreUnavailable))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusForKind(domain.KindInternal))
}
