package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/middleware"
	"github.com/nfrund/chatrelay/internal/store"
)

// RoomHandler serves the durable room API: creation, listing, membership
// and history reads.
type RoomHandler struct {
	store          store.Store
	requireMembers bool
	historyLimit   int
}

// NewRoomHandler creates a room handler. When requireMembers is set, history
// is readable by durable members only.
func NewRoomHandler(s store.Store, requireMembers bool, historyLimit int) *RoomHandler {
	return &RoomHandler{store: s, requireMembers: requireMembers, historyLimit: historyLimit}
}

// CreateRoom handles POST /api/rooms. The caller becomes the first member.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	var req CreateRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	room, err := h.store.CreateRoom(c.Request().Context(), req.Title, req.IsGroup, principal.ID)
	if err != nil {
		return storeError(err)
	}

	middleware.FromContext(c.Request().Context()).Info("Room created", "room_id", room.ID, "user_id", principal.ID)
	return c.JSON(http.StatusCreated, room)
}

// ListRooms handles GET /api/rooms and returns the caller's rooms.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	rooms, err := h.store.ListRoomsFor(c.Request().Context(), principal.ID)
	if err != nil {
		return storeError(err)
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return c.JSON(http.StatusOK, map[string]any{"rooms": rooms})
}

// AddMember handles POST /api/rooms/:id/members. Only existing members may
// add others.
func (h *RoomHandler) AddMember(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	var req AddMemberRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.checkMember(c, req.RoomID, principal.ID); err != nil {
		return err
	}

	if err := h.store.AddMember(c.Request().Context(), req.RoomID, req.UserID); err != nil {
		return storeError(err)
	}

	middleware.FromContext(c.Request().Context()).Info("Member added",
		"room_id", req.RoomID, "user_id", req.UserID, "added_by", principal.ID)
	return c.JSON(http.StatusCreated, map[string]string{"room_id": req.RoomID, "user_id": req.UserID})
}

// ListMessages handles GET /api/rooms/:id/messages. Messages are returned
// oldest first; before pages backwards from a message id.
func (h *RoomHandler) ListMessages(c echo.Context) error {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	var req HistoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := domain.ValidateRoomID(req.RoomID); err != nil {
		return err
	}
	if h.requireMembers {
		if err := h.checkMember(c, req.RoomID, principal.ID); err != nil {
			return err
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = h.historyLimit
	}
	messages, err := h.store.ListMessages(c.Request().Context(), req.RoomID, store.HistoryQuery{
		Limit:  limit,
		Before: req.Before,
	}.Normalize())
	if err != nil {
		return storeError(err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"room_id": req.RoomID, "messages": messages})
}

func (h *RoomHandler) checkMember(c echo.Context, roomID, userID string) error {
	member, err := h.store.IsMember(c.Request().Context(), roomID, userID)
	if err != nil {
		return storeError(err)
	}
	if !member {
		return fmt.Errorf("%w: %s", domain.ErrNotAMember, roomID)
	}
	return nil
}

// storeError keeps not-found errors and reports everything else as the
// store being unavailable.
func storeError(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
