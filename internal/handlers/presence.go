package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/presence"
)

// PresenceSource is the read side of the presence service.
type PresenceSource interface {
	GetOnlineUsers() []string
	GetPresence(userID string) (presence.Presence, bool)
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	presence PresenceSource
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(p PresenceSource) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

// GetPresence returns the current online users as JSON
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	onlineUsers := h.presence.GetOnlineUsers()
	return c.JSON(http.StatusOK, map[string]any{
		"online_users": onlineUsers,
		"count":        len(onlineUsers),
	})
}

// GetUserPresence returns the presence status for a specific user
func (h *PresenceHandler) GetUserPresence(c echo.Context) error {
	p, exists := h.presence.GetPresence(c.Param("userID"))
	if !exists {
		return domain.ErrNotFound
	}
	return c.JSON(http.StatusOK, p)
}
