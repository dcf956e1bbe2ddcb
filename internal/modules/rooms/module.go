// Package rooms mounts the room and history endpoints.
package rooms

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/handlers"
	"github.com/nfrund/chatrelay/internal/module"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/samber/do/v2"
)

// RoomsModule serves durable room management and message history.
type RoomsModule struct {
	module.BaseModule
}

// New creates the rooms module.
func New() *RoomsModule {
	return &RoomsModule{}
}

// Name returns the module name.
func (m *RoomsModule) Name() string {
	return "rooms"
}

// Boot registers the room routes on the API group.
func (m *RoomsModule) Boot(ctx context.Context, g *echo.Group, i do.Injector) error {
	st, err := do.Invoke[store.Store](i)
	if err != nil {
		return err
	}
	cfg, err := do.Invoke[config.Provider](i)
	if err != nil {
		return err
	}

	h := handlers.NewRoomHandler(st, cfg.GetRoomAccess() == config.AccessMembers, cfg.GetHistoryLimit())
	g.POST("/rooms", h.CreateRoom)
	g.GET("/rooms", h.ListRooms)
	g.POST("/rooms/:id/members", h.AddMember)
	g.GET("/rooms/:id/messages", h.ListMessages)

	slog.Debug("Booted rooms module")
	return nil
}
