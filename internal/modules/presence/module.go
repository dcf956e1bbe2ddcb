// Package presence mounts the presence endpoints and owns the presence
// service's lifetime.
package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/handlers"
	"github.com/nfrund/chatrelay/internal/module"
	"github.com/nfrund/chatrelay/internal/presence"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/samber/do/v2"
)

// PresenceModule tracks online users from session lifecycle events.
type PresenceModule struct {
	module.BaseModule
	opts    []presence.Option
	service *presence.Service
}

// New creates the presence module. opts are passed to the service.
func New(opts ...presence.Option) *PresenceModule {
	return &PresenceModule{opts: opts}
}

// Name returns the module name.
func (m *PresenceModule) Name() string {
	return "presence"
}

// Boot starts the presence service and registers its routes.
func (m *PresenceModule) Boot(ctx context.Context, g *echo.Group, i do.Injector) error {
	bus, err := do.Invoke[pubsub.PubSub](i)
	if err != nil {
		return err
	}

	svc, err := presence.NewService(ctx, bus, bus, m.opts...)
	if err != nil {
		return fmt.Errorf("start presence service: %w", err)
	}
	m.service = svc

	h := handlers.NewPresenceHandler(svc)
	g.GET("/presence", h.GetPresence)
	g.GET("/presence/:userID", h.GetUserPresence)
	return nil
}

// Service returns the running presence service, or nil before Boot.
func (m *PresenceModule) Service() *presence.Service {
	return m.service
}

// Shutdown stops pending offline timers.
func (m *PresenceModule) Shutdown(ctx context.Context) error {
	if m.service != nil {
		slog.Info("Shutting down presence module")
		m.service.Shutdown()
	}
	return nil
}
