// Package server builds the HTTP edge of the relay and runs it until
// shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/dispatch"
	"github.com/nfrund/chatrelay/internal/handlers"
	"github.com/nfrund/chatrelay/internal/identity"
	appmiddleware "github.com/nfrund/chatrelay/internal/middleware"
	"github.com/nfrund/chatrelay/internal/module"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/nfrund/chatrelay/internal/rooms"
	"github.com/nfrund/chatrelay/internal/session"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/nfrund/chatrelay/internal/websocket"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
)

// Server holds the echo instance and the services whose shutdown it orders.
type Server struct {
	E *echo.Echo

	cfg       config.Provider
	injector  do.Injector
	modules   []module.Module
	sessions  *session.Manager
	bus       pubsub.PubSub
	store     store.Store
	verifier  *identity.Verifier
	directory *rooms.Directory
	cancel    context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New resolves the core services from i, boots every module and registers
// the routes. Background work started here stops when Shutdown is called.
func New(i do.Injector, modules []module.Module) (*Server, error) {
	cfg, err := do.Invoke[config.Provider](i)
	if err != nil {
		return nil, err
	}
	st, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	sessions, err := do.Invoke[*session.Manager](i)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		E:         echo.New(),
		cfg:       cfg,
		injector:  i,
		modules:   modules,
		sessions:  sessions,
		bus:       do.MustInvoke[pubsub.PubSub](i),
		store:     st,
		verifier:  do.MustInvoke[*identity.Verifier](i),
		directory: do.MustInvoke[*rooms.Directory](i),
		cancel:    cancel,
	}

	s.E.HideBanner = true
	s.E.HidePort = true
	s.E.Validator = handlers.NewValidator()
	setupErrorHandling(s.E)

	s.E.Use(echomw.Recover())
	s.E.Use(echomw.RequestID())
	s.E.Use(appmiddleware.Logger)

	if path := cfg.GetJWTSecretFile(); path != "" {
		if err := identity.WatchSecretFile(ctx, afero.NewOsFs(), path, s.verifier); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := s.registerRoutes(ctx); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Server) registerRoutes(ctx context.Context) error {
	ops := handlers.NewOpsHandler(s.store, do.MustInvoke[*dispatch.Dispatcher](s.injector), s.directory, s.sessions)
	bridge := websocket.NewBridge(s.sessions,
		websocket.WithWriteTimeout(s.cfg.GetWriteTimeout()),
		websocket.WithOriginPatterns(s.cfg.GetAllowedOrigins()...),
	)

	s.E.GET("/health", ops.Health)
	s.E.GET("/ws", bridge.Handler())

	api := s.E.Group("/api",
		appmiddleware.RateLimiter(s.cfg.GetRateLimit()),
		appmiddleware.Auth(s.verifier),
	)
	api.GET("/stats", ops.Stats)

	for _, m := range s.modules {
		if err := m.Register(s.injector); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
	}
	for _, m := range s.modules {
		if err := m.Boot(ctx, api, s.injector); err != nil {
			return fmt.Errorf("boot module %s: %w", m.Name(), err)
		}
		slog.Info("Module booted", "module", m.Name())
	}
	return nil
}

// Sessions returns the live session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Verifier returns the credential verifier, useful for minting test tokens.
func (s *Server) Verifier() *identity.Verifier {
	return s.verifier
}
