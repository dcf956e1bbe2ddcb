// Package app assembles the relay's services into a dependency injector.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/database"
	"github.com/nfrund/chatrelay/internal/database/postgres"
	"github.com/nfrund/chatrelay/internal/dispatch"
	"github.com/nfrund/chatrelay/internal/gateway"
	"github.com/nfrund/chatrelay/internal/identity"
	"github.com/nfrund/chatrelay/internal/pubsub"
	"github.com/nfrund/chatrelay/internal/rooms"
	"github.com/nfrund/chatrelay/internal/session"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/nfrund/chatrelay/internal/store/memory"
	"github.com/samber/do/v2"
)

const (
	connectTimeout = 30 * time.Second
	busBufferSize  = 256
)

// NewInjector registers every core service as a lazy provider. Services are
// built on first Invoke.
func NewInjector(cfg config.Provider) *do.RootScope {
	i := do.New()

	do.ProvideValue(i, cfg)
	do.Provide(i, provideStore)
	do.Provide(i, providePubSub)
	do.Provide(i, provideDirectory)
	do.Provide(i, provideVerifier)
	do.Provide(i, provideGateway)
	do.Provide(i, provideDispatcher)
	do.Provide(i, provideSessions)

	return i
}

func provideStore(i do.Injector) (store.Store, error) {
	cfg := do.MustInvoke[config.Provider](i)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var (
		st  store.Store
		err error
	)
	switch cfg.GetStoreDriver() {
	case config.DriverSurreal:
		st, err = database.Open(ctx, cfg)
	case config.DriverPostgres:
		st, err = postgres.Open(ctx, cfg.GetPostgresURL(), cfg.GetStoreTimeout())
	case config.DriverMemory:
		st = memory.New()
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.GetStoreDriver())
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.GetStoreDriver(), err)
	}

	slog.Info("Store ready", "driver", cfg.GetStoreDriver())
	return st, nil
}

func providePubSub(i do.Injector) (pubsub.PubSub, error) {
	return pubsub.NewWatermillBridge(busBufferSize), nil
}

func provideDirectory(i do.Injector) (*rooms.Directory, error) {
	return rooms.NewDirectory(), nil
}

func provideVerifier(i do.Injector) (*identity.Verifier, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return identity.NewVerifier(cfg.GetJWTSecret(), cfg.GetJWTIssuer()), nil
}

func provideGateway(i do.Injector) (*gateway.Gateway, error) {
	cfg := do.MustInvoke[config.Provider](i)
	st, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	dir := do.MustInvoke[*rooms.Directory](i)

	return gateway.New(st, dir,
		gateway.WithTimeout(cfg.GetStoreTimeout()),
		gateway.WithMaxMessageLength(cfg.GetMaxMessageLength()),
	), nil
}

func provideDispatcher(i do.Injector) (*dispatch.Dispatcher, error) {
	return dispatch.New(do.MustInvoke[*rooms.Directory](i), do.MustInvoke[pubsub.PubSub](i)), nil
}

func provideSessions(i do.Injector) (*session.Manager, error) {
	cfg := do.MustInvoke[config.Provider](i)
	gw, err := do.Invoke[*gateway.Gateway](i)
	if err != nil {
		return nil, err
	}

	deps := session.Dependencies{
		Authenticator: do.MustInvoke[*identity.Verifier](i),
		Directory:     do.MustInvoke[*rooms.Directory](i),
		Gateway:       gw,
		Dispatcher:    do.MustInvoke[*dispatch.Dispatcher](i),
		Publisher:     do.MustInvoke[pubsub.PubSub](i),
	}
	if cfg.GetRoomAccess() == config.AccessMembers {
		deps.Access = session.MemberAccess{Store: do.MustInvoke[store.Store](i)}
	}

	return session.NewManager(deps, session.WithOutboxSize(cfg.GetOutboxSize())), nil
}
