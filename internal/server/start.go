package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "addr", addr)
	if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run starts the server and blocks until an interrupt or terminate signal,
// then shuts down within the configured timeout. It returns the process
// exit code.
func (s *Server) Run(ctx context.Context) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(s.cfg.GetAddr())
	}()

	wait := gfshutdown.GracefulShutdown(ctx, s.cfg.GetShutdownTimeout(), map[string]gfshutdown.Operation{
		"relay": s.Shutdown,
	})

	select {
	case code := <-wait:
		return code
	case err := <-errCh:
		if err == nil {
			return <-wait
		}
		slog.Error("Server failed", "error", err)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return 1
	}
}

// Shutdown stops accepting requests, closes live sessions, stops the
// modules and finally releases the bus and the store. Every step runs and
// their errors are joined. Later calls return the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	var errs []error

	slog.Info("Shutting down server")
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(s.modules) - 1; i >= 0; i-- {
		if err := s.modules[i].Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.cancel()

	if err := s.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
