package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nfrund/chatrelay/internal/app"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/logging"
	"github.com/nfrund/chatrelay/internal/server"
)

func main() {
	cfg := config.New()
	logging.New(cfg.GetLogFormat(), cfg.GetLogLevel())

	s, err := server.New(app.NewInjector(cfg), app.NewModules())
	if err != nil {
		slog.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	os.Exit(s.Run(context.Background()))
}
