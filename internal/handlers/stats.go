package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/dispatch"
	"github.com/nfrund/chatrelay/internal/middleware"
	"github.com/nfrund/chatrelay/internal/rooms"
)

type CounterSource interface {
	Counters() dispatch.Counters
}

type DirectoryStats interface {
	Stats() rooms.Stats
}

type SessionCounter interface {
	Count() int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Sessions  int               `json:"sessions"`
	Directory rooms.Stats       `json:"directory"`
	Dispatch  dispatch.Counters `json:"dispatch"`
	Uptime    string            `json:"uptime"`
}

// OpsHandler serves health and runtime statistics.
type OpsHandler struct {
	store     Pinger
	counters  CounterSource
	directory DirectoryStats
	sessions  SessionCounter
	started   time.Time
	timeout   time.Duration
}

func NewOpsHandler(store Pinger, counters CounterSource, directory DirectoryStats, sessions SessionCounter) *OpsHandler {
	return &OpsHandler{
		store:     store,
		counters:  counters,
		directory: directory,
		sessions:  sessions,
		started:   time.Now(),
		timeout:   2 * time.Second,
	}
}

// Health reports whether the store answers a ping.
func (h *OpsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		middleware.FromContext(ctx).Warn("Health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Stats returns dispatcher counters and directory sizes.
func (h *OpsHandler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, StatsResponse{
		Sessions:  h.sessions.Count(),
		Directory: h.directory.Stats(),
		Dispatch:  h.counters.Counters(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}
