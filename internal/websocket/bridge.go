// Package websocket is the transport edge of the relay. It upgrades HTTP
// requests, maps wire frames onto session events and writes session output
// back to the client.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/session"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultReadLimit    = 64 << 10
)

var errBinaryFrame = fmt.Errorf("%w: binary frames are not supported", domain.ErrValidation)

// Bridge accepts websocket connections and binds each to a new session.
type Bridge struct {
	sessions       *session.Manager
	writeTimeout   time.Duration
	pingInterval   time.Duration
	readLimit      int64
	originPatterns []string
	logger         *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.writeTimeout = d
		}
	}
}

// WithPingInterval sets the keepalive period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(b *Bridge) { b.pingInterval = d }
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.readLimit = n
		}
	}
}

// WithOriginPatterns restricts cross-origin upgrades to the given host
// patterns. With no patterns every origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) { b.originPatterns = patterns }
}

// NewBridge creates a bridge that opens sessions on sessions.
func NewBridge(sessions *session.Manager, opts ...Option) *Bridge {
	b := &Bridge{
		sessions:     sessions,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		readLimit:    DefaultReadLimit,
		logger:       slog.Default().With("component", "websocket"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns an echo.HandlerFunc that upgrades the request and serves
// the connection until it closes. A credential presented at upgrade must be
// valid; without one the client authenticates with an authenticate event.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		s := b.sessions.Open(req.RemoteAddr)
		logger := b.logger.With("session_id", s.SessionID(), "remote_addr", req.RemoteAddr)

		var greeting []session.Outbound
		if credential := credentialFrom(req); credential != "" {
			acks := s.Handle(req.Context(), session.Inbound{Type: session.InAuthenticate, Credential: credential})
			if len(acks) > 0 && acks[0].Type == session.OutError {
				s.Close("authentication failed")
				return echo.NewHTTPError(http.StatusUnauthorized, acks[0].Error.Detail)
			}
			greeting = acks
		}

		conn, err := websocket.Accept(c.Response(), req, &websocket.AcceptOptions{
			OriginPatterns:     b.originPatterns,
			InsecureSkipVerify: len(b.originPatterns) == 0,
		})
		if err != nil {
			// Accept has already written the response.
			logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			s.Close("upgrade failed")
			return nil
		}
		conn.SetReadLimit(b.readLimit)

		b.serve(req.Context(), conn, s, greeting, logger)
		return nil
	}
}

func (b *Bridge) serve(ctx context.Context, conn *websocket.Conn, s *session.Session, greeting []session.Outbound, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cl := &client{
		conn:         conn,
		session:      s,
		writeTimeout: b.writeTimeout,
		pingInterval: b.pingInterval,
		logger:       logger,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		cl.writePump(ctx, cancel)
	}()

	if err := s.Reply(ctx, greeting...); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Failed to queue greeting", "error", err)
	}

	reason := cl.readPump(ctx)
	s.Close(reason)
	<-writerDone

	conn.Close(websocket.StatusNormalClosure, reason)
	logger.Debug("WebSocket connection finished", "reason", reason)
}

// credentialFrom extracts a bearer token from the Authorization header or
// the token query parameter.
func credentialFrom(req *http.Request) string {
	if auth := req.Header.Get(echo.HeaderAuthorization); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return req.URL.Query().Get("token")
}
