package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/chatrelay/internal/session"
)

// client pumps frames between one websocket connection and its session.
type client struct {
	conn         *websocket.Conn
	session      *session.Session
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

// readPump decodes client frames and feeds them to the session until the
// connection ends or the session closes. It returns the close reason.
func (c *client) readPump(ctx context.Context) string {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed by client")
				return "client closed"
			case errors.Is(err, io.EOF) || ctx.Err() != nil:
				return "connection closed"
			default:
				c.logger.Warn("WebSocket read error", "error", err)
				return "read error"
			}
		}

		var acks []session.Outbound
		if typ != websocket.MessageText {
			acks = []session.Outbound{session.ErrorEvent(errBinaryFrame, "")}
		} else if in, err := DecodeInbound(data); err != nil {
			acks = []session.Outbound{session.ErrorEvent(err, "")}
		} else {
			acks = c.session.Handle(ctx, in)
		}

		if err := c.session.Reply(ctx, acks...); err != nil {
			return "session closed"
		}
		if c.session.State() == session.StateClosed {
			return "client disconnect"
		}
	}
}

// writePump drains the session outbox onto the connection. It cancels the
// connection context when it can no longer write.
func (c *client) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	outbox := c.session.Outbox()
	for {
		select {
		case <-ctx.Done():
			return

		case out, ok := <-outbox:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			frame, err := EncodeOutbound(out)
			if err != nil {
				c.logger.Error("Failed to encode outbound event", "type", out.Type, "error", err)
				continue
			}
			if err := c.write(ctx, frame); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				return
			}

		case <-ping:
			pingCtx, cancelPing := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				c.logger.Info("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

func (c *client) write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, frame)
}
