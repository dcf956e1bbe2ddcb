package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/session"
)

// eventAliases maps every accepted event name onto its canonical type.
// Older clients send the snake_case names.
var eventAliases = map[string]session.InboundType{
	"authenticate": session.InAuthenticate,
	"auth":         session.InAuthenticate,
	"joinRoom":     session.InJoinRoom,
	"join_chat":    session.InJoinRoom,
	"leaveRoom":    session.InLeaveRoom,
	"leave_chat":   session.InLeaveRoom,
	"sendMessage":  session.InSendMessage,
	"send_message": session.InSendMessage,
	"disconnect":   session.InDisconnect,
}

var (
	roomKeys       = []string{"room_id", "roomId", "chat_id", "chatId", "room"}
	textKeys       = []string{"text", "content", "message"}
	credentialKeys = []string{"credential", "token"}
)

// envelope is the object form of an inbound frame. Fields may sit at the top
// level or inside data.
type envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref"`
}

// DecodeInbound parses one client frame. Two shapes are accepted:
//
//	{"type": "joinRoom", "room_id": "r1", "ref": "1"}
//	["join_chat", {"chat_id": 42}]
//
// Malformed frames and unknown events are reported as domain.ErrValidation.
func DecodeInbound(data []byte) (session.Inbound, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return session.Inbound{}, fmt.Errorf("%w: empty frame", domain.ErrValidation)
	}

	var (
		name   string
		ref    string
		fields map[string]json.RawMessage
	)

	if data[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
			return session.Inbound{}, fmt.Errorf("%w: malformed frame", domain.ErrValidation)
		}
		if err := json.Unmarshal(parts[0], &name); err != nil {
			return session.Inbound{}, fmt.Errorf("%w: event name must be a string", domain.ErrValidation)
		}
		if len(parts) > 1 {
			if err := decodeFields(parts[1], &fields); err != nil {
				return session.Inbound{}, err
			}
		}
	} else {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return session.Inbound{}, fmt.Errorf("%w: malformed frame", domain.ErrValidation)
		}
		name, ref = env.Type, env.Ref
		if name == "" {
			name = env.Event
		}

		payload := json.RawMessage(data)
		if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
			payload = env.Data
		}
		if err := decodeFields(payload, &fields); err != nil {
			return session.Inbound{}, err
		}
	}

	typ, ok := eventAliases[name]
	if !ok {
		if name == "" {
			return session.Inbound{}, fmt.Errorf("%w: missing event type", domain.ErrValidation)
		}
		return session.Inbound{}, fmt.Errorf("%w: unknown event %q", domain.ErrValidation, name)
	}

	in := session.Inbound{Type: typ, Ref: ref}
	var err error
	if in.RoomID, err = stringField(fields, roomKeys); err != nil {
		return session.Inbound{}, err
	}
	if in.Text, err = stringField(fields, textKeys); err != nil {
		return session.Inbound{}, err
	}
	if in.Credential, err = stringField(fields, credentialKeys); err != nil {
		return session.Inbound{}, err
	}
	if in.Ref == "" {
		if in.Ref, err = stringField(fields, []string{"ref"}); err != nil {
			return session.Inbound{}, err
		}
	}
	return in, nil
}

func decodeFields(raw json.RawMessage, fields *map[string]json.RawMessage) error {
	if err := json.Unmarshal(raw, fields); err != nil {
		return fmt.Errorf("%w: event data must be an object", domain.ErrValidation)
	}
	return nil
}

// stringField returns the first present key. Numeric values are accepted
// and rendered in decimal.
func stringField(fields map[string]json.RawMessage, keys []string) (string, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || bytes.Equal(raw, []byte("null")) {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String(), nil
		}
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return "", nil
}

// outboundFrame is the wire form of session.Outbound.
type outboundFrame struct {
	Type      session.OutboundType `json:"type"`
	RoomID    string               `json:"room_id,omitempty"`
	Principal *domain.Principal    `json:"principal,omitempty"`
	Message   *domain.Message      `json:"message,omitempty"`
	Error     *session.ErrorBody   `json:"error,omitempty"`
	Ref       string               `json:"ref,omitempty"`
}

// EncodeOutbound renders an event for the client.
func EncodeOutbound(out session.Outbound) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Type:      out.Type,
		RoomID:    out.RoomID,
		Principal: out.Principal,
		Message:   out.Message,
		Error:     out.Error,
		Ref:       out.Ref,
	})
}
