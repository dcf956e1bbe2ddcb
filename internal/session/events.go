package session

import (
	"github.com/nfrund/chatrelay/internal/domain"
)

// InboundType names an event received from a client.
type InboundType string

const (
	InAuthenticate InboundType = "authenticate"
	InJoinRoom     InboundType = "joinRoom"
	InLeaveRoom    InboundType = "leaveRoom"
	InSendMessage  InboundType = "sendMessage"
	InDisconnect   InboundType = "disconnect"
)

// Inbound is a client event in canonical form. Transport adapters are
// responsible for mapping wire variants onto these field names.
type Inbound struct {
	Type       InboundType
	Credential string
	RoomID     string
	Text       string
	// Ref is an optional client correlation id echoed on acknowledgements.
	Ref string
}

// OutboundType names an event sent to a client.
type OutboundType string

const (
	OutAuthenticated OutboundType = "authenticated"
	OutJoined        OutboundType = "joined"
	OutLeft          OutboundType = "left"
	OutMessage       OutboundType = "message"
	OutError         OutboundType = "error"
)

// ErrorBody is the payload of an error event.
type ErrorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Outbound is an event destined for one client.
type Outbound struct {
	Type      OutboundType
	RoomID    string
	Principal *domain.Principal
	Message   *domain.Message
	Error     *ErrorBody
	Ref       string
}

// ErrorEvent converts err to an error event. Details of internal errors are
// not sent to clients.
func ErrorEvent(err error, ref string) Outbound {
	kind := domain.Kind(err)
	detail := err.Error()
	if kind == domain.KindInternal {
		detail = "internal error"
	}
	return Outbound{
		Type:  OutError,
		Error: &ErrorBody{Kind: kind, Detail: detail},
		Ref:   ref,
	}
}
