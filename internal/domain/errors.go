package domain

import "errors"

// Sentinel errors for the relay core. Every failure surfaced to a client maps
// onto exactly one of these through Kind.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidRoom      = errors.New("invalid room id")
	ErrValidation       = errors.New("validation failed")
	ErrNotAMember       = errors.New("sender is not a member of the room")
	ErrStoreUnavailable = errors.New("message store unavailable")
	ErrDeliveryFailure  = errors.New("delivery to session failed")
	ErrSessionClosed    = errors.New("session closed")
	ErrNotFound         = errors.New("requested resource not found")
)

// Kind values as they appear in outbound error events and API responses.
const (
	KindUnauthenticated  = "Unauthenticated"
	KindInvalidRoom      = "InvalidRoom"
	KindValidation       = "ValidationError"
	KindNotAMember       = "NotAMember"
	KindStoreUnavailable = "StoreUnavailable"
	KindDeliveryFailure  = "DeliveryFailure"
	KindSessionClosed    = "SessionClosed"
	KindNotFound         = "NotFound"
	KindInternal         = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrInvalidRoom, KindInvalidRoom},
	{ErrValidation, KindValidation},
	{ErrNotAMember, KindNotAMember},
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrDeliveryFailure, KindDeliveryFailure},
	{ErrSessionClosed, KindSessionClosed},
	{ErrNotFound, KindNotFound},
}

// Kind classifies err into the client-facing error taxonomy.
// Unknown errors are reported as Internal.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
