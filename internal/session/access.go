package session

import (
	"context"
	"fmt"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/store"
)

// AccessPolicy decides whether a principal may join a room.
type AccessPolicy interface {
	CanJoin(ctx context.Context, roomID string, p domain.Principal) error
}

// OpenAccess lets any authenticated principal join any room.
type OpenAccess struct{}

func (OpenAccess) CanJoin(ctx context.Context, roomID string, p domain.Principal) error {
	return nil
}

// MemberAccess admits only principals recorded as durable room members.
type MemberAccess struct {
	Store store.Store
}

func (a MemberAccess) CanJoin(ctx context.Context, roomID string, p domain.Principal) error {
	ok, err := a.Store.IsMember(ctx, roomID, p.ID)
	if err != nil {
		return fmt.Errorf("%w: membership lookup: %v", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotAMember, roomID)
	}
	return nil
}
