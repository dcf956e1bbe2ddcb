package app

import (
	"github.com/nfrund/chatrelay/internal/module"
	"github.com/nfrund/chatrelay/internal/modules/presence"
	"github.com/nfrund/chatrelay/internal/modules/rooms"
)

// NewModules returns the feature modules mounted under /api, in boot order.
func NewModules() []module.Module {
	return []module.Module{
		rooms.New(),
		presence.New(),
	}
}
