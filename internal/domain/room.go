package domain

import (
	"fmt"
	"time"
	"unicode"
)

// MaxRoomIDLength bounds the size of a room identifier accepted from clients.
const MaxRoomIDLength = 128

// Room is the durable record of a chat room.
type Room struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateRoomID rejects empty or malformed room identifiers with ErrInvalidRoom.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is empty", ErrInvalidRoom)
	}
	if len(roomID) > MaxRoomIDLength {
		return fmt.Errorf("%w: room id exceeds %d bytes", ErrInvalidRoom, MaxRoomIDLength)
	}
	for _, r := range roomID {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: room id contains whitespace or control characters", ErrInvalidRoom)
		}
	}
	return nil
}
