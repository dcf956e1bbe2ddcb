package handlers

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator. Field names in errors use the
// json tag.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return &CustomValidator{validator: v}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	IsGroup bool   `json:"is_group"`
}

// AddMemberRequest is the body of POST /api/rooms/:id/members.
type AddMemberRequest struct {
	RoomID string `param:"id" validate:"required,max=128"`
	UserID string `json:"user_id" validate:"required,max=128"`
}

// HistoryRequest holds the parameters of GET /api/rooms/:id/messages.
type HistoryRequest struct {
	RoomID string `param:"id" validate:"required,max=128"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Before string `query:"before" validate:"omitempty,max=64"`
}
