package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// A single instance caches struct metadata across calls.
var validatorInstance = validator.New()

func init() {
	_ = validatorInstance.RegisterValidation("nonblank", validateNonBlank)
	validatorInstance.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// validateNonBlank fails for strings that are empty after trimming whitespace.
func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Message is an immutable, persisted chat message. ID and CreatedAt are
// assigned by the store at append time.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Submission is a message as proposed by a sender, before persistence.
type Submission struct {
	RoomID   string `json:"room_id" validate:"nonblank"`
	SenderID string `json:"sender_id" validate:"nonblank"`
	Text     string `json:"text" validate:"nonblank"`
}

// Validate checks that all fields of the submission are present.
func (s Submission) Validate() error {
	err := validatorInstance.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		missing := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			missing = append(missing, fe.Field())
		}
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return err
}

// Before reports whether m sorts before other in display order. Timestamps
// that collide are ordered by the time-ordered message id.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
