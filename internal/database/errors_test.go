package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDBError(t *testing.T) {
	cause := errors.New("boom")
	err := NewDBError(cause, "list messages").
		WithQuery("SELECT * FROM message").
		WithParams(map[string]any{"chat": "r1"})

	assert.Contains(t, err.Error(), "list messages")
	assert.Contains(t, err.Error(), "Query: SELECT * FROM message")
	assert.Contains(t, err.Error(), "chat:r1")
	assert.ErrorIs(t, err, cause)
}

func TestDBError_IsSentinel(t *testing.T) {
	err := NewDBError(ErrNotConnected, "database not connected")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrQueryFailed)
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "noop"))

	plain := WrapError(errors.New("eof"), "ping")
	var dbErr *DBError
	assert.ErrorAs(t, plain, &dbErr)
	assert.Equal(t, "ping: eof", plain.Error())

	nested := WrapError(NewDBError(ErrQueryFailed, "statement failed"), "add member")
	assert.ErrorIs(t, nested, ErrQueryFailed)
	assert.Contains(t, nested.Error(), "add member: statement failed")
}
