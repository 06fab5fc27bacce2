package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotAuthenticated, "authentication required")
		assert.True(t, HasCode(err, CodeNotAuthenticated))
		assert.False(t, HasCode(err, CodeTransport))
	})

	t.Run("matches nested code through plain wrapping", func(t *testing.T) {
		inner := New(CodeBackendRejected, "Invalid login credentials")
		outer := Wrap(fmt.Errorf("sign in: %w", inner), CodePartialFailure, "partial")
		assert.True(t, HasCode(outer, CodePartialFailure))
		assert.True(t, HasCode(outer, CodeBackendRejected))
	})

	t.Run("uncoded errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil cause stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeTransport, "backend unavailable")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "backend unavailable: connection refused", err.Error())
	})
}

func TestCodeOfAndUserMessage(t *testing.T) {
	err := Wrap(errors.New("23505"), CodeBackendRejected, "duplicate key")
	assert.Equal(t, CodeBackendRejected, CodeOf(err))
	assert.Equal(t, "duplicate key", UserMessage(err))

	plain := errors.New("raw")
	assert.Equal(t, CodeInternal, CodeOf(plain))
	assert.Equal(t, "something went wrong", UserMessage(plain))
}
