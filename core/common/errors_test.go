package common

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeMatching(t *testing.T) {
	wrapped := errors.Wrap(ErrClockConflict, "append user 7")
	require.ErrorIs(t, wrapped, ErrClockConflict)
	require.NotErrorIs(t, wrapped, ErrContiguityViolation)

	// a fresh instance with the same code matches the sentinel
	require.ErrorIs(t, NewError(ClockConflictCode, "other message"), ErrClockConflict)
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(ErrClockConflict))
	require.True(t, Retryable(errors.Wrap(ErrStoreUnavailable, "dial")))
	require.False(t, Retryable(ErrContiguityViolation))
	require.False(t, Retryable(ErrForeignKeyViolation))
	require.False(t, Retryable(errors.New("plain")))
	require.False(t, Retryable(nil))
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf("some_code", "value %d out of range", 42)
	require.Equal(t, "some_code: value 42 out of range", err.Error())
}
