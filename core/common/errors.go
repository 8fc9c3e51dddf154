package common

import (
	"fmt"

	"github.com/pkg/errors"
)

/*Error type for a new application error */
type Error struct {
	Code string `json:"code,omitempty"`
	Msg  string `json:"msg"`
}

func (err *Error) Error() string {
	return fmt.Sprintf("%s: %s", err.Code, err.Msg)
}

// Is matches errors by code so wrapped instances compare equal to the
// package sentinels.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == err.Code
}

/*NewError - create a new error */
func NewError(code string, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

/*NewErrorf - create a new formatted error */
func NewErrorf(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

const (
	ClockConflictCode       = "clock_conflict"
	ContiguityViolationCode = "contiguity_violation"
	ForeignKeyViolationCode = "fk_violation"
	StoreUnavailableCode    = "store_unavailable"
	CacheWriteCode          = "cache_write_error"
)

var (
	// ErrClockConflict - a concurrent writer raced the clock allocation.
	// The caller retries the whole business operation, not just the insert.
	ErrClockConflict = NewError(ClockConflictCode, "concurrent writer raced the clock allocation")

	// ErrContiguityViolation - the caller supplied a non-contiguous or
	// non-positive clock sequence. Indicates a caller bug, never retried.
	ErrContiguityViolation = NewError(ContiguityViolationCode, "clock values must be contiguous increments")

	// ErrForeignKeyViolation - a data record references a clock that was
	// never reserved in the ledger.
	ErrForeignKeyViolation = NewError(ForeignKeyViolationCode, "data record references an unreserved clock")

	// ErrStoreUnavailable - the authoritative store is unreachable.
	ErrStoreUnavailable = NewError(StoreUnavailableCode, "authoritative store unreachable")

	// ErrCacheWrite - a derived-cache sub-operation failed. Logged and
	// isolated; sibling sub-operations proceed.
	ErrCacheWrite = NewError(CacheWriteCode, "derived cache write failed")
)

// Retryable reports whether the operation that produced err may be
// safely retried from the top.
func Retryable(err error) bool {
	return errors.Is(err, ErrClockConflict) || errors.Is(err, ErrStoreUnavailable)
}
