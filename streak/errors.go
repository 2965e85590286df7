/*
errors.go - Centralized error types for the streak engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapters (stores, HTTP handlers) wrap these with additional context.

ERROR CATEGORIES:
  1. Store errors      - Persistence failures and version conflicts
  2. Input errors      - Rejected before any store access
  3. Voucher errors    - Redemption lifecycle violations

RETRY CONTRACT:
  ErrConcurrentModification means the record changed between load and
  save. The engine does NOT retry internally: only the caller can safely
  re-derive the transition from a fresh load. Use IsRetryable.
*/
package streak

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRecordNotFound is returned by stores when no record exists for
	// a user. The engine treats it as "create a default record".
	ErrRecordNotFound = errors.New("streak record not found")

	// ErrConcurrentModification is returned when optimistic locking
	// detects a stale version on save. The whole transition must be
	// re-derived from a fresh load, never patched in memory.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStoreUnavailable is returned when load/save failed for reasons
	// other than a version conflict. The transition is not applied.
	ErrStoreUnavailable = errors.New("streak store unavailable")

	// ErrInvalidInput is returned for empty user ids or zero dates,
	// before any store access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVoucherNotFound is returned when redeeming an unknown voucher.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrVoucherExpired is returned when redeeming past ExpiresAt.
	ErrVoucherExpired = errors.New("voucher expired")

	// ErrVoucherUsed is returned when redeeming a voucher twice.
	ErrVoucherUsed = errors.New("voucher already used")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports the version mismatch that failed a save.
type ConflictError struct {
	UserID          UserID
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification for user %s: expected version %d, found %d",
		e.UserID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// InputError reports which input was rejected and why.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if re-running the transition from a fresh
// load might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrVoucherExpired) ||
		errors.Is(err, ErrVoucherUsed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrVoucherNotFound)
}
