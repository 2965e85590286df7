/*
store.go - Persistence contract for streak records

PURPOSE:
  Defines the interface between the engine and whatever persists the
  records. The engine depends on the contract, never an implementation.

OPTIMISTIC CONCURRENCY:
  Two concurrent purchase events for the same user must not interleave
  their read-modify-write cycles, or streak increments and voucher
  issuance can be lost or double-applied. The contract enforces this
  with a version stamp: SaveAtomic only commits when the stored version
  still equals expectedVersion, and the whole mutation (counters,
  anchor, appended vouchers) commits as one atomic unit.

  On ErrConcurrentModification the caller retries the WHOLE transition
  from a fresh LoadByUser. Transitions for different users are fully
  independent.

IMPLEMENTATIONS:
  - store/memory:   In-memory, for tests and dev
  - store/sqlite:   SQLite with a version column
  - store/postgres: PostgreSQL (pgx), same conditional-update pattern
*/
package streak

import (
	"context"
	"time"
)

// Store persists one Record per user.
type Store interface {
	// LoadByUser returns the record for a user, or ErrRecordNotFound.
	LoadByUser(ctx context.Context, userID UserID) (*Record, error)

	// CreateDefault persists and returns a neutral record for a user
	// that has no history yet. If another writer created the record
	// concurrently, implementations return ErrConcurrentModification
	// and the caller reloads.
	CreateDefault(ctx context.Context, userID UserID) (*Record, error)

	// SaveAtomic commits the record iff the stored version equals
	// expectedVersion, as a single atomic unit. On success the returned
	// record carries the incremented version. On a stale version it
	// returns an error matching ErrConcurrentModification and leaves
	// the persisted record untouched.
	SaveAtomic(ctx context.Context, rec *Record, expectedVersion int64) (*Record, error)
}

// ExpiringVoucher pairs a voucher with its owner, for cross-user scans.
type ExpiringVoucher struct {
	UserID  UserID
	Voucher Voucher
}

// VoucherScanner is an optional store capability used by background
// jobs. It is read-only: scanning never flips a voucher's used flag.
type VoucherScanner interface {
	// ExpiringVouchers returns unused vouchers whose expiry falls in
	// (now, before]. Already-expired vouchers are not reported.
	ExpiringVouchers(ctx context.Context, now, before time.Time) ([]ExpiringVoucher, error)
}
