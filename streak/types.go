/*
Package streak provides the streak and reward state machine.

PURPOSE:
  This package contains the core logic of the impulse tracker: deciding
  whether a non-impulse purchase extends, preserves, or resets a user's
  daily streak, when a streak completion mints a time-limited voucher,
  and how the reward ladder (streak -> voucher -> free credits)
  accumulates. Everything else in the repository is plumbing around it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record:  The per-user streak state (counters, anchor date, ledger)
  - Voucher: A time-limited reward minted on streak completion
  - Reward:  Closed tagged result of a non-impulse transition

DESIGN PRINCIPLES:
  1. Purity: Transition rules are pure functions over a Record
  2. Type Safety: Reward is a closed variant, not an overloaded string
  3. Append-only ledger: Vouchers are never deleted, only marked used
  4. Optimistic concurrency: Every Record carries a version stamp

THE LADDER:
  7 consecutive qualifying days  -> one weekly-reward voucher
  3 completed streaks            -> one free credit
  1 free credit                  -> forgives one impulse purchase

SEE ALSO:
  - engine.go:     The transition operations
  - calendar.go:   Canonical calendar-day comparison
  - ledger.go:     Voucher lifecycle rules
  - store.go:      Persistence contract (optimistic save)
*/
package streak

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LADDER CONSTANTS
// =============================================================================

const (
	// StreakTarget is the number of consecutive qualifying days that
	// completes a streak and mints a voucher.
	StreakTarget = 7

	// CreditThreshold is the number of completed streaks per free credit.
	CreditThreshold = 3

	// VoucherValidityDays is how long a voucher stays redeemable.
	VoucherValidityDays = 30
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type VoucherID string

// NewVoucherID generates a unique voucher identifier.
func NewVoucherID() VoucherID {
	return VoucherID(uuid.NewString())
}

// =============================================================================
// VOUCHER - Time-limited reward minted on streak completion
// =============================================================================

type VoucherKind string

const (
	// VoucherWeeklyReward is currently the only kind. The tag is kept so
	// new kinds can be added without a ledger migration.
	VoucherWeeklyReward VoucherKind = "weekly-reward"
)

// Voucher is a single reward ledger entry. Entries are append-only:
// after creation only Used/UsedAt may change.
type Voucher struct {
	ID        VoucherID
	Kind      VoucherKind
	EarnedAt  Day
	Used      bool
	UsedAt    *time.Time
	ExpiresAt time.Time
}

// ActiveAt reports whether the voucher is redeemable at time t.
func (v Voucher) ActiveAt(t time.Time) bool {
	return !v.Used && v.ExpiresAt.After(t)
}

// newVoucher mints a voucher for a streak completed on day d.
func newVoucher(d Day) Voucher {
	return Voucher{
		ID:        NewVoucherID(),
		Kind:      VoucherWeeklyReward,
		EarnedAt:  d,
		Used:      false,
		ExpiresAt: d.AddDays(VoucherValidityDays).Start(),
	}
}

// =============================================================================
// RECORD - Per-user streak state
// =============================================================================

// Record is the streak state for one user. It is owned exclusively by
// that user's purchase history and mutated only by the Engine, one
// purchase event at a time.
type Record struct {
	UserID UserID

	// CurrentStreak counts consecutive qualifying days since the last
	// reset or completion. It drops to zero the instant it reaches
	// StreakTarget: the completion consumes the streak.
	CurrentStreak int

	// LongestStreak is the high-water mark of CurrentStreak. It never
	// decreases.
	LongestStreak int

	// CompletedStreaks counts completions. Increments by exactly one
	// per completion.
	CompletedStreaks int

	// FreeCredits is the redeemable currency that forgives impulse
	// purchases. Earned each time CompletedStreaks becomes a multiple
	// of CreditThreshold.
	FreeCredits int

	// LastQualifyingDate anchors the streak: the most recent day whose
	// non-impulse purchase advanced or maintained it. Zero when the
	// streak was broken.
	LastQualifyingDate Day

	// LastResetDate records when an impulse purchase last broke the
	// streak. Diagnostic only.
	LastResetDate Day

	// RewardLedger holds vouchers in earn order. Append-only.
	RewardLedger []Voucher

	// Version is the optimistic concurrency stamp. The store rejects
	// a save whose expected version is stale.
	Version int64

	UpdatedAt time.Time
}

// NewRecord creates a neutral record for a user that has no history yet.
func NewRecord(userID UserID) *Record {
	return &Record{UserID: userID, Version: 1}
}

// Clone returns a deep copy. Transition logic mutates a clone so a
// failed save leaves the caller's view untouched.
func (r *Record) Clone() *Record {
	cp := *r
	cp.RewardLedger = make([]Voucher, len(r.RewardLedger))
	copy(cp.RewardLedger, r.RewardLedger)
	return &cp
}

// =============================================================================
// REWARD - Closed tagged transition result
// =============================================================================

type RewardKind int

const (
	// RewardNone: the purchase earned nothing.
	RewardNone RewardKind = iota

	// RewardWeeklyVoucher: the purchase completed a streak and minted
	// the referenced voucher.
	RewardWeeklyVoucher

	// RewardFreeCredit: the completion also crossed the credit
	// threshold. A voucher was still minted (see Voucher field); the
	// credit takes precedence as the reported reward.
	RewardFreeCredit
)

func (k RewardKind) String() string {
	switch k {
	case RewardWeeklyVoucher:
		return "weekly-reward"
	case RewardFreeCredit:
		return "free-credit"
	default:
		return "none"
	}
}

// Reward is the outcome of a non-impulse transition. Callers switch on
// Kind; Voucher is set for both completion outcomes so the minted
// voucher is never mistaken for absent.
type Reward struct {
	Kind    RewardKind
	Voucher *Voucher
}

// NoReward is the zero outcome.
var NoReward = Reward{Kind: RewardNone}

// =============================================================================
// STATS - Read-only projection (see projection.go)
// =============================================================================

// Stats is the user-facing view of a record at a point in time.
type Stats struct {
	CurrentStreak    int
	LongestStreak    int
	CompletedStreaks int
	FreeCredits      int
	ActiveVouchers   []Voucher
	UsedVouchers     []Voucher
}
