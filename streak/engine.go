/*
engine.go - The streak state-transition operations

PURPOSE:
  Implements the two transitions triggered by purchase events, layered
  over the Store contract:

    RecordNonImpulsePurchase: extends / preserves / resets the streak,
                              mints rewards on completion
    RecordImpulsePurchase:    breaks the streak, or forgives it by
                              spending a free credit

TRANSITION PRIORITY (non-impulse), evaluated in order:
  1. No record            -> create, streak = 1
  2. No anchor date       -> fresh start, streak = 1
  3. Next calendar day    -> increment; on reaching the target: mint
                             voucher, count completion, reset to 0,
                             maybe award a free credit
  4. Same calendar day    -> idempotent refresh, nothing changes
  5. Anything else        -> break, streak = 1

ATOMICITY:
  Each operation is one load -> pure transition on a clone -> SaveAtomic
  cycle. A failed save leaves the persisted record exactly as it was;
  the engine never retries internally (see errors.go).

SEE ALSO:
  - calendar.go:   SameDay / NextDay predicates
  - ledger.go:     Voucher issuance and redemption
  - projection.go: Read-only stats
*/
package streak

import (
	"context"
	"errors"
	"time"
)

// Engine applies purchase events to streak records.
type Engine struct {
	store Store

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// NewEngineWithClock creates an engine with a fixed clock source.
func NewEngineWithClock(store Store, now func() time.Time) *Engine {
	return &Engine{store: store, now: now}
}

// =============================================================================
// NON-IMPULSE TRANSITION
// =============================================================================

// RecordNonImpulsePurchase applies a qualifying purchase on the given
// day and returns the updated record plus the reward it earned.
func (e *Engine) RecordNonImpulsePurchase(ctx context.Context, userID UserID, day Day) (*Record, Reward, error) {
	if err := validateEvent(userID, day); err != nil {
		return nil, NoReward, err
	}

	// Rule 1 folds into rule 2: a freshly created record has no anchor,
	// so the transition below starts it at streak = 1.
	rec, _, err := e.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, NoReward, err
	}

	next := rec.Clone()
	reward := applyNonImpulse(next, day)
	next.UpdatedAt = e.now()

	saved, err := e.store.SaveAtomic(ctx, next, rec.Version)
	if err != nil {
		return nil, NoReward, err
	}
	return saved, reward, nil
}

// applyNonImpulse is the pure transition. It mutates rec in place and
// returns the earned reward.
func applyNonImpulse(rec *Record, day Day) Reward {
	switch {
	case rec.LastQualifyingDate.IsZero():
		// Rules 1 and 2: no history, or the streak was broken to a
		// null anchor. Fresh start.
		rec.CurrentStreak = 1
		rec.LastQualifyingDate = day

	case NextDay(rec.LastQualifyingDate, day):
		// Rule 3: consecutive day.
		rec.CurrentStreak++
		rec.LastQualifyingDate = day
		if rec.CurrentStreak > rec.LongestStreak {
			rec.LongestStreak = rec.CurrentStreak
		}
		if rec.CurrentStreak == StreakTarget {
			return completeStreak(rec, day)
		}

	case SameDay(rec.LastQualifyingDate, day):
		// Rule 4: idempotent re-entry. Refresh the anchor only.
		rec.LastQualifyingDate = day

	default:
		// Rule 5: gap of two or more days, or an out-of-order earlier
		// date. The streak breaks and restarts at 1 (today counts).
		rec.CurrentStreak = 1
		rec.LastQualifyingDate = day
	}

	if rec.CurrentStreak > rec.LongestStreak {
		rec.LongestStreak = rec.CurrentStreak
	}
	return NoReward
}

// completeStreak consumes the streak, mints the voucher, and climbs the
// reward ladder. Called exactly when CurrentStreak reaches the target.
func completeStreak(rec *Record, day Day) Reward {
	v := issueVoucher(rec, day)
	rec.CompletedStreaks++

	// The cycle restarts from zero, not one: the completing purchase
	// is consumed by the completion.
	rec.CurrentStreak = 0

	if rec.CompletedStreaks%CreditThreshold == 0 {
		rec.FreeCredits++
		// The voucher is still minted and stored; the credit award
		// takes precedence as the reported reward.
		return Reward{Kind: RewardFreeCredit, Voucher: v}
	}
	return Reward{Kind: RewardWeeklyVoucher, Voucher: v}
}

// =============================================================================
// IMPULSE TRANSITION
// =============================================================================

// RecordImpulsePurchase applies an impulse purchase on the given day.
// When spendCredit is set and the user holds a free credit, the credit
// is consumed and the streak survives. The returned bool reports
// whether a credit was spent. Impulse purchases never earn rewards.
func (e *Engine) RecordImpulsePurchase(ctx context.Context, userID UserID, day Day, spendCredit bool) (*Record, bool, error) {
	if err := validateEvent(userID, day); err != nil {
		return nil, false, err
	}

	rec, created, err := e.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if created {
		// A first-ever event that is an impulse purchase leaves the
		// neutral record as-is: nothing to break, nothing to spend.
		return rec, false, nil
	}

	next := rec.Clone()
	spent := applyImpulse(next, day, spendCredit)
	next.UpdatedAt = e.now()

	saved, err := e.store.SaveAtomic(ctx, next, rec.Version)
	if err != nil {
		return nil, false, err
	}
	return saved, spent, nil
}

// applyImpulse is the pure transition. Returns whether a credit was spent.
func applyImpulse(rec *Record, day Day, spendCredit bool) bool {
	if spendCredit && rec.FreeCredits > 0 {
		// Forgiven: the credit absorbs the impulse purchase. The
		// streak and its anchor are untouched.
		rec.FreeCredits--
		return true
	}

	rec.CurrentStreak = 0
	rec.LastQualifyingDate = Day{}
	rec.LastResetDate = day
	return false
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func validateEvent(userID UserID, day Day) error {
	if userID == "" {
		return &InputError{Field: "userId", Reason: "must not be empty"}
	}
	if day.IsZero() {
		return &InputError{Field: "purchaseDate", Reason: "must be a valid date"}
	}
	return nil
}

// loadOrCreate fetches the user's record, lazily creating a neutral one
// on first contact. Reports whether it was created by this call.
func (e *Engine) loadOrCreate(ctx context.Context, userID UserID) (*Record, bool, error) {
	rec, err := e.store.LoadByUser(ctx, userID)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, false, err
	}

	rec, err = e.store.CreateDefault(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			// Lost the creation race; the record exists now.
			rec, err = e.store.LoadByUser(ctx, userID)
			if err != nil {
				return nil, false, err
			}
			return rec, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}
