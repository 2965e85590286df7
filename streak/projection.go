/*
projection.go - Read-only stats view

PURPOSE:
  Projects a user's record into the view the expense flow displays:
  counters plus the active/used voucher partitions computed at query
  time. Pure read; nothing is mutated, and an absent record yields
  all-zero defaults rather than an error.
*/
package streak

import (
	"context"
	"errors"
	"time"
)

// ProjectStats returns the read-only view of a user's streak state as
// of the given instant.
func (e *Engine) ProjectStats(ctx context.Context, userID UserID, asOf time.Time) (*Stats, error) {
	if userID == "" {
		return nil, &InputError{Field: "userId", Reason: "must not be empty"}
	}

	rec, err := e.store.LoadByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return &Stats{ActiveVouchers: []Voucher{}, UsedVouchers: []Voucher{}}, nil
		}
		return nil, err
	}

	active, used := partitionLedger(rec.RewardLedger, asOf)
	return &Stats{
		CurrentStreak:    rec.CurrentStreak,
		LongestStreak:    rec.LongestStreak,
		CompletedStreaks: rec.CompletedStreaks,
		FreeCredits:      rec.FreeCredits,
		ActiveVouchers:   active,
		UsedVouchers:     used,
	}, nil
}
