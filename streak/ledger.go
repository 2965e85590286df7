/*
ledger.go - Voucher lifecycle rules

PURPOSE:
  The reward ledger is the ordered collection of vouchers embedded in a
  user's record, insertion order = earn order. This file owns its three
  rules:

    1. APPEND-ONLY: vouchers are issued, never deleted.
    2. ONE FLIP:    after creation only Used/UsedAt may change, once.
    3. PARTITION:   active = !used && expiresAt > t; used = used.

REDEMPTION:
  Nothing in the transition logic ever flips a voucher's Used flag;
  redemption is its own explicit operation (RedeemVoucher below),
  triggered by the collaborator that fulfils the voucher. There is no
  implicit auto-expiry: an expired voucher simply stops being active.
*/
package streak

import (
	"context"
	"time"
)

// issueVoucher appends a freshly minted voucher to the record's ledger
// and returns a pointer to the stored entry.
func issueVoucher(rec *Record, earned Day) *Voucher {
	rec.RewardLedger = append(rec.RewardLedger, newVoucher(earned))
	return &rec.RewardLedger[len(rec.RewardLedger)-1]
}

// partitionLedger splits a ledger into the active and used views at
// time t. Vouchers that are neither (expired, unused) appear in neither.
func partitionLedger(ledger []Voucher, t time.Time) (active, used []Voucher) {
	active = []Voucher{}
	used = []Voucher{}
	for _, v := range ledger {
		switch {
		case v.Used:
			used = append(used, v)
		case v.ActiveAt(t):
			active = append(active, v)
		}
	}
	return active, used
}

// =============================================================================
// REDEMPTION
// =============================================================================

// RedeemVoucher marks a voucher used at the given time. It fails if the
// voucher is unknown, already used, or past its expiry. Same atomic
// load/save discipline as the purchase transitions.
func (e *Engine) RedeemVoucher(ctx context.Context, userID UserID, voucherID VoucherID, at time.Time) (*Voucher, error) {
	if userID == "" {
		return nil, &InputError{Field: "userId", Reason: "must not be empty"}
	}
	if voucherID == "" {
		return nil, &InputError{Field: "voucherId", Reason: "must not be empty"}
	}

	rec, err := e.store.LoadByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := rec.Clone()
	var redeemed *Voucher
	for i := range next.RewardLedger {
		v := &next.RewardLedger[i]
		if v.ID != voucherID {
			continue
		}
		if v.Used {
			return nil, ErrVoucherUsed
		}
		if !v.ExpiresAt.After(at) {
			return nil, ErrVoucherExpired
		}
		usedAt := at
		v.Used = true
		v.UsedAt = &usedAt
		redeemed = v
		break
	}
	if redeemed == nil {
		return nil, ErrVoucherNotFound
	}

	next.UpdatedAt = e.now()
	saved, err := e.store.SaveAtomic(ctx, next, rec.Version)
	if err != nil {
		return nil, err
	}

	for i := range saved.RewardLedger {
		if saved.RewardLedger[i].ID == voucherID {
			return &saved.RewardLedger[i], nil
		}
	}
	return redeemed, nil
}
