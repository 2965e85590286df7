package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/impulse-tracker/store/memory"
	"github.com/warp/impulse-tracker/streak"
)

type recordingNotifier struct {
	calls []streak.VoucherID
}

func (n *recordingNotifier) NotifyExpiring(_ streak.UserID, v streak.Voucher, _ time.Duration) {
	n.calls = append(n.calls, v.ID)
}

func seedVoucher(t *testing.T, store *memory.StreakStore, userID streak.UserID, id streak.VoucherID, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()

	rec, err := store.CreateDefault(ctx, userID)
	require.NoError(t, err)

	next := rec.Clone()
	next.RewardLedger = append(next.RewardLedger, streak.Voucher{
		ID:        id,
		Kind:      streak.VoucherWeeklyReward,
		EarnedAt:  streak.DayOf(expiresAt.AddDate(0, 0, -streak.VoucherValidityDays)),
		ExpiresAt: expiresAt,
	})
	next.UpdatedAt = time.Now()
	_, err = store.SaveAtomic(ctx, next, rec.Version)
	require.NoError(t, err)
}

func TestCheckExpiring_NotifiesOnlyInsideWindow(t *testing.T) {
	// GIVEN: One voucher expiring in 2 days, one in 10
	// WHEN: The scan runs with the default 3-day window
	// THEN: Only the closer voucher is notified
	store := memory.NewStreakStore()
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	seedVoucher(t, store, "user-a", "soon", now.Add(48*time.Hour))
	seedVoucher(t, store, "user-b", "later", now.Add(240*time.Hour))

	notifier := &recordingNotifier{}
	sched := NewExpiryScheduler(store, notifier)
	sched.now = func() time.Time { return now }

	sched.checkExpiring()

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, streak.VoucherID("soon"), notifier.calls[0])
}

func TestCheckExpiring_SkipsExpiredAndUsed(t *testing.T) {
	store := memory.NewStreakStore()
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	seedVoucher(t, store, "user-a", "gone", now.Add(-time.Hour))

	notifier := &recordingNotifier{}
	sched := NewExpiryScheduler(store, notifier)
	sched.now = func() time.Time { return now }

	sched.checkExpiring()
	assert.Empty(t, notifier.calls)
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	sched := NewExpiryScheduler(memory.NewStreakStore(), &recordingNotifier{})
	sched.Start()
	sched.Stop()

	// A scheduler without a scanner stays idle; Stop is a no-op.
	idle := NewExpiryScheduler(nil, nil)
	idle.Start()
	idle.Stop()
}
