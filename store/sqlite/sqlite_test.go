package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/store/sqlite"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func day(n int) streak.Day {
	return streak.NewDay(2026, time.January, n)
}

func testExpense(id expense.ExpenseID, userID streak.UserID, d streak.Day) *expense.Expense {
	return &expense.Expense{
		ID:          id,
		UserID:      userID,
		Date:        d,
		Description: "Groceries",
		Amount:      decimal.RequireFromString("42.50"),
		Category:    "food",
		Necessity:   expense.NecessityNeed,
		TimeOfDay:   expense.TimeEvening,
		PaymentMode: "card",
		CreatedAt:   time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// STREAK RECORDS
// =============================================================================

func TestCreateDefault_ThenLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateDefault(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	rec, err := store.LoadByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, streak.UserID("user-1"), rec.UserID)
	assert.Equal(t, 0, rec.CurrentStreak)
	assert.Equal(t, int64(1), rec.Version)
	assert.Empty(t, rec.RewardLedger)
	assert.True(t, rec.LastQualifyingDate.IsZero())
}

func TestCreateDefault_Twice_ReportsConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDefault(ctx, "user-1")
	require.NoError(t, err)

	_, err = store.CreateDefault(ctx, "user-1")
	assert.ErrorIs(t, err, streak.ErrConcurrentModification)
}

func TestLoadByUser_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadByUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, streak.ErrRecordNotFound)
}

func TestSaveAtomic_RoundTripsFullRecord(t *testing.T) {
	// GIVEN: A default record
	// WHEN: Counters, anchors, and a ledger entry are saved
	// THEN: A fresh load returns every field intact with version 2
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.CreateDefault(ctx, "user-1")
	require.NoError(t, err)

	usedAt := time.Date(2026, time.January, 9, 10, 0, 0, 0, time.UTC)
	next := rec.Clone()
	next.CurrentStreak = 0
	next.LongestStreak = 7
	next.CompletedStreaks = 1
	next.FreeCredits = 0
	next.LastQualifyingDate = day(7)
	next.LastResetDate = day(2)
	next.RewardLedger = []streak.Voucher{
		{
			ID:        "v-1",
			Kind:      streak.VoucherWeeklyReward,
			EarnedAt:  day(7),
			Used:      true,
			UsedAt:    &usedAt,
			ExpiresAt: day(7).AddDays(30).Start(),
		},
	}
	next.UpdatedAt = time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)

	saved, err := store.SaveAtomic(ctx, next, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	loaded, err := store.LoadByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.LongestStreak)
	assert.Equal(t, 1, loaded.CompletedStreaks)
	assert.True(t, loaded.LastQualifyingDate.Equal(day(7)))
	assert.True(t, loaded.LastResetDate.Equal(day(2)))
	assert.Equal(t, int64(2), loaded.Version)

	require.Len(t, loaded.RewardLedger, 1)
	v := loaded.RewardLedger[0]
	assert.Equal(t, streak.VoucherID("v-1"), v.ID)
	assert.True(t, v.Used)
	require.NotNil(t, v.UsedAt)
	assert.True(t, v.UsedAt.Equal(usedAt))
	assert.True(t, v.ExpiresAt.Equal(day(7).AddDays(30).Start()))
}

func TestSaveAtomic_StaleVersion_ReportsConflict(t *testing.T) {
	// GIVEN: A record at version 2 after one save
	// WHEN: A writer saves with the old expected version 1
	// THEN: A conflict carrying the actual version, record untouched
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.CreateDefault(ctx, "user-1")
	require.NoError(t, err)
	rec.UpdatedAt = time.Now().UTC()

	first := rec.Clone()
	first.CurrentStreak = 1
	_, err = store.SaveAtomic(ctx, first, 1)
	require.NoError(t, err)

	stale := rec.Clone()
	stale.CurrentStreak = 99
	_, err = store.SaveAtomic(ctx, stale, 1)
	require.Error(t, err)
	assert.True(t, streak.IsRetryable(err))

	var conflict *streak.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.ExpectedVersion)
	assert.Equal(t, int64(2), conflict.ActualVersion)

	loaded, err := store.LoadByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentStreak)
}

func TestSaveAtomic_MissingRecord(t *testing.T) {
	store := newTestStore(t)

	ghost := streak.NewRecord("nobody")
	ghost.UpdatedAt = time.Now().UTC()
	_, err := store.SaveAtomic(context.Background(), ghost, 1)
	assert.ErrorIs(t, err, streak.ErrRecordNotFound)
}

func TestExpiringVouchers_FiltersWindowAndUsed(t *testing.T) {
	// GIVEN: Vouchers expiring soon, later, already expired, and used
	// WHEN: Scanning with a 3-day window
	// THEN: Only the unused soon-to-expire voucher is reported
	store := newTestStore(t)
	ctx := context.Background()
	now := day(20).Start()

	rec, err := store.CreateDefault(ctx, "user-1")
	require.NoError(t, err)

	usedAt := day(15).Start()
	next := rec.Clone()
	next.RewardLedger = []streak.Voucher{
		{ID: "soon", Kind: streak.VoucherWeeklyReward, EarnedAt: day(1), ExpiresAt: now.Add(48 * time.Hour)},
		{ID: "later", Kind: streak.VoucherWeeklyReward, EarnedAt: day(5), ExpiresAt: now.Add(240 * time.Hour)},
		{ID: "gone", Kind: streak.VoucherWeeklyReward, EarnedAt: day(1), ExpiresAt: now.Add(-time.Hour)},
		{ID: "spent", Kind: streak.VoucherWeeklyReward, EarnedAt: day(1), Used: true, UsedAt: &usedAt, ExpiresAt: now.Add(24 * time.Hour)},
	}
	next.UpdatedAt = now
	_, err = store.SaveAtomic(ctx, next, 1)
	require.NoError(t, err)

	expiring, err := store.ExpiringVouchers(ctx, now, now.Add(72*time.Hour))
	require.NoError(t, err)

	require.Len(t, expiring, 1)
	assert.Equal(t, streak.VoucherID("soon"), expiring[0].Voucher.ID)
	assert.Equal(t, streak.UserID("user-1"), expiring[0].UserID)
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestExpense_CreateGetUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := testExpense("e-1", "user-1", day(10))
	require.NoError(t, store.Create(ctx, e))

	got, err := store.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Description)
	assert.True(t, got.Amount.Equal(e.Amount))
	assert.True(t, got.Date.Equal(day(10)))
	assert.True(t, got.CreatedAt.Equal(e.CreatedAt))

	got.Description = "Weekly groceries"
	got.ImpulseTag = true
	require.NoError(t, store.Update(ctx, got))

	updated, err := store.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "Weekly groceries", updated.Description)
	assert.True(t, updated.ImpulseTag)

	require.NoError(t, store.Delete(ctx, "e-1"))
	_, err = store.GetByID(ctx, "e-1")
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
}

func TestExpense_UpdateMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), testExpense("ghost", "user-1", day(1)))
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
}

func TestListByUser_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testExpense("e-1", "user-1", day(3))))
	require.NoError(t, store.Create(ctx, testExpense("e-2", "user-1", day(8))))
	require.NoError(t, store.Create(ctx, testExpense("e-3", "user-2", day(5))))

	list, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, expense.ExpenseID("e-2"), list[0].ID)
	assert.Equal(t, expense.ExpenseID("e-1"), list[1].ID)
}

func TestCategoryTotals_DecimalExactSums(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := func(id expense.ExpenseID, category, amount string) {
		e := testExpense(id, "user-1", day(5))
		e.Category = category
		e.Amount = decimal.RequireFromString(amount)
		require.NoError(t, store.Create(ctx, e))
	}
	seed("e-1", "food", "0.10")
	seed("e-2", "food", "0.20")
	seed("e-3", "transport", "8.00")

	totals, err := store.CategoryTotals(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.Equal(t, "food", totals[0].Category)
	assert.True(t, totals[0].Total.Equal(decimal.RequireFromString("0.30")), "decimal sum must be exact")
	assert.Equal(t, 2, totals[0].Count)
	assert.Equal(t, "transport", totals[1].Category)
}
