package expense_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/store/memory"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestService() (*expense.Service, *memory.ExpenseStore) {
	expenses := memory.NewExpenseStore()
	engine := streak.NewEngine(memory.NewStreakStore())
	return expense.NewService(expenses, engine), expenses
}

func day(n int) streak.Day {
	return streak.NewDay(2026, time.January, n)
}

func validExpense(userID streak.UserID, d streak.Day) expense.Expense {
	return expense.Expense{
		UserID:      userID,
		Date:        d,
		Description: "Groceries",
		Amount:      decimal.NewFromFloat(42.50),
		Category:    "food",
		Necessity:   expense.NecessityNeed,
		TimeOfDay:   expense.TimeEvening,
		PaymentMode: "card",
	}
}

// flakyStreakStore fails the first N saves with a version conflict.
type flakyStreakStore struct {
	streak.Store
	failures int
}

func (s *flakyStreakStore) SaveAtomic(ctx context.Context, rec *streak.Record, expectedVersion int64) (*streak.Record, error) {
	if s.failures > 0 {
		s.failures--
		return nil, &streak.ConflictError{
			UserID:          rec.UserID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   expectedVersion + 1,
		}
	}
	return s.Store.SaveAtomic(ctx, rec, expectedVersion)
}

// =============================================================================
// CREATION FLOW
// =============================================================================

func TestCreate_PersistsAndAppliesTransition(t *testing.T) {
	// GIVEN: A fresh user
	// WHEN: A non-impulse expense is created
	// THEN: The expense is stored and the streak advances to 1
	svc, _ := newTestService()

	result, err := svc.Create(context.Background(), expense.CreateInput{
		Expense: validExpense("user-1", day(1)),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Expense.ID)
	assert.False(t, result.Expense.CreatedAt.IsZero())
	assert.Equal(t, streak.RewardNone, result.Reward.Kind)
	assert.Equal(t, 1, result.Streak.CurrentStreak)

	stored, err := svc.Get(context.Background(), result.Expense.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", stored.Description)
}

func TestCreate_ImpulseWithCredit_ReportsForgiveness(t *testing.T) {
	// GIVEN: A user who earned a free credit (three completed streaks)
	// WHEN: An impulse expense is created with spend_credit
	// THEN: The result reports the spent credit and the streak survives
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 1; i <= 3*streak.StreakTarget; i++ {
		_, err := svc.Create(ctx, expense.CreateInput{Expense: validExpense("user-1", day(i))})
		require.NoError(t, err)
	}

	impulse := validExpense("user-1", day(22))
	impulse.ImpulseTag = true
	impulse.Description = "Limited sneakers"

	result, err := svc.Create(ctx, expense.CreateInput{Expense: impulse, SpendCredit: true})
	require.NoError(t, err)

	assert.True(t, result.CreditSpent)
	assert.Equal(t, 0, result.Streak.FreeCredits)
	assert.Equal(t, 3, result.Streak.CompletedStreaks)
}

func TestCreate_InvalidExpense_NeverTouchesStores(t *testing.T) {
	svc, expenses := newTestService()

	bad := validExpense("user-1", day(1))
	bad.Description = ""

	_, err := svc.Create(context.Background(), expense.CreateInput{Expense: bad})
	require.Error(t, err)
	assert.True(t, streak.IsClientError(err))

	all, err := expenses.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_RetriesTransitionOnConflict(t *testing.T) {
	// GIVEN: A streak store that rejects the first two saves
	// WHEN: An expense is created
	// THEN: The transition is re-derived and eventually commits
	flaky := &flakyStreakStore{Store: memory.NewStreakStore(), failures: 2}
	svc := expense.NewService(memory.NewExpenseStore(), streak.NewEngine(flaky))

	result, err := svc.Create(context.Background(), expense.CreateInput{
		Expense: validExpense("user-1", day(1)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Streak.CurrentStreak)
}

func TestCreate_GivesUpAfterBoundedRetries(t *testing.T) {
	flaky := &flakyStreakStore{Store: memory.NewStreakStore(), failures: 10}
	svc := expense.NewService(memory.NewExpenseStore(), streak.NewEngine(flaky))

	_, err := svc.Create(context.Background(), expense.CreateInput{
		Expense: validExpense("user-1", day(1)),
	})
	require.Error(t, err)
	assert.True(t, streak.IsRetryable(err))
}

// =============================================================================
// EDITS NEVER TOUCH THE STREAK
// =============================================================================

func TestUpdateAndDelete_LeaveStreakAlone(t *testing.T) {
	// GIVEN: An expense whose creation advanced the streak
	// WHEN: It is edited to an impulse purchase and then deleted
	// THEN: The streak record is unchanged throughout
	streakStore := memory.NewStreakStore()
	engine := streak.NewEngine(streakStore)
	svc := expense.NewService(memory.NewExpenseStore(), engine)
	ctx := context.Background()

	result, err := svc.Create(ctx, expense.CreateInput{Expense: validExpense("user-1", day(1))})
	require.NoError(t, err)

	edited := *result.Expense
	edited.ImpulseTag = true
	require.NoError(t, svc.Update(ctx, &edited))

	rec, err := streakStore.LoadByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CurrentStreak)

	require.NoError(t, svc.Delete(ctx, edited.ID))

	rec, err = streakStore.LoadByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CurrentStreak)
}

func TestDelete_Missing_ReturnsNotFound(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Delete(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
}

// =============================================================================
// AGGREGATES
// =============================================================================

func TestCategoryTotals_SumsPerCategory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	seed := func(d streak.Day, category, amount string) {
		e := validExpense("user-1", d)
		e.Category = category
		e.Amount = decimal.RequireFromString(amount)
		_, err := svc.Create(ctx, expense.CreateInput{Expense: e})
		require.NoError(t, err)
	}
	seed(day(1), "food", "10.50")
	seed(day(2), "food", "4.25")
	seed(day(3), "transport", "8.00")

	totals, err := svc.CategoryTotals(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, totals, 2)

	// Sorted by category name.
	assert.Equal(t, "food", totals[0].Category)
	assert.True(t, totals[0].Total.Equal(decimal.RequireFromString("14.75")))
	assert.Equal(t, 2, totals[0].Count)
	assert.Equal(t, "transport", totals[1].Category)
	assert.Equal(t, 1, totals[1].Count)
}
