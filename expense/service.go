/*
service.go - Expense creation flow and streak engine invocation

PURPOSE:
  Coordinates the two stores: persists the expense record, then applies
  exactly one streak transition for it and merges the outcome into the
  user-facing result.

RETRY DISCIPLINE:
  The streak store uses optimistic concurrency. When SaveAtomic reports
  a version conflict, the stale in-memory record must not be patched;
  the WHOLE transition is re-derived from a fresh load. That re-derive
  lives inside the engine, so retrying here is just calling it again.
  Attempts are bounded: same-user purchase events are rare enough that
  more than a few collisions indicate a bug, not load.

ONE TRANSITION PER PURCHASE EVENT:
  Only Create triggers a streak transition. Updating or deleting an
  expense later, even flipping its impulse tag, does not unwind the
  transition it originally caused.
*/
package expense

import (
	"context"
	"time"

	"github.com/warp/impulse-tracker/streak"
)

// maxTransitionAttempts bounds retries on version conflicts.
const maxTransitionAttempts = 3

// Service is the expense-creation flow.
type Service struct {
	expenses Store
	engine   *streak.Engine
}

func NewService(expenses Store, engine *streak.Engine) *Service {
	return &Service{expenses: expenses, engine: engine}
}

// CreateInput is an expense plus the streak-facing option.
type CreateInput struct {
	Expense Expense

	// SpendCredit asks the engine to forgive an impulse purchase with
	// a free credit instead of breaking the streak. Ignored for
	// non-impulse purchases.
	SpendCredit bool
}

// CreateResult is the persisted expense merged with the streak outcome.
type CreateResult struct {
	Expense *Expense

	// Reward is the streak outcome for non-impulse purchases.
	Reward streak.Reward

	// CreditSpent reports whether an impulse purchase was forgiven.
	CreditSpent bool

	// Streak is the record after the transition.
	Streak *streak.Record
}

// Create validates and persists the expense, then applies its streak
// transition. The expense write happens first: a streak store failure
// leaves the expense recorded and is reported to the caller, who may
// retry the transition.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	e := in.Expense
	if e.ID == "" {
		e.ID = NewExpenseID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.expenses.Create(ctx, &e); err != nil {
		return nil, err
	}

	result := &CreateResult{Expense: &e, Reward: streak.NoReward}

	var err error
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if e.ImpulseTag {
			result.Streak, result.CreditSpent, err = s.engine.RecordImpulsePurchase(ctx, e.UserID, e.Date, in.SpendCredit)
		} else {
			result.Streak, result.Reward, err = s.engine.RecordNonImpulsePurchase(ctx, e.UserID, e.Date)
		}
		if err == nil || !streak.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a single expense.
func (s *Service) Get(ctx context.Context, id ExpenseID) (*Expense, error) {
	return s.expenses.GetByID(ctx, id)
}

// List returns all expenses, newest first.
func (s *Service) List(ctx context.Context) ([]*Expense, error) {
	return s.expenses.List(ctx)
}

// ListByUser returns one user's expenses, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Expense, error) {
	return s.expenses.ListByUser(ctx, userID)
}

// Update edits an existing expense record. No streak transition runs.
func (s *Service) Update(ctx context.Context, e *Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.expenses.Update(ctx, e)
}

// Delete removes an expense record. No streak transition is unwound.
func (s *Service) Delete(ctx context.Context, id ExpenseID) error {
	return s.expenses.Delete(ctx, id)
}

// CategoryTotals aggregates a user's spending per category.
func (s *Service) CategoryTotals(ctx context.Context, userID string) ([]CategoryTotal, error) {
	return s.expenses.CategoryTotals(ctx, userID)
}
