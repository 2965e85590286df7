package expense

import (
	"context"
	"errors"
)

// ErrExpenseNotFound is returned by stores for unknown expense ids.
var ErrExpenseNotFound = errors.New("expense not found")

// Store persists expense records. Unlike the streak record store there
// is no version stamp: expenses are independent rows, and editing one
// never re-derives a streak transition (reconciliation on edit/delete
// is deliberately outside the streak engine's contract).
type Store interface {
	Create(ctx context.Context, e *Expense) error

	// GetByID returns an expense or ErrExpenseNotFound.
	GetByID(ctx context.Context, id ExpenseID) (*Expense, error)

	// List returns all expenses, newest purchase date first.
	List(ctx context.Context) ([]*Expense, error)

	// ListByUser returns one user's expenses, newest purchase date first.
	ListByUser(ctx context.Context, userID string) ([]*Expense, error)

	Update(ctx context.Context, e *Expense) error
	Delete(ctx context.Context, id ExpenseID) error

	// CategoryTotals aggregates a user's spending per category.
	CategoryTotals(ctx context.Context, userID string) ([]CategoryTotal, error)
}
