// Package memory provides in-memory store implementations for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// STREAK STORE - In-memory implementation with version CAS
// =============================================================================

type StreakStore struct {
	mu      sync.RWMutex
	records map[streak.UserID]*streak.Record
}

func NewStreakStore() *StreakStore {
	return &StreakStore{records: make(map[streak.UserID]*streak.Record)}
}

var (
	_ streak.Store          = (*StreakStore)(nil)
	_ streak.VoucherScanner = (*StreakStore)(nil)
)

func (s *StreakStore) LoadByUser(_ context.Context, userID streak.UserID) (*streak.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, streak.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *StreakStore) CreateDefault(_ context.Context, userID streak.UserID) (*streak.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[userID]; ok {
		return nil, &streak.ConflictError{
			UserID:          userID,
			ExpectedVersion: 0,
			ActualVersion:   existing.Version,
		}
	}
	rec := streak.NewRecord(userID)
	s.records[userID] = rec.Clone()
	return rec, nil
}

// SaveAtomic commits iff the stored version still matches. The whole
// record, vouchers included, swaps in one critical section.
func (s *StreakStore) SaveAtomic(_ context.Context, rec *streak.Record, expectedVersion int64) (*streak.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.UserID]
	if !ok {
		return nil, streak.ErrRecordNotFound
	}
	if current.Version != expectedVersion {
		return nil, &streak.ConflictError{
			UserID:          rec.UserID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   current.Version,
		}
	}

	next := rec.Clone()
	next.Version = expectedVersion + 1
	s.records[rec.UserID] = next
	return next.Clone(), nil
}

// ExpiringVouchers returns unused vouchers expiring in (now, before].
func (s *StreakStore) ExpiringVouchers(_ context.Context, now, before time.Time) ([]streak.ExpiringVoucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []streak.ExpiringVoucher{}
	for _, rec := range s.records {
		for _, v := range rec.RewardLedger {
			if !v.Used && v.ExpiresAt.After(now) && !v.ExpiresAt.After(before) {
				result = append(result, streak.ExpiringVoucher{UserID: rec.UserID, Voucher: v})
			}
		}
	}
	return result, nil
}

// =============================================================================
// EXPENSE STORE - In-memory implementation
// =============================================================================

type ExpenseStore struct {
	mu       sync.RWMutex
	expenses map[expense.ExpenseID]*expense.Expense
}

func NewExpenseStore() *ExpenseStore {
	return &ExpenseStore{expenses: make(map[expense.ExpenseID]*expense.Expense)}
}

var _ expense.Store = (*ExpenseStore)(nil)

func (s *ExpenseStore) Create(_ context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.expenses[e.ID] = &cp
	return nil
}

func (s *ExpenseStore) GetByID(_ context.Context, id expense.ExpenseID) (*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, expense.ErrExpenseNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *ExpenseStore) List(_ context.Context) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*expense.Expense) bool { return true }), nil
}

func (s *ExpenseStore) ListByUser(_ context.Context, userID string) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(e *expense.Expense) bool { return string(e.UserID) == userID }), nil
}

// collect copies matching expenses sorted newest purchase date first.
// Callers hold the lock.
func (s *ExpenseStore) collect(match func(*expense.Expense) bool) []*expense.Expense {
	result := []*expense.Expense{}
	for _, e := range s.expenses {
		if match(e) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	return result
}

func (s *ExpenseStore) Update(_ context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[e.ID]; !ok {
		return expense.ErrExpenseNotFound
	}
	cp := *e
	s.expenses[e.ID] = &cp
	return nil
}

func (s *ExpenseStore) Delete(_ context.Context, id expense.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return expense.ErrExpenseNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *ExpenseStore) CategoryTotals(_ context.Context, userID string) ([]expense.CategoryTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*expense.CategoryTotal)
	for _, e := range s.expenses {
		if string(e.UserID) != userID {
			continue
		}
		t, ok := totals[e.Category]
		if !ok {
			t = &expense.CategoryTotal{Category: e.Category, Total: decimal.Zero}
			totals[e.Category] = t
		}
		t.Total = t.Total.Add(e.Amount)
		t.Count++
	}

	result := make([]expense.CategoryTotal, 0, len(totals))
	for _, t := range totals {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Category < result[j].Category
	})
	return result, nil
}
