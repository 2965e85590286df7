/*
Package expense is the expense ledger that feeds the streak engine.

PURPOSE:
  Owns expense records (the actual purchases) and the service that, on
  every expense creation, hands the streak engine exactly what it
  needs: the user id, the purchase's calendar day, the impulse flag,
  and an optional request to spend a free credit.

KEY CONCEPTS IN THIS FILE (model.go):
  - Expense:  A single purchase record with its classification tags
  - Necessity / TimeOfDay: closed enumerations carried from intake
  - Validation before anything touches a store

MONEY:
  Amounts use decimal.Decimal. Float64 money drifts; category totals
  over thousands of records would accumulate the error.

SEE ALSO:
  - service.go: Creation flow and streak engine invocation
  - store.go:   Persistence contract
*/
package expense

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// EXPENSE - A single purchase record
// =============================================================================

type ExpenseID string

func NewExpenseID() ExpenseID {
	return ExpenseID(uuid.NewString())
}

// Necessity classifies a purchase as a need or a want.
type Necessity string

const (
	NecessityNeed Necessity = "need"
	NecessityWant Necessity = "want"
)

// TimeOfDay buckets when the purchase happened.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeNight     TimeOfDay = "night"
)

// Expense is a single recorded purchase.
type Expense struct {
	ID          ExpenseID
	UserID      streak.UserID
	Date        streak.Day
	Description string
	Amount      decimal.Decimal
	Category    string
	Necessity   Necessity
	TimeOfDay   TimeOfDay
	PaymentMode string

	// ImpulseTag marks an unplanned purchase. Who decides what counts
	// as impulsive is the intake flow's concern; this package only
	// carries the flag through to the streak engine.
	ImpulseTag bool

	SourceApp string
	CreatedAt time.Time
}

// Validate checks required fields and enum membership.
func (e *Expense) Validate() error {
	if e.UserID == "" {
		return &streak.InputError{Field: "userId", Reason: "must not be empty"}
	}
	if e.Date.IsZero() {
		return &streak.InputError{Field: "date", Reason: "must be a valid date"}
	}
	if e.Description == "" {
		return &streak.InputError{Field: "description", Reason: "must not be empty"}
	}
	if e.Amount.IsNegative() || e.Amount.IsZero() {
		return &streak.InputError{Field: "amount", Reason: "must be positive"}
	}
	if e.Category == "" {
		return &streak.InputError{Field: "category", Reason: "must not be empty"}
	}
	switch e.Necessity {
	case NecessityNeed, NecessityWant:
	default:
		return &streak.InputError{Field: "necessity", Reason: "must be need or want"}
	}
	switch e.TimeOfDay {
	case TimeMorning, TimeAfternoon, TimeEvening, TimeNight:
	default:
		return &streak.InputError{Field: "timeOfDay", Reason: "must be morning, afternoon, evening or night"}
	}
	if e.PaymentMode == "" {
		return &streak.InputError{Field: "paymentMode", Reason: "must not be empty"}
	}
	return nil
}

// CategoryTotal is a per-category aggregate for the stats endpoints.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}
