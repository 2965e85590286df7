/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Domain validation lives in expense.Expense.Validate; handlers only
  parse and map. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ExpenseDTO represents an expense in API responses.
type ExpenseDTO struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Necessity   string  `json:"necessity"`
	TimeOfDay   string  `json:"time_of_day"`
	PaymentMode string  `json:"payment_mode"`
	ImpulseTag  bool    `json:"impulse_tag"`
	SourceApp   string  `json:"source_app,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// CreateExpenseRequest is the request to record a purchase.
type CreateExpenseRequest struct {
	UserID      string  `json:"user_id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Necessity   string  `json:"necessity"`
	TimeOfDay   string  `json:"time_of_day"`
	PaymentMode string  `json:"payment_mode"`
	ImpulseTag  bool    `json:"impulse_tag"`
	SourceApp   string  `json:"source_app,omitempty"`

	// SpendCredit asks the streak engine to forgive this impulse
	// purchase with a free credit. Ignored when impulse_tag is false.
	SpendCredit bool `json:"spend_credit,omitempty"`
}

// UpdateExpenseRequest edits an existing expense. The streak transition
// from the original creation is not re-derived.
type UpdateExpenseRequest struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Necessity   string  `json:"necessity"`
	TimeOfDay   string  `json:"time_of_day"`
	PaymentMode string  `json:"payment_mode"`
	ImpulseTag  bool    `json:"impulse_tag"`
	SourceApp   string  `json:"source_app,omitempty"`
}

// CreateExpenseResponse merges the persisted expense with the streak
// outcome it caused.
type CreateExpenseResponse struct {
	Expense     ExpenseDTO      `json:"expense"`
	Reward      string          `json:"reward"`
	Voucher     *VoucherDTO     `json:"voucher,omitempty"`
	CreditSpent bool            `json:"credit_spent"`
	Streak      StreakStatusDTO `json:"streak"`
}

// StreakStatusDTO is the compact streak state echoed on every creation.
type StreakStatusDTO struct {
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	CompletedStreaks int    `json:"completed_streaks"`
	FreeCredits      int    `json:"free_credits"`
	LastQualifying   string `json:"last_qualifying_date,omitempty"`
}

// VoucherDTO represents a reward ledger entry.
type VoucherDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	EarnedAt  string `json:"earned_at"`
	Used      bool   `json:"used"`
	UsedAt    string `json:"used_at,omitempty"`
	ExpiresAt string `json:"expires_at"`
}

// StreakStatsDTO is the full stats projection for a user.
type StreakStatsDTO struct {
	CurrentStreak    int          `json:"current_streak"`
	LongestStreak    int          `json:"longest_streak"`
	CompletedStreaks int          `json:"completed_streaks"`
	FreeCredits      int          `json:"free_credits"`
	ActiveVouchers   []VoucherDTO `json:"active_vouchers"`
	UsedVouchers     []VoucherDTO `json:"used_vouchers"`
}

// CategoryTotalDTO is a per-category spending aggregate.
type CategoryTotalDTO struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toExpenseDTO(e *expense.Expense) ExpenseDTO {
	amount, _ := e.Amount.Float64()
	return ExpenseDTO{
		ID:          string(e.ID),
		UserID:      string(e.UserID),
		Date:        e.Date.String(),
		Description: e.Description,
		Amount:      amount,
		Category:    e.Category,
		Necessity:   string(e.Necessity),
		TimeOfDay:   string(e.TimeOfDay),
		PaymentMode: e.PaymentMode,
		ImpulseTag:  e.ImpulseTag,
		SourceApp:   e.SourceApp,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func toExpenseDTOs(expenses []*expense.Expense) []ExpenseDTO {
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	return dtos
}

func toVoucherDTO(v streak.Voucher) VoucherDTO {
	dto := VoucherDTO{
		ID:        string(v.ID),
		Kind:      string(v.Kind),
		EarnedAt:  v.EarnedAt.String(),
		Used:      v.Used,
		ExpiresAt: v.ExpiresAt.Format(time.RFC3339),
	}
	if v.UsedAt != nil {
		dto.UsedAt = v.UsedAt.Format(time.RFC3339)
	}
	return dto
}

func toVoucherDTOs(vouchers []streak.Voucher) []VoucherDTO {
	dtos := make([]VoucherDTO, len(vouchers))
	for i, v := range vouchers {
		dtos[i] = toVoucherDTO(v)
	}
	return dtos
}

func toStreakStatusDTO(rec *streak.Record) StreakStatusDTO {
	dto := StreakStatusDTO{
		CurrentStreak:    rec.CurrentStreak,
		LongestStreak:    rec.LongestStreak,
		CompletedStreaks: rec.CompletedStreaks,
		FreeCredits:      rec.FreeCredits,
	}
	if !rec.LastQualifyingDate.IsZero() {
		dto.LastQualifying = rec.LastQualifyingDate.String()
	}
	return dto
}
