/*
handlers.go - HTTP API handlers for the impulse tracker

PURPOSE:
  Exposes the expense flow and the streak engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Expenses:
    GET    /api/expenses                 List all expenses (newest first)
    POST   /api/expenses                 Record a purchase (runs streak transition)
    GET    /api/expenses/{id}            Get one expense
    PUT    /api/expenses/{id}            Edit an expense (no streak re-derivation)
    DELETE /api/expenses/{id}            Delete an expense (no streak unwind)

  Streak:
    GET    /api/users/{id}/streak        Stats projection (counters + vouchers)
    GET    /api/users/{id}/expenses      One user's expenses
    GET    /api/users/{id}/categories    Per-category spending totals
    POST   /api/users/{id}/vouchers/{voucherID}/redeem
                                         Mark a voucher used

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Seed a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Version conflict that survived retries, used/expired voucher
  - 500: Store failures

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public; user identity arrives as a plain field. Front with an
  authenticating proxy before exposing this anywhere real.

SEE ALSO:
  - dto.go:       Request/response data structures
  - server.go:    Router setup and middleware
  - scenarios.go: Demo scenario seeders
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Expenses *expense.Service
	Engine   *streak.Engine

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the expense service and engine.
func NewHandler(expenses *expense.Service, engine *streak.Engine) *Handler {
	return &Handler{Expenses: expenses, Engine: engine}
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns all expenses, newest purchase date first.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Expenses.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// CreateExpense records a purchase and applies its streak transition.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := streak.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Expenses.Create(r.Context(), expense.CreateInput{
		Expense: expense.Expense{
			UserID:      streak.UserID(req.UserID),
			Date:        date,
			Description: req.Description,
			Amount:      decimal.NewFromFloat(req.Amount),
			Category:    req.Category,
			Necessity:   expense.Necessity(req.Necessity),
			TimeOfDay:   expense.TimeOfDay(req.TimeOfDay),
			PaymentMode: req.PaymentMode,
			ImpulseTag:  req.ImpulseTag,
			SourceApp:   req.SourceApp,
		},
		SpendCredit: req.SpendCredit,
	})
	if err != nil {
		writeDomainError(w, "Failed to record expense", err)
		return
	}

	resp := CreateExpenseResponse{
		Expense:     toExpenseDTO(result.Expense),
		Reward:      result.Reward.Kind.String(),
		CreditSpent: result.CreditSpent,
		Streak:      toStreakStatusDTO(result.Streak),
	}
	if result.Reward.Voucher != nil {
		v := toVoucherDTO(*result.Reward.Voucher)
		resp.Voucher = &v
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetExpense returns a single expense.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id := expense.ExpenseID(chi.URLParam(r, "id"))

	e, err := h.Expenses.Get(r.Context(), id)
	if errors.Is(err, expense.ErrExpenseNotFound) {
		writeError(w, http.StatusNotFound, "Expense not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// UpdateExpense edits an expense record. The streak transition from the
// original creation event is deliberately not re-derived.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := expense.ExpenseID(chi.URLParam(r, "id"))

	existing, err := h.Expenses.Get(r.Context(), id)
	if errors.Is(err, expense.ErrExpenseNotFound) {
		writeError(w, http.StatusNotFound, "Expense not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get expense", err)
		return
	}

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := streak.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	updated := *existing
	updated.Date = date
	updated.Description = req.Description
	updated.Amount = decimal.NewFromFloat(req.Amount)
	updated.Category = req.Category
	updated.Necessity = expense.Necessity(req.Necessity)
	updated.TimeOfDay = expense.TimeOfDay(req.TimeOfDay)
	updated.PaymentMode = req.PaymentMode
	updated.ImpulseTag = req.ImpulseTag
	updated.SourceApp = req.SourceApp

	if err := h.Expenses.Update(r.Context(), &updated); err != nil {
		writeDomainError(w, "Failed to update expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(&updated))
}

// DeleteExpense removes an expense record. No streak unwind.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := expense.ExpenseID(chi.URLParam(r, "id"))

	err := h.Expenses.Delete(r.Context(), id)
	if errors.Is(err, expense.ErrExpenseNotFound) {
		writeError(w, http.StatusNotFound, "Expense not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STREAK HANDLERS
// =============================================================================

// GetStreakStats returns the stats projection for a user.
func (h *Handler) GetStreakStats(w http.ResponseWriter, r *http.Request) {
	userID := streak.UserID(chi.URLParam(r, "id"))

	stats, err := h.Engine.ProjectStats(r.Context(), userID, time.Now())
	if err != nil {
		writeDomainError(w, "Failed to project streak stats", err)
		return
	}

	writeJSON(w, http.StatusOK, StreakStatsDTO{
		CurrentStreak:    stats.CurrentStreak,
		LongestStreak:    stats.LongestStreak,
		CompletedStreaks: stats.CompletedStreaks,
		FreeCredits:      stats.FreeCredits,
		ActiveVouchers:   toVoucherDTOs(stats.ActiveVouchers),
		UsedVouchers:     toVoucherDTOs(stats.UsedVouchers),
	})
}

// ListUserExpenses returns one user's expenses.
func (h *Handler) ListUserExpenses(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	expenses, err := h.Expenses.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// GetCategoryTotals returns a user's per-category spending.
func (h *Handler) GetCategoryTotals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	totals, err := h.Expenses.CategoryTotals(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate categories", err)
		return
	}

	dtos := make([]CategoryTotalDTO, len(totals))
	for i, t := range totals {
		total, _ := t.Total.Float64()
		dtos[i] = CategoryTotalDTO{Category: t.Category, Total: total, Count: t.Count}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RedeemVoucher marks a voucher used.
func (h *Handler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	userID := streak.UserID(chi.URLParam(r, "id"))
	voucherID := streak.VoucherID(chi.URLParam(r, "voucherID"))

	v, err := h.Engine.RedeemVoucher(r.Context(), userID, voucherID, time.Now())
	if err != nil {
		writeDomainError(w, "Failed to redeem voucher", err)
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTO(*v))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		log.Printf("[API] %s: %v", message, err)
		message = message + ": " + err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps engine/store errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case streak.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case streak.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case streak.IsRetryable(err):
		// A conflict that survived the service's retries.
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
