/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the stores with realistic
	data for testing and demos. Each scenario seeds a fresh demo user and
	replays a purchase history through the real expense flow, so streak
	transitions, vouchers and credits come out of the actual engine
	rather than hand-written records.

AVAILABLE SCENARIOS:

	first-week:     3 days into a streak, no rewards yet
	voucher-earned: Full 7-day streak, weekly voucher in the ledger
	credit-saver:   3 completed streaks, free credit earned and spent
	broken-streak:  Streak broken by an impulse buy, fresh restart

HOW SCENARIOS WORK:
 1. Pick a fresh demo user id (a new suffix per load, no reset needed)
 2. Replay purchases day by day via the expense service
 3. Return the seeded user ids so the client can query them

USAGE VIA API:

	POST /api/scenarios/load
	{"id": "voucher-earned"}

ADDING NEW SCENARIOS:
 1. Add to the 'scenarios' slice with ID, name, description
 2. Create a loader function: loadXxxScenario(ctx, h, userID)
 3. Add a case to LoadScenario

SEE ALSO:
  - handlers.go:        writeJSON/writeError helpers
  - expense/service.go: The creation flow the loaders drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-week",
		Name:        "First Week",
		Description: "Three mindful days in a row, four to go before the voucher",
	},
	{
		ID:          "voucher-earned",
		Name:        "Voucher Earned",
		Description: "A full 7-day streak just completed, weekly voucher active",
	},
	{
		ID:          "credit-saver",
		Name:        "Credit Saver",
		Description: "Three completed streaks, free credit earned and spent on an impulse buy",
	},
	{
		ID:          "broken-streak",
		Name:        "Broken Streak",
		Description: "Five-day run broken by an impulse purchase, two days into the restart",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds a predefined scenario. Each load targets a fresh
// demo user, so loading twice never replays onto existing history.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	userID := streak.UserID(fmt.Sprintf("demo-%s-%s", req.ID, uuid.NewString()[:8]))

	var err error
	switch req.ID {
	case "first-week":
		err = h.loadFirstWeekScenario(ctx, userID)
	case "voucher-earned":
		err = h.loadVoucherEarnedScenario(ctx, userID)
	case "credit-saver":
		err = h.loadCreditSaverScenario(ctx, userID)
	case "broken-streak":
		err = h.loadBrokenStreakScenario(ctx, userID)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ID

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ID,
		"user_id":  string(userID),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadFirstWeekScenario seeds three consecutive mindful days ending
// yesterday, so recording a purchase today continues the streak.
func (h *Handler) loadFirstWeekScenario(ctx context.Context, userID streak.UserID) error {
	today := streak.Today()
	for i := 3; i >= 1; i-- {
		if err := h.seedPurchase(ctx, userID, today.AddDays(-i), seedOpts{
			desc: "Groceries", category: "food", amount: "42.50",
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadVoucherEarnedScenario replays a full 7-day streak. The seventh
// day completes the streak and mints the weekly voucher.
func (h *Handler) loadVoucherEarnedScenario(ctx context.Context, userID streak.UserID) error {
	today := streak.Today()
	for i := 7; i >= 1; i-- {
		if err := h.seedPurchase(ctx, userID, today.AddDays(-i), seedOpts{
			desc: "Lunch", category: "food", amount: "12.00",
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadCreditSaverScenario replays three back-to-back 7-day streaks
// (the third completion earns a free credit), then an impulse buy
// forgiven by spending that credit.
func (h *Handler) loadCreditSaverScenario(ctx context.Context, userID streak.UserID) error {
	today := streak.Today()
	for i := 22; i >= 2; i-- {
		if err := h.seedPurchase(ctx, userID, today.AddDays(-i), seedOpts{
			desc: "Commute pass", category: "transport", amount: "8.75",
		}); err != nil {
			return err
		}
	}
	return h.seedPurchase(ctx, userID, today.AddDays(-1), seedOpts{
		desc: "Limited sneakers", category: "shopping", amount: "129.99",
		impulse: true, spendCredit: true,
	})
}

// loadBrokenStreakScenario runs five mindful days, breaks the streak
// with an unforgiven impulse buy, then restarts for two days.
func (h *Handler) loadBrokenStreakScenario(ctx context.Context, userID streak.UserID) error {
	today := streak.Today()
	for i := 8; i >= 4; i-- {
		if err := h.seedPurchase(ctx, userID, today.AddDays(-i), seedOpts{
			desc: "Coffee beans", category: "food", amount: "15.00",
		}); err != nil {
			return err
		}
	}
	if err := h.seedPurchase(ctx, userID, today.AddDays(-3), seedOpts{
		desc: "Late-night gadget", category: "electronics", amount: "64.00",
		impulse: true,
	}); err != nil {
		return err
	}
	for i := 2; i >= 1; i-- {
		if err := h.seedPurchase(ctx, userID, today.AddDays(-i), seedOpts{
			desc: "Groceries", category: "food", amount: "31.20",
		}); err != nil {
			return err
		}
	}
	return nil
}

type seedOpts struct {
	desc        string
	category    string
	amount      string
	impulse     bool
	spendCredit bool
}

func (h *Handler) seedPurchase(ctx context.Context, userID streak.UserID, day streak.Day, opts seedOpts) error {
	amount, err := decimal.NewFromString(opts.amount)
	if err != nil {
		return err
	}
	_, err = h.Expenses.Create(ctx, expense.CreateInput{
		Expense: expense.Expense{
			UserID:      userID,
			Date:        day,
			Description: opts.desc,
			Amount:      amount,
			Category:    opts.category,
			Necessity:   expense.NecessityWant,
			TimeOfDay:   expense.TimeEvening,
			PaymentMode: "card",
			ImpulseTag:  opts.impulse,
			SourceApp:   "demo-seeder",
		},
		SpendCredit: opts.spendCredit,
	})
	return err
}
