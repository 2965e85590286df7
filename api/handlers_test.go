/*
handlers_test.go - HTTP-level tests for the API surface

Tests drive the real router with in-memory stores, so every request
exercises the same middleware, handlers, and engine wiring as
production, minus the database.
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/store/memory"
	"github.com/warp/impulse-tracker/streak"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestRouter() http.Handler {
	engine := streak.NewEngine(memory.NewStreakStore())
	service := expense.NewService(memory.NewExpenseStore(), engine)
	return NewRouter(NewHandler(service, engine))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	// One rate-limit bucket per test, not one shared across the run.
	req.Header.Set("X-Forwarded-For", t.Name())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), "body: %s", rr.Body.String())
	return out
}

// dateStr returns today's UTC date shifted by the given number of
// days. Handlers project stats and redeem vouchers at time.Now(), so
// seeded history has to sit near the real clock.
func dateStr(offset int) string {
	return streak.Today().AddDays(offset).String()
}

func expenseBody(userID, date string, impulse bool) CreateExpenseRequest {
	return CreateExpenseRequest{
		UserID:      userID,
		Date:        date,
		Description: "Groceries",
		Amount:      42.50,
		Category:    "food",
		Necessity:   "need",
		TimeOfDay:   "evening",
		PaymentMode: "card",
		ImpulseTag:  impulse,
	}
}

// seedWeek posts seven consecutive qualifying days ending yesterday.
func seedWeek(t *testing.T, router http.Handler, userID string) CreateExpenseResponse {
	t.Helper()
	var last CreateExpenseResponse
	for i := 7; i >= 1; i-- {
		rr := doJSON(t, router, http.MethodPost, "/api/expenses",
			expenseBody(userID, dateStr(-i), false))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		last = decodeBody[CreateExpenseResponse](t, rr)
	}
	return last
}

// =============================================================================
// EXPENSE ENDPOINTS
// =============================================================================

func TestCreateExpense_ReturnsStreakOutcome(t *testing.T) {
	router := newTestRouter()

	rr := doJSON(t, router, http.MethodPost, "/api/expenses", expenseBody("user-1", dateStr(0), false))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := decodeBody[CreateExpenseResponse](t, rr)
	assert.NotEmpty(t, resp.Expense.ID)
	assert.Equal(t, "none", resp.Reward)
	assert.Nil(t, resp.Voucher)
	assert.Equal(t, 1, resp.Streak.CurrentStreak)
	assert.Equal(t, dateStr(0), resp.Streak.LastQualifying)
}

func TestCreateExpense_SeventhDay_ReturnsVoucher(t *testing.T) {
	router := newTestRouter()

	last := seedWeek(t, router, "user-1")

	assert.Equal(t, "weekly-reward", last.Reward)
	require.NotNil(t, last.Voucher)
	assert.Equal(t, dateStr(-1), last.Voucher.EarnedAt)
	assert.False(t, last.Voucher.Used)
	assert.Equal(t, 0, last.Streak.CurrentStreak)
	assert.Equal(t, 1, last.Streak.CompletedStreaks)
}

func TestCreateExpense_BadDate(t *testing.T) {
	router := newTestRouter()

	rr := doJSON(t, router, http.MethodPost, "/api/expenses", expenseBody("user-1", "01/05/2026", false))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateExpense_MissingFields(t *testing.T) {
	router := newTestRouter()

	body := expenseBody("user-1", dateStr(0), false)
	body.Description = ""
	rr := doJSON(t, router, http.MethodPost, "/api/expenses", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetExpense_RoundTripAndNotFound(t *testing.T) {
	router := newTestRouter()

	created := decodeBody[CreateExpenseResponse](t,
		doJSON(t, router, http.MethodPost, "/api/expenses", expenseBody("user-1", dateStr(0), false)))

	rr := doJSON(t, router, http.MethodGet, "/api/expenses/"+created.Expense.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[ExpenseDTO](t, rr)
	assert.Equal(t, "Groceries", got.Description)

	rr = doJSON(t, router, http.MethodGet, "/api/expenses/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateExpense_DoesNotRederiveStreak(t *testing.T) {
	// GIVEN: A qualifying expense that advanced the streak to 1
	// WHEN: It is edited into an impulse purchase
	// THEN: The stored expense changes but the streak stays at 1
	router := newTestRouter()

	created := decodeBody[CreateExpenseResponse](t,
		doJSON(t, router, http.MethodPost, "/api/expenses", expenseBody("user-1", dateStr(0), false)))

	rr := doJSON(t, router, http.MethodPut, "/api/expenses/"+created.Expense.ID, UpdateExpenseRequest{
		Date:        dateStr(0),
		Description: "Impulse snack",
		Amount:      9.99,
		Category:    "food",
		Necessity:   "want",
		TimeOfDay:   "night",
		PaymentMode: "cash",
		ImpulseTag:  true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	stats := decodeBody[StreakStatsDTO](t,
		doJSON(t, router, http.MethodGet, "/api/users/user-1/streak", nil))
	assert.Equal(t, 1, stats.CurrentStreak)
}

func TestDeleteExpense(t *testing.T) {
	router := newTestRouter()

	created := decodeBody[CreateExpenseResponse](t,
		doJSON(t, router, http.MethodPost, "/api/expenses", expenseBody("user-1", dateStr(0), false)))

	rr := doJSON(t, router, http.MethodDelete, "/api/expenses/"+created.Expense.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/api/expenses/"+created.Expense.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// STREAK AND VOUCHER ENDPOINTS
// =============================================================================

func TestGetStreakStats_FreshUser(t *testing.T) {
	router := newTestRouter()

	rr := doJSON(t, router, http.MethodGet, "/api/users/nobody/streak", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	stats := decodeBody[StreakStatsDTO](t, rr)
	assert.Equal(t, 0, stats.CurrentStreak)
	assert.NotNil(t, stats.ActiveVouchers)
	assert.Empty(t, stats.ActiveVouchers)
}

func TestRedeemVoucher_EndToEnd(t *testing.T) {
	// GIVEN: A voucher earned through the expense endpoint
	// WHEN: It is redeemed, then redeemed again
	// THEN: First call marks it used, second is rejected as client error
	router := newTestRouter()
	last := seedWeek(t, router, "user-1")
	require.NotNil(t, last.Voucher)

	path := "/api/users/user-1/vouchers/" + last.Voucher.ID + "/redeem"

	rr := doJSON(t, router, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	redeemed := decodeBody[VoucherDTO](t, rr)
	assert.True(t, redeemed.Used)
	assert.NotEmpty(t, redeemed.UsedAt)

	rr = doJSON(t, router, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	stats := decodeBody[StreakStatsDTO](t,
		doJSON(t, router, http.MethodGet, "/api/users/user-1/streak", nil))
	assert.Empty(t, stats.ActiveVouchers)
	require.Len(t, stats.UsedVouchers, 1)
}

func TestRedeemVoucher_Unknown(t *testing.T) {
	router := newTestRouter()
	seedWeek(t, router, "user-1")

	rr := doJSON(t, router, http.MethodPost, "/api/users/user-1/vouchers/ghost/redeem", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUserExpensesAndCategories(t *testing.T) {
	router := newTestRouter()

	doJSON(t, router, http.MethodPost, "/api/expenses", expenseBody("user-1", dateStr(0), false))
	other := expenseBody("user-2", dateStr(0), false)
	doJSON(t, router, http.MethodPost, "/api/expenses", other)

	rr := doJSON(t, router, http.MethodGet, "/api/users/user-1/expenses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[[]ExpenseDTO](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "user-1", list[0].UserID)

	rr = doJSON(t, router, http.MethodGet, "/api/users/user-1/categories", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	totals := decodeBody[[]CategoryTotalDTO](t, rr)
	require.Len(t, totals, 1)
	assert.Equal(t, "food", totals[0].Category)
	assert.Equal(t, 42.50, totals[0].Total)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_ListAndLoad(t *testing.T) {
	router := newTestRouter()

	rr := doJSON(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[[]ScenarioDTO](t, rr)
	assert.NotEmpty(t, list)

	rr = doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ID: "voucher-earned"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	loaded := decodeBody[map[string]string](t, rr)
	require.NotEmpty(t, loaded["user_id"])

	stats := decodeBody[StreakStatsDTO](t,
		doJSON(t, router, http.MethodGet, "/api/users/"+loaded["user_id"]+"/streak", nil))
	assert.Equal(t, 1, stats.CompletedStreaks)
	assert.Len(t, stats.ActiveVouchers, 1)
}

func TestScenarios_Unknown(t *testing.T) {
	router := newTestRouter()

	rr := doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
