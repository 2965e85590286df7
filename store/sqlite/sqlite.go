/*
Package sqlite provides a SQLite-backed implementation of the storage contracts.

PURPOSE:
  Implements streak.Store and expense.Store on SQLite. In production the
  same patterns apply to PostgreSQL (see store/postgres) - only minor
  SQL dialect differences.

OPTIMISTIC CONCURRENCY:
  streak_records carries a version column. SaveAtomic is a single
  conditional UPDATE:

    UPDATE streak_records SET ..., version = version + 1
    WHERE user_id = ? AND version = ?

  Zero rows affected means another writer got there first; the caller
  re-derives the transition from a fresh load. Counters, anchor dates,
  and the reward ledger live in one row, so the update is atomic by
  construction - no partial write is possible.

REWARD LEDGER STORAGE:
  Vouchers are embedded in the record row as a JSON column. The ledger
  is small (one voucher per completed week), read and written whole,
  and ordered by insertion - a JSON array is the honest representation.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/tracker.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := streak.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - streak/store.go: Contract definition
  - store/memory:    In-memory implementation for tests
  - store/postgres:  PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/streak"
)

// Store implements streak.Store and expense.Store using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ streak.Store          = (*Store)(nil)
	_ streak.VoucherScanner = (*Store)(nil)
	_ expense.Store         = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- One streak record per user. Mutated only through the conditional
	-- update in SaveAtomic; the version column is the optimistic lock.
	CREATE TABLE IF NOT EXISTS streak_records (
		user_id TEXT PRIMARY KEY,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		completed_streaks INTEGER NOT NULL DEFAULT 0,
		free_credits INTEGER NOT NULL DEFAULT 0,
		last_qualifying_date TEXT,
		last_reset_date TEXT,
		ledger_json TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	-- Expense records (the purchases that drive streak transitions)
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		purchase_date TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		necessity TEXT NOT NULL,
		time_of_day TEXT NOT NULL,
		payment_mode TEXT NOT NULL,
		impulse_tag INTEGER NOT NULL DEFAULT 0,
		source_app TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_user_date
		ON expenses(user_id, purchase_date DESC);
	CREATE INDEX IF NOT EXISTS idx_expenses_category
		ON expenses(category);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STREAK STORE
// =============================================================================

// voucherRow is the JSON shape of a ledger entry. Kept separate from
// streak.Voucher so the stored schema survives domain-type renames.
type voucherRow struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	EarnedAt  string     `json:"earned_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func marshalLedger(ledger []streak.Voucher) (string, error) {
	rows := make([]voucherRow, len(ledger))
	for i, v := range ledger {
		rows[i] = voucherRow{
			ID:        string(v.ID),
			Kind:      string(v.Kind),
			EarnedAt:  v.EarnedAt.String(),
			Used:      v.Used,
			UsedAt:    v.UsedAt,
			ExpiresAt: v.ExpiresAt,
		}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalLedger(data string) ([]streak.Voucher, error) {
	var rows []voucherRow
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, err
	}
	ledger := make([]streak.Voucher, len(rows))
	for i, r := range rows {
		earned, err := streak.ParseDay(r.EarnedAt)
		if err != nil {
			return nil, fmt.Errorf("bad earned_at %q: %w", r.EarnedAt, err)
		}
		ledger[i] = streak.Voucher{
			ID:        streak.VoucherID(r.ID),
			Kind:      streak.VoucherKind(r.Kind),
			EarnedAt:  earned,
			Used:      r.Used,
			UsedAt:    r.UsedAt,
			ExpiresAt: r.ExpiresAt,
		}
	}
	return ledger, nil
}

func dayToNull(d streak.Day) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullToDay(ns sql.NullString) (streak.Day, error) {
	if !ns.Valid || ns.String == "" {
		return streak.Day{}, nil
	}
	return streak.ParseDay(ns.String)
}

func (s *Store) LoadByUser(ctx context.Context, userID streak.UserID) (*streak.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, current_streak, longest_streak, completed_streaks,
		       free_credits, last_qualifying_date, last_reset_date,
		       ledger_json, version, updated_at
		FROM streak_records WHERE user_id = ?`, string(userID))

	var (
		rec        streak.Record
		uid        string
		qualifying sql.NullString
		reset      sql.NullString
		ledgerJSON string
		updatedAt  string
	)
	err := row.Scan(&uid, &rec.CurrentStreak, &rec.LongestStreak, &rec.CompletedStreaks,
		&rec.FreeCredits, &qualifying, &reset, &ledgerJSON, &rec.Version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, streak.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load streak record: %v", streak.ErrStoreUnavailable, err)
	}

	rec.UserID = streak.UserID(uid)
	if rec.LastQualifyingDate, err = nullToDay(qualifying); err != nil {
		return nil, fmt.Errorf("corrupt last_qualifying_date: %w", err)
	}
	if rec.LastResetDate, err = nullToDay(reset); err != nil {
		return nil, fmt.Errorf("corrupt last_reset_date: %w", err)
	}
	if rec.RewardLedger, err = unmarshalLedger(ledgerJSON); err != nil {
		return nil, fmt.Errorf("corrupt ledger_json: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("corrupt updated_at: %w", err)
	}
	return &rec, nil
}

func (s *Store) CreateDefault(ctx context.Context, userID streak.UserID) (*streak.Record, error) {
	rec := streak.NewRecord(userID)
	rec.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO streak_records (user_id, ledger_json, version, updated_at)
		VALUES (?, '[]', 1, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		string(userID), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("%w: create streak record: %v", streak.ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the creation race.
		return nil, &streak.ConflictError{UserID: userID, ExpectedVersion: 0}
	}
	return rec, nil
}

// SaveAtomic commits the record as a single conditional UPDATE. The
// version guard serializes concurrent read-modify-write cycles for the
// same user without any lock held across the cycle.
func (s *Store) SaveAtomic(ctx context.Context, rec *streak.Record, expectedVersion int64) (*streak.Record, error) {
	ledgerJSON, err := marshalLedger(rec.RewardLedger)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE streak_records SET
			current_streak = ?,
			longest_streak = ?,
			completed_streaks = ?,
			free_credits = ?,
			last_qualifying_date = ?,
			last_reset_date = ?,
			ledger_json = ?,
			version = version + 1,
			updated_at = ?
		WHERE user_id = ? AND version = ?`,
		rec.CurrentStreak, rec.LongestStreak, rec.CompletedStreaks, rec.FreeCredits,
		dayToNull(rec.LastQualifyingDate), dayToNull(rec.LastResetDate),
		ledgerJSON, rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(rec.UserID), expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: save streak record: %v", streak.ErrStoreUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: save streak record: %v", streak.ErrStoreUnavailable, err)
	}
	if n == 0 {
		var actual int64
		row := s.db.QueryRowContext(ctx,
			`SELECT version FROM streak_records WHERE user_id = ?`, string(rec.UserID))
		if scanErr := row.Scan(&actual); scanErr == sql.ErrNoRows {
			return nil, streak.ErrRecordNotFound
		}
		return nil, &streak.ConflictError{
			UserID:          rec.UserID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}

	saved := rec.Clone()
	saved.Version = expectedVersion + 1
	return saved, nil
}

// ExpiringVouchers scans all ledgers for unused vouchers expiring in
// (now, before]. The ledger lives in a JSON column, so filtering
// happens in Go; record counts are per-user and small.
func (s *Store) ExpiringVouchers(ctx context.Context, now, before time.Time) ([]streak.ExpiringVoucher, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, ledger_json FROM streak_records WHERE ledger_json != '[]'`)
	if err != nil {
		return nil, fmt.Errorf("%w: scan vouchers: %v", streak.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	result := []streak.ExpiringVoucher{}
	for rows.Next() {
		var uid, ledgerJSON string
		if err := rows.Scan(&uid, &ledgerJSON); err != nil {
			return nil, fmt.Errorf("%w: scan vouchers: %v", streak.ErrStoreUnavailable, err)
		}
		ledger, err := unmarshalLedger(ledgerJSON)
		if err != nil {
			return nil, fmt.Errorf("corrupt ledger_json: %w", err)
		}
		for _, v := range ledger {
			if !v.Used && v.ExpiresAt.After(now) && !v.ExpiresAt.After(before) {
				result = append(result, streak.ExpiringVoucher{UserID: streak.UserID(uid), Voucher: v})
			}
		}
	}
	return result, rows.Err()
}

// =============================================================================
// EXPENSE STORE
// =============================================================================

func (s *Store) Create(ctx context.Context, e *expense.Expense) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, purchase_date, description, amount,
			category, necessity, time_of_day, payment_mode, impulse_tag,
			source_app, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.UserID), e.Date.String(), e.Description,
		e.Amount.String(), e.Category, string(e.Necessity), string(e.TimeOfDay),
		e.PaymentMode, e.ImpulseTag, e.SourceApp,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, user_id, purchase_date, description, amount,
	category, necessity, time_of_day, payment_mode, impulse_tag,
	source_app, created_at`

func scanExpense(scan func(...any) error) (*expense.Expense, error) {
	var (
		e         expense.Expense
		id        string
		uid       string
		date      string
		amount    string
		necessity string
		timeOfDay string
		createdAt string
	)
	err := scan(&id, &uid, &date, &e.Description, &amount, &e.Category,
		&necessity, &timeOfDay, &e.PaymentMode, &e.ImpulseTag, &e.SourceApp, &createdAt)
	if err != nil {
		return nil, err
	}

	e.ID = expense.ExpenseID(id)
	e.UserID = streak.UserID(uid)
	e.Necessity = expense.Necessity(necessity)
	e.TimeOfDay = expense.TimeOfDay(timeOfDay)
	if e.Date, err = streak.ParseDay(date); err != nil {
		return nil, fmt.Errorf("corrupt purchase_date: %w", err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at: %w", err)
	}
	return &e, nil
}

func (s *Store) GetByID(ctx context.Context, id expense.ExpenseID) (*expense.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, string(id))
	e, err := scanExpense(row.Scan)
	if err == sql.ErrNoRows {
		return nil, expense.ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (s *Store) List(ctx context.Context) ([]*expense.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY purchase_date DESC, created_at DESC`)
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]*expense.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY purchase_date DESC, created_at DESC`,
		userID)
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]*expense.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	result := []*expense.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) Update(ctx context.Context, e *expense.Expense) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET purchase_date = ?, description = ?, amount = ?,
			category = ?, necessity = ?, time_of_day = ?, payment_mode = ?,
			impulse_tag = ?, source_app = ?
		WHERE id = ?`,
		e.Date.String(), e.Description, e.Amount.String(), e.Category,
		string(e.Necessity), string(e.TimeOfDay), e.PaymentMode,
		e.ImpulseTag, e.SourceApp, string(e.ID))
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return expense.ErrExpenseNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id expense.ExpenseID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return expense.ErrExpenseNotFound
	}
	return nil
}

// CategoryTotals sums in Go rather than SQL: amounts are stored as
// decimal strings, and SUM() would silently fall back to float math.
func (s *Store) CategoryTotals(ctx context.Context, userID string) ([]expense.CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, amount FROM expenses
		WHERE user_id = ? ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate expenses: %w", err)
	}
	defer rows.Close()

	result := []expense.CategoryTotal{}
	for rows.Next() {
		var category, amount string
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount: %w", err)
		}
		if len(result) == 0 || result[len(result)-1].Category != category {
			result = append(result, expense.CategoryTotal{Category: category, Total: decimal.Zero})
		}
		last := &result[len(result)-1]
		last.Total = last.Total.Add(value)
		last.Count++
	}
	return result, rows.Err()
}
