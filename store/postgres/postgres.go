// Package postgres provides a PostgreSQL-backed implementation of the
// storage contracts, mirroring store/sqlite with pgx. Selected at
// startup when DATABASE_URL is set.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/streak"
)

// Store implements streak.Store and expense.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ streak.Store          = (*Store)(nil)
	_ streak.VoucherScanner = (*Store)(nil)
	_ expense.Store         = (*Store)(nil)
)

// New connects to the database and ensures the schema exists.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS streak_records (
		user_id TEXT PRIMARY KEY,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		completed_streaks INTEGER NOT NULL DEFAULT 0,
		free_credits INTEGER NOT NULL DEFAULT 0,
		last_qualifying_date DATE,
		last_reset_date DATE,
		ledger_json JSONB NOT NULL DEFAULT '[]',
		version BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		purchase_date DATE NOT NULL,
		description TEXT NOT NULL,
		amount NUMERIC(14, 2) NOT NULL,
		category TEXT NOT NULL,
		necessity TEXT NOT NULL,
		time_of_day TEXT NOT NULL,
		payment_mode TEXT NOT NULL,
		impulse_tag BOOLEAN NOT NULL DEFAULT FALSE,
		source_app TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_user_date
		ON expenses(user_id, purchase_date DESC);
	CREATE INDEX IF NOT EXISTS idx_expenses_category
		ON expenses(category);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// STREAK STORE
// =============================================================================

// voucherRow matches the JSON shape used by store/sqlite so the two
// backends stay interchangeable.
type voucherRow struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	EarnedAt  string     `json:"earned_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func marshalLedger(ledger []streak.Voucher) ([]byte, error) {
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
	return json.Marshal(rows)
}

func unmarshalLedger(data []byte) ([]streak.Voucher, error) {
	var rows []voucherRow
	if err := json.Unmarshal(data, &rows); err != nil {
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

func dayToPtr(d streak.Day) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Start()
	return &t
}

func ptrToDay(t *time.Time) streak.Day {
	if t == nil {
		return streak.Day{}
	}
	return streak.DayOf(*t)
}

func (s *Store) LoadByUser(ctx context.Context, userID streak.UserID) (*streak.Record, error) {
	var (
		rec        streak.Record
		uid        string
		qualifying *time.Time
		reset      *time.Time
		ledgerJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, current_streak, longest_streak, completed_streaks,
		       free_credits, last_qualifying_date, last_reset_date,
		       ledger_json, version, updated_at
		FROM streak_records WHERE user_id = $1`, string(userID)).Scan(
		&uid, &rec.CurrentStreak, &rec.LongestStreak, &rec.CompletedStreaks,
		&rec.FreeCredits, &qualifying, &reset, &ledgerJSON, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, streak.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load streak record: %v", streak.ErrStoreUnavailable, err)
	}

	rec.UserID = streak.UserID(uid)
	rec.LastQualifyingDate = ptrToDay(qualifying)
	rec.LastResetDate = ptrToDay(reset)
	if rec.RewardLedger, err = unmarshalLedger(ledgerJSON); err != nil {
		return nil, fmt.Errorf("corrupt ledger_json: %w", err)
	}
	return &rec, nil
}

func (s *Store) CreateDefault(ctx context.Context, userID streak.UserID) (*streak.Record, error) {
	rec := streak.NewRecord(userID)
	rec.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO streak_records (user_id, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		string(userID), rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create streak record: %v", streak.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &streak.ConflictError{UserID: userID, ExpectedVersion: 0}
	}
	return rec, nil
}

func (s *Store) SaveAtomic(ctx context.Context, rec *streak.Record, expectedVersion int64) (*streak.Record, error) {
	ledgerJSON, err := marshalLedger(rec.RewardLedger)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE streak_records SET
			current_streak = $1,
			longest_streak = $2,
			completed_streaks = $3,
			free_credits = $4,
			last_qualifying_date = $5,
			last_reset_date = $6,
			ledger_json = $7,
			version = version + 1,
			updated_at = $8
		WHERE user_id = $9 AND version = $10`,
		rec.CurrentStreak, rec.LongestStreak, rec.CompletedStreaks, rec.FreeCredits,
		dayToPtr(rec.LastQualifyingDate), dayToPtr(rec.LastResetDate),
		ledgerJSON, rec.UpdatedAt.UTC(),
		string(rec.UserID), expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: save streak record: %v", streak.ErrStoreUnavailable, err)
	}

	if tag.RowsAffected() == 0 {
		var actual int64
		scanErr := s.pool.QueryRow(ctx,
			`SELECT version FROM streak_records WHERE user_id = $1`, string(rec.UserID)).Scan(&actual)
		if errors.Is(scanErr, pgx.ErrNoRows) {
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
// (now, before].
func (s *Store) ExpiringVouchers(ctx context.Context, now, before time.Time) ([]streak.ExpiringVoucher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, ledger_json FROM streak_records WHERE ledger_json != '[]'::jsonb`)
	if err != nil {
		return nil, fmt.Errorf("%w: scan vouchers: %v", streak.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	result := []streak.ExpiringVoucher{}
	for rows.Next() {
		var uid string
		var ledgerJSON []byte
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO expenses (id, user_id, purchase_date, description, amount,
			category, necessity, time_of_day, payment_mode, impulse_tag,
			source_app, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(e.ID), string(e.UserID), e.Date.Start(), e.Description,
		e.Amount, e.Category, string(e.Necessity), string(e.TimeOfDay),
		e.PaymentMode, e.ImpulseTag, e.SourceApp, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, user_id, purchase_date, description, amount,
	category, necessity, time_of_day, payment_mode, impulse_tag,
	source_app, created_at`

func scanExpense(row pgx.Row) (*expense.Expense, error) {
	var (
		e         expense.Expense
		id        string
		uid       string
		date      time.Time
		amount    decimal.Decimal
		necessity string
		timeOfDay string
	)
	err := row.Scan(&id, &uid, &date, &e.Description, &amount, &e.Category,
		&necessity, &timeOfDay, &e.PaymentMode, &e.ImpulseTag, &e.SourceApp, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.ID = expense.ExpenseID(id)
	e.UserID = streak.UserID(uid)
	e.Date = streak.DayOf(date)
	e.Amount = amount
	e.Necessity = expense.Necessity(necessity)
	e.TimeOfDay = expense.TimeOfDay(timeOfDay)
	return &e, nil
}

func (s *Store) GetByID(ctx context.Context, id expense.ExpenseID) (*expense.Expense, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, string(id))
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY purchase_date DESC, created_at DESC`,
		userID)
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]*expense.Expense, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	result := []*expense.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) Update(ctx context.Context, e *expense.Expense) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE expenses SET purchase_date = $1, description = $2, amount = $3,
			category = $4, necessity = $5, time_of_day = $6, payment_mode = $7,
			impulse_tag = $8, source_app = $9
		WHERE id = $10`,
		e.Date.Start(), e.Description, e.Amount, e.Category,
		string(e.Necessity), string(e.TimeOfDay), e.PaymentMode,
		e.ImpulseTag, e.SourceApp, string(e.ID))
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return expense.ErrExpenseNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id expense.ExpenseID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return expense.ErrExpenseNotFound
	}
	return nil
}

func (s *Store) CategoryTotals(ctx context.Context, userID string) ([]expense.CategoryTotal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, SUM(amount), COUNT(*)
		FROM expenses WHERE user_id = $1
		GROUP BY category ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate expenses: %w", err)
	}
	defer rows.Close()

	result := []expense.CategoryTotal{}
	for rows.Next() {
		var t expense.CategoryTotal
		if err := rows.Scan(&t.Category, &t.Total, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
