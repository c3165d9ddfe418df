package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned when no snapshot exists for the requested month.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is the provider data captured for one month.
type Snapshot struct {
	Month        core.Month
	TakenAt      time.Time
	RunID        string
	Budgets      []core.BudgetCategory
	Categories   []core.Category
	Transactions []core.Transaction
}

// SnapshotInfo summarizes a stored snapshot.
type SnapshotInfo struct {
	ID      int64
	Month   core.Month
	TakenAt time.Time
	RunID   string
}

type SQLiteRepository struct {
	db *sql.DB
}

var _ finance.Client = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteRepository{db: db}, nil
}

// OpenExisting opens a snapshot database that must already exist.
func OpenExisting(dbPath string) (*SQLiteRepository, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}
	return NewSQLiteRepository(dbPath)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot stores s atomically and returns its ID. Row order is kept so
// reads reproduce provider order.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s Snapshot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (month, taken_at, run_id) VALUES (?, ?, ?)`,
		s.Month.String(), s.TakenAt.UTC().Format(time.RFC3339), s.RunID)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}

	for i, b := range s.Budgets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_budgets (snapshot_id, position, category_id, name, group_name, planned_cents, actual_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, b.ID, b.Name, b.Group, b.Planned.Cents, b.Actual.Cents); err != nil {
			return 0, fmt.Errorf("insert budget row %d: %w", i, err)
		}
	}
	for i, c := range s.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_categories (snapshot_id, position, category_id, name, group_name, disabled)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, c.ID, c.Name, c.Group, boolToInt(c.Disabled)); err != nil {
			return 0, fmt.Errorf("insert category row %d: %w", i, err)
		}
	}
	for i, t := range s.Transactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_transactions (snapshot_id, position, transaction_id, date, merchant, amount_cents,
			                                    account, notes, pending, category_id, category)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, t.ID, t.Date.String(), t.Merchant, t.Amount.Cents,
			t.Account, t.Notes, boolToInt(t.Pending), t.CategoryID, t.Category); err != nil {
			return 0, fmt.Errorf("insert transaction row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot saved to SQLite",
		"id", id,
		"month", s.Month.String(),
		"budgets", len(s.Budgets),
		"categories", len(s.Categories),
		"transactions", len(s.Transactions))
	return id, nil
}

// LatestSnapshot returns the most recent snapshot for month.
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, month core.Month) (SnapshotInfo, error) {
	var (
		info    SnapshotInfo
		m       string
		takenAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, month, taken_at, run_id FROM snapshots WHERE month = ? ORDER BY id DESC LIMIT 1`,
		month.String()).Scan(&info.ID, &m, &takenAt, &info.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotInfo{}, fmt.Errorf("%w for %s", ErrNoSnapshot, month)
	}
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("get latest snapshot: %w", err)
	}
	return scanInfo(info, m, takenAt)
}

// ListSnapshots returns every stored snapshot, newest first.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, month, taken_at, run_id FROM snapshots ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info    SnapshotInfo
			m       string
			takenAt string
		)
		if err := rows.Scan(&info.ID, &m, &takenAt, &info.RunID); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		parsed, err := scanInfo(info, m, takenAt)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, rows.Err()
}

// FetchBudgets implements finance.BudgetReader from the latest snapshot.
func (r *SQLiteRepository) FetchBudgets(ctx context.Context, month core.Month) ([]core.BudgetCategory, error) {
	info, err := r.LatestSnapshot(ctx, month)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT category_id, name, group_name, planned_cents, actual_cents
		 FROM snapshot_budgets WHERE snapshot_id = ? ORDER BY position`, info.ID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot budgets: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetCategory
	for rows.Next() {
		var b core.BudgetCategory
		if err := rows.Scan(&b.ID, &b.Name, &b.Group, &b.Planned.Cents, &b.Actual.Cents); err != nil {
			return nil, fmt.Errorf("scan budget row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FetchCategories implements finance.CategoryReader from the latest snapshot.
func (r *SQLiteRepository) FetchCategories(ctx context.Context, month core.Month) ([]core.Category, error) {
	info, err := r.LatestSnapshot(ctx, month)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT category_id, name, group_name, disabled
		 FROM snapshot_categories WHERE snapshot_id = ? ORDER BY position`, info.ID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c        core.Category
			disabled int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Group, &disabled); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		c.Disabled = disabled != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// FetchTransactions implements finance.TransactionReader from the latest
// snapshot of q.Month.
func (r *SQLiteRepository) FetchTransactions(ctx context.Context, q finance.TransactionQuery) ([]core.Transaction, error) {
	info, err := r.LatestSnapshot(ctx, q.Month)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, date, merchant, amount_cents, account, notes, pending, category_id, category
		 FROM snapshot_transactions WHERE snapshot_id = ? ORDER BY position`, info.ID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	skip := q.Offset
	for rows.Next() {
		var (
			t       core.Transaction
			date    string
			pending int64
		)
		if err := rows.Scan(&t.ID, &date, &t.Merchant, &t.Amount.Cents, &t.Account, &t.Notes,
			&pending, &t.CategoryID, &t.Category); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("snapshot transaction %s: %w", t.ID, err)
		}
		t.Pending = pending != 0
		if !finance.MatchesQuery(t, t.CategoryID, q) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, t)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, rows.Err()
}

func scanInfo(info SnapshotInfo, month, takenAt string) (SnapshotInfo, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("snapshot %d: %w", info.ID, err)
	}
	t, err := time.Parse(time.RFC3339, takenAt)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("snapshot %d taken_at: %w", info.ID, err)
	}
	info.Month = m
	info.TakenAt = t
	return info, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
