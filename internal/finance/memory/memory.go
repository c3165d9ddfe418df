// Package memory serves provider data from in-process fixtures.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
)

// Fixture file names inside a fixtures directory.
const (
	BudgetsFile      = "budgets.json"
	CategoriesFile   = "categories.json"
	TransactionsFile = "transactions.json"
)

// BudgetRow is a budget category for a specific month.
type BudgetRow struct {
	Month   core.Month `json:"month"`
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Group   string     `json:"group"`
	Planned core.Money `json:"planned"`
	Actual  core.Money `json:"actual"`
}

type categoryRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Group    string `json:"group"`
	Disabled bool   `json:"disabled"`
}

type transactionRow struct {
	ID         string     `json:"id"`
	Date       core.Date  `json:"date"`
	Merchant   string     `json:"merchant"`
	Amount     core.Money `json:"amount"`
	Account    string     `json:"account"`
	Notes      string     `json:"notes"`
	Pending    bool       `json:"pending"`
	CategoryID string     `json:"category_id"`
	Category   string     `json:"category"`
}

type Store struct {
	mu    sync.Mutex
	rows  []BudgetRow
	cats  []core.Category
	items []core.Transaction
}

var _ finance.Client = (*Store)(nil)

func New(rows []BudgetRow, cats []core.Category, txns []core.Transaction) *Store {
	return &Store{
		rows:  append([]BudgetRow(nil), rows...),
		cats:  append([]core.Category(nil), cats...),
		items: append([]core.Transaction(nil), txns...),
	}
}

// NewFromFiles loads fixtures from dir. A missing file yields an empty
// collection; a present but unreadable one is an error.
func NewFromFiles(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("fixtures directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixtures path %s is not a directory", dir)
	}

	var (
		rows []BudgetRow
		cats []categoryRow
		txns []transactionRow
	)
	if err := readJSON(filepath.Join(dir, BudgetsFile), &rows); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, CategoriesFile), &cats); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, TransactionsFile), &txns); err != nil {
		return nil, err
	}

	s := &Store{rows: rows}
	for _, c := range cats {
		s.cats = append(s.cats, core.Category{ID: c.ID, Name: c.Name, Group: c.Group, Disabled: c.Disabled})
	}
	for _, t := range txns {
		s.items = append(s.items, core.Transaction{
			ID:         t.ID,
			Date:       t.Date,
			Merchant:   t.Merchant,
			Amount:     t.Amount,
			Account:    t.Account,
			Notes:      t.Notes,
			Pending:    t.Pending,
			CategoryID: t.CategoryID,
			Category:   t.Category,
		})
	}
	return s, nil
}

// FetchBudgets implements finance.BudgetReader
func (s *Store) FetchBudgets(ctx context.Context, month core.Month) ([]core.BudgetCategory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BudgetCategory
	for _, r := range s.rows {
		if r.Month != month {
			continue
		}
		out = append(out, core.BudgetCategory{ID: r.ID, Name: r.Name, Group: r.Group, Planned: r.Planned, Actual: r.Actual})
	}
	return out, nil
}

// FetchCategories implements finance.CategoryReader
func (s *Store) FetchCategories(ctx context.Context, _ core.Month) ([]core.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

// FetchTransactions implements finance.TransactionReader
func (s *Store) FetchTransactions(ctx context.Context, q finance.TransactionQuery) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	skip := q.Offset
	for _, t := range s.items {
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
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
