package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
)

var feb = core.Month{Year: 2026, Month: time.February}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleSnapshot(takenAt time.Time) Snapshot {
	return Snapshot{
		Month:   feb,
		TakenAt: takenAt,
		RunID:   "run-1",
		Budgets: []core.BudgetCategory{
			{ID: "c1", Name: "Dining Out", Group: "Food & Drink", Planned: core.Money{Cents: 20000}, Actual: core.Money{Cents: 31245}},
			{ID: "c2", Name: "Rent", Group: "Housing", Planned: core.Money{Cents: 150000}, Actual: core.Money{Cents: 150000}},
		},
		Categories: []core.Category{
			{ID: "c1", Name: "Dining Out", Group: "Food & Drink"},
			{ID: "c2", Name: "Rent", Group: "Housing"},
			{ID: "c3", Name: "Old", Disabled: true},
		},
		Transactions: []core.Transaction{
			{ID: "t1", Date: core.NewDate(2026, 2, 15), Merchant: "Bistro", Amount: core.Money{Cents: 4567}, Account: "Checking", CategoryID: "c1", Category: "Dining Out"},
			{ID: "t2", Date: core.NewDate(2026, 2, 10), Merchant: "Cafe", Amount: core.Money{Cents: 1200}, Pending: true, Notes: "lunch", CategoryID: "c1", Category: "Dining Out"},
			{ID: "t3", Date: core.NewDate(2026, 2, 1), Merchant: "Landlord", Amount: core.Money{Cents: 150000}, CategoryID: "c2", Category: "Rent"},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	snap := sampleSnapshot(time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC))

	id, err := repo.SaveSnapshot(ctx, snap)
	if err != nil || id == 0 {
		t.Fatalf("SaveSnapshot = %d, %v", id, err)
	}

	budgets, err := repo.FetchBudgets(ctx, feb)
	if err != nil {
		t.Fatalf("FetchBudgets: %v", err)
	}
	if !reflect.DeepEqual(budgets, snap.Budgets) {
		t.Fatalf("budgets = %+v", budgets)
	}

	cats, err := repo.FetchCategories(ctx, feb)
	if err != nil {
		t.Fatalf("FetchCategories: %v", err)
	}
	if !reflect.DeepEqual(cats, snap.Categories) {
		t.Fatalf("categories = %+v", cats)
	}

	txns, err := repo.FetchTransactions(ctx, finance.TransactionQuery{Month: feb, CategoryIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if !reflect.DeepEqual(txns, snap.Transactions[:2]) {
		t.Fatalf("transactions = %+v", txns)
	}

	limited, _ := repo.FetchTransactions(ctx, finance.TransactionQuery{Month: feb, Limit: 1})
	if len(limited) != 1 || limited[0].ID != "t1" {
		t.Fatalf("limit not honoured: %+v", limited)
	}

	page, _ := repo.FetchTransactions(ctx, finance.TransactionQuery{Month: feb, Limit: 2, Offset: 2})
	if len(page) != 1 || page[0].ID != "t3" {
		t.Fatalf("offset not honoured: %+v", page)
	}
}

func TestLatestSnapshotWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := sampleSnapshot(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	if _, err := repo.SaveSnapshot(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := sampleSnapshot(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))
	second.RunID = "run-2"
	second.Budgets = second.Budgets[:1]
	if _, err := repo.SaveSnapshot(ctx, second); err != nil {
		t.Fatal(err)
	}

	info, err := repo.LatestSnapshot(ctx, feb)
	if err != nil || info.RunID != "run-2" || info.Month != feb {
		t.Fatalf("LatestSnapshot = %+v, %v", info, err)
	}
	budgets, _ := repo.FetchBudgets(ctx, feb)
	if len(budgets) != 1 {
		t.Fatalf("expected latest snapshot budgets, got %+v", budgets)
	}

	all, err := repo.ListSnapshots(ctx)
	if err != nil || len(all) != 2 || all[0].RunID != "run-2" {
		t.Fatalf("ListSnapshots = %+v, %v", all, err)
	}
}

func TestNoSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.FetchBudgets(context.Background(), feb)
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil || v1 != v2 || v1 == 0 {
		t.Fatalf("second run: v1=%d v2=%d err=%v", v1, v2, err)
	}
}

func TestOpenExistingRequiresFile(t *testing.T) {
	if _, err := OpenExisting(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Fatalf("expected error for missing database")
	}
}
