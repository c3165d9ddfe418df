package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"budgetcheck/internal/backend"
	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
	"budgetcheck/internal/finance/memory"
	"budgetcheck/internal/storage"
)

var (
	feb     = core.Month{Year: 2026, Month: time.February}
	fixedAt = time.Date(2026, 2, 20, 9, 30, 15, 500, time.UTC)
)

// countingClient wraps a finance.Client and counts provider calls.
type countingClient struct {
	finance.Client
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingClient) wait(ctx context.Context) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	if c.delay == 0 {
		return nil
	}
	select {
	case <-time.After(c.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *countingClient) FetchBudgets(ctx context.Context, m core.Month) ([]core.BudgetCategory, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.FetchBudgets(ctx, m)
}

func (c *countingClient) FetchCategories(ctx context.Context, m core.Month) ([]core.Category, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.FetchCategories(ctx, m)
}

func (c *countingClient) FetchTransactions(ctx context.Context, q finance.TransactionQuery) ([]core.Transaction, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.FetchTransactions(ctx, q)
}

type fakeFactory struct {
	client  *countingClient
	err     error
	created int
	token   string
	cleaned bool
}

func (f *fakeFactory) CreateClient(_ context.Context, cfg backend.Config) (*backend.Result, error) {
	f.created++
	f.token = cfg.Token
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Result{
		Client:  f.client,
		Cleanup: func() error { f.cleaned = true; return nil },
	}, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, kind string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return p.err
}

func writeSession(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"token":"tok-123"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixtureStore() *memory.Store {
	rows := []memory.BudgetRow{
		{Month: feb, ID: "1", Name: "Dining Out", Group: "Food", Planned: core.Money{Cents: 30000}, Actual: core.Money{Cents: 41250}},
		{Month: feb, ID: "2", Name: "Groceries", Group: "Food", Planned: core.Money{Cents: 60000}, Actual: core.Money{Cents: 62000}},
		{Month: feb, ID: "3", Name: "Gas", Group: "Auto", Planned: core.Money{Cents: 20000}, Actual: core.Money{Cents: 15000}},
	}
	cats := []core.Category{
		{ID: "1", Name: "Dining Out", Group: "Food"},
		{ID: "2", Name: "Groceries", Group: "Food"},
		{ID: "3", Name: "Gas", Group: "Auto"},
		{ID: "9", Name: "Old Stuff", Disabled: true},
	}
	txns := []core.Transaction{
		{ID: "a", Date: core.NewDate(2026, 2, 3), Merchant: "Cafe", Amount: core.Money{Cents: 1250}, CategoryID: "1", Category: "Dining Out"},
		{ID: "b", Date: core.NewDate(2026, 2, 14), Merchant: "Bistro", Amount: core.Money{Cents: 8000}, CategoryID: "1", Category: "Dining Out"},
		{ID: "c", Date: core.NewDate(2026, 2, 10), Merchant: "Market", Amount: core.Money{Cents: 4000}, CategoryID: "2", Category: "Groceries"},
		{ID: "d", Date: core.NewDate(2026, 1, 31), Merchant: "Diner", Amount: core.Money{Cents: 900}, CategoryID: "1", Category: "Dining Out"},
	}
	return memory.New(rows, cats, txns)
}

func newTestService(f backend.Factory, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedAt }), WithRunID("run-1")}, opts...)
	return NewService(f, backend.Config{Type: backend.MemoryBackend}, opts...)
}

func TestService_OverBudget(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	pub := &recordingPublisher{}
	svc := newTestService(f, WithPublisher(pub))

	got, err := svc.OverBudget(context.Background(), Request{
		SessionPath: writeSession(t),
		Month:       feb,
		Threshold:   core.Money{Cents: 5000},
	})
	if err != nil {
		t.Fatalf("OverBudget() error = %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Category != "Dining Out" {
		t.Fatalf("OverBudget() entries = %+v, want only Dining Out", got.Entries)
	}
	if got.TotalOverage.Cents != 11250 {
		t.Errorf("TotalOverage = %d, want 11250", got.TotalOverage.Cents)
	}
	if !got.GeneratedAt.Equal(fixedAt.Truncate(time.Second)) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, fixedAt.Truncate(time.Second))
	}
	if f.token != "tok-123" {
		t.Errorf("backend token = %q, want tok-123", f.token)
	}
	if !f.cleaned {
		t.Error("backend cleanup not called")
	}
	if len(pub.kinds) != 1 || pub.kinds[0] != KindOverBudget {
		t.Errorf("published = %v, want [%s]", pub.kinds, KindOverBudget)
	}
}

func TestService_SessionErrorBeforeProviderCall(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f)
	missing := filepath.Join(t.TempDir(), "absent.json")

	_, err := svc.OverBudget(context.Background(), Request{SessionPath: missing, Month: feb})
	if !core.IsCode(err, core.CodeSessionError) {
		t.Fatalf("OverBudget() error = %v, want SESSION_ERROR", err)
	}
	_, err = svc.Transactions(context.Background(), Request{SessionPath: missing, Month: feb, Category: "Gas"})
	if !core.IsCode(err, core.CodeSessionError) {
		t.Fatalf("Transactions() error = %v, want SESSION_ERROR", err)
	}
	if f.created != 0 || f.client.calls.Load() != 0 {
		t.Errorf("provider touched: created=%d calls=%d", f.created, f.client.calls.Load())
	}
}

func TestService_Transactions(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f)

	got, err := svc.Transactions(context.Background(), Request{
		SessionPath: writeSession(t),
		Month:       feb,
		Category:    "dining out",
	})
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if got.Category != "Dining Out" {
		t.Errorf("Category = %q, want canonical Dining Out", got.Category)
	}
	if got.Count != 2 || got.Transactions[0].Merchant != "Bistro" || got.Transactions[1].Merchant != "Cafe" {
		t.Errorf("Transactions = %+v, want Bistro then Cafe", got.Transactions)
	}
	if got.Total.Cents != 9250 {
		t.Errorf("Total = %d, want 9250", got.Total.Cents)
	}
}

func TestService_TransactionsCategoryNotFound(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f)

	_, err := svc.Transactions(context.Background(), Request{
		SessionPath: writeSession(t),
		Month:       feb,
		Category:    "Travel",
	})
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Code != core.CodeCategoryNotFound {
		t.Fatalf("Transactions() error = %v, want CATEGORY_NOT_FOUND", err)
	}
	want := []string{"Dining Out", "Gas", "Groceries"}
	if strings.Join(cerr.Available, ",") != strings.Join(want, ",") {
		t.Errorf("Available = %v, want %v (disabled excluded)", cerr.Available, want)
	}
	// Categories only; no transaction fetch after a miss.
	if n := f.client.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestService_TransactionsEmptyCategory(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f)

	_, err := svc.Transactions(context.Background(), Request{SessionPath: "irrelevant", Month: feb, Category: "  "})
	if !core.IsCode(err, core.CodeInvalidArgs) {
		t.Fatalf("Transactions() error = %v, want INVALID_ARGS", err)
	}
	if f.created != 0 {
		t.Error("backend created for invalid arguments")
	}
}

func TestService_NegativeThreshold(t *testing.T) {
	svc := newTestService(&fakeFactory{})
	_, err := svc.OverBudget(context.Background(), Request{Month: feb, Threshold: core.Money{Cents: -1}})
	if !core.IsCode(err, core.CodeInvalidArgs) {
		t.Fatalf("OverBudget() error = %v, want INVALID_ARGS", err)
	}
}

func TestService_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		factory  *fakeFactory
		timeout  time.Duration
		wantCode core.Code
		wantMsg  string
	}{
		{
			name:     "timeout",
			factory:  &fakeFactory{client: &countingClient{Client: fixtureStore(), delay: time.Second}},
			timeout:  20 * time.Millisecond,
			wantCode: core.CodeAPIError,
			wantMsg:  "timed out",
		},
		{
			name:     "raw provider error",
			factory:  &fakeFactory{client: &countingClient{Client: fixtureStore(), err: errors.New("connection reset")}},
			wantCode: core.CodeAPIError,
			wantMsg:  "connection reset",
		},
		{
			name: "classified provider error passes through",
			factory: &fakeFactory{client: &countingClient{Client: fixtureStore(),
				err: core.NewError(core.CodeSessionExpired, "Session expired.", nil)}},
			wantCode: core.CodeSessionExpired,
			wantMsg:  "Session expired.",
		},
		{
			name:     "backend construction",
			factory:  &fakeFactory{err: core.NewError(core.CodeDependencyMissing, "no db", nil)},
			wantCode: core.CodeDependencyMissing,
			wantMsg:  "no db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{}
			if tt.timeout > 0 {
				opts = append(opts, WithTimeout(tt.timeout))
			}
			svc := newTestService(tt.factory, opts...)
			_, err := svc.OverBudget(context.Background(), Request{SessionPath: writeSession(t), Month: feb})
			if got := core.CodeOf(err); got != tt.wantCode {
				t.Fatalf("CodeOf() = %s, want %s (err=%v)", got, tt.wantCode, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestService_PublishFailureDoesNotFail(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f, WithPublisher(&recordingPublisher{err: errors.New("broker down")}))
	if _, err := svc.OverBudget(context.Background(), Request{SessionPath: writeSession(t), Month: feb}); err != nil {
		t.Fatalf("OverBudget() error = %v, want nil despite publish failure", err)
	}
}

// silentPublisher never answers; it returns only when ctx ends.
type silentPublisher struct {
	err chan error
}

func (p *silentPublisher) Publish(ctx context.Context, _ string, _ any) error {
	<-ctx.Done()
	p.err <- ctx.Err()
	return ctx.Err()
}

func TestService_SilentPublisherIsBounded(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	pub := &silentPublisher{err: make(chan error, 1)}
	svc := newTestService(f, WithPublisher(pub), WithPublishTimeout(50*time.Millisecond))

	start := time.Now()
	rep, err := svc.OverBudget(context.Background(), Request{SessionPath: writeSession(t), Month: feb})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("OverBudget() error = %v, want nil", err)
	}
	if len(rep.Entries) == 0 {
		t.Error("OverBudget() returned no entries")
	}
	if elapsed > 2*time.Second {
		t.Errorf("OverBudget() took %v waiting on the publisher", elapsed)
	}
	if got := <-pub.err; !errors.Is(got, context.DeadlineExceeded) {
		t.Errorf("publisher context error = %v, want deadline exceeded", got)
	}
}

func TestService_Snapshot(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f)

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	defer repo.Close()

	got, err := svc.Snapshot(context.Background(), Request{SessionPath: writeSession(t), Month: feb}, repo)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Budgets != 3 || got.Categories != 4 || got.Transactions != 3 {
		t.Errorf("Snapshot() = %+v, want 3 budgets, 4 categories, 3 transactions", got)
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", got.RunID)
	}
	if n := f.client.calls.Load(); n != 3 {
		t.Errorf("provider calls = %d, want 3", n)
	}

	// The stored snapshot serves the same over-budget answer offline.
	offline := newTestService(&fakeFactory{client: &countingClient{Client: repo}})
	rep, err := offline.OverBudget(context.Background(), Request{SessionPath: writeSession(t), Month: feb, Threshold: core.Money{Cents: 5000}})
	if err != nil {
		t.Fatalf("offline OverBudget() error = %v", err)
	}
	if len(rep.Entries) != 1 || rep.Entries[0].Category != "Dining Out" {
		t.Errorf("offline entries = %+v, want Dining Out", rep.Entries)
	}
}

func TestService_SnapshotPagesPastLimit(t *testing.T) {
	f := &fakeFactory{client: &countingClient{Client: fixtureStore()}}
	svc := newTestService(f)

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	defer repo.Close()

	got, err := svc.Snapshot(context.Background(), Request{SessionPath: writeSession(t), Month: feb, Limit: 2}, repo)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Transactions != 3 {
		t.Errorf("Snapshot() transactions = %d, want all 3 February transactions", got.Transactions)
	}
	// budgets + categories + two transaction pages
	if n := f.client.calls.Load(); n != 4 {
		t.Errorf("provider calls = %d, want 4", n)
	}

	offline := newTestService(&fakeFactory{client: &countingClient{Client: repo}})
	res, err := offline.Transactions(context.Background(), Request{SessionPath: writeSession(t), Month: feb, Category: "dining out"})
	if err != nil {
		t.Fatalf("offline Transactions() error = %v", err)
	}
	if len(res.Transactions) != 2 {
		t.Errorf("offline transactions = %+v, want both Dining Out entries", res.Transactions)
	}
}

func TestService_CheckSession(t *testing.T) {
	svc := newTestService(&fakeFactory{})

	dir := t.TempDir()
	expired := filepath.Join(dir, "expired.json")
	if err := os.WriteFile(expired, []byte(`{"token":"abcdefgh1234","expires_at":"2026-01-01T00:00:00Z"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := svc.CheckSession(expired)
	if err != nil {
		t.Fatalf("CheckSession() error = %v", err)
	}
	if !st.Expired {
		t.Error("Expired = false, want true for a past hint")
	}
	if strings.Contains(st.Token, "abcdefgh1234") {
		t.Errorf("Token = %q, want redacted", st.Token)
	}

	if _, err := svc.CheckSession(filepath.Join(dir, "missing.json")); !core.IsCode(err, core.CodeSessionError) {
		t.Errorf("CheckSession(missing) error = %v, want SESSION_ERROR", err)
	}
}
