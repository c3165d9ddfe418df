package monarch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
)

var feb = core.Month{Year: 2026, Month: time.February}

type recorded struct {
	op        string
	auth      string
	variables map[string]any
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var req graphqlRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		rec.op = req.OperationName
		rec.auth = r.Header.Get("Authorization")
		rec.variables = req.Variables
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts, rec
}

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(url, "tok-123")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

const budgetsBody = `{"data":{
  "budgetData":{"monthlyAmountsByCategory":[
    {"category":{"id":"c1"},"monthlyAmounts":[
      {"month":"2026-01-01","plannedCashFlowAmount":200,"actualAmount":150},
      {"month":"2026-02-01","plannedCashFlowAmount":200,"actualAmount":312.45}]},
    {"category":{"id":"c2"},"monthlyAmounts":[
      {"month":"2026-02-01","plannedCashFlowAmount":1500,"actualAmount":1500}]},
    {"category":{"id":"c9"},"monthlyAmounts":[
      {"month":"2026-02-01","plannedCashFlowAmount":null,"actualAmount":80}]}
  ]},
  "categoryGroups":[
    {"id":"g1","name":"Food & Drink","categories":[{"id":"c1","name":"Dining Out"}]},
    {"id":"g2","name":"Housing","categories":[{"id":"c2","name":"Rent"}]}
  ]}}`

func TestFetchBudgets(t *testing.T) {
	ts, rec := newServer(t, http.StatusOK, budgetsBody)
	got, err := newClient(t, ts.URL).FetchBudgets(context.Background(), feb)
	if err != nil {
		t.Fatalf("FetchBudgets: %v", err)
	}
	if rec.op != "GetJointPlannedCashflow" || rec.auth != "Token tok-123" {
		t.Fatalf("unexpected request: %+v", rec)
	}
	if rec.variables["startDate"] != "2026-02-01" || rec.variables["endDate"] != "2026-02-28" {
		t.Fatalf("unexpected variables: %v", rec.variables)
	}
	want := []core.BudgetCategory{
		{ID: "c1", Name: "Dining Out", Group: "Food & Drink", Planned: core.Money{Cents: 20000}, Actual: core.Money{Cents: 31245}},
		{ID: "c2", Name: "Rent", Group: "Housing", Planned: core.Money{Cents: 150000}, Actual: core.Money{Cents: 150000}},
		{ID: "c9", Name: "ID:c9", Group: "Unknown", Planned: core.Money{}, Actual: core.Money{Cents: 8000}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchBudgets = %+v\nwant %+v", got, want)
	}
}

func TestFetchBudgetsDefaultsToCurrentMonth(t *testing.T) {
	ts, rec := newServer(t, http.StatusOK, budgetsBody)
	c, err := New(ts.URL, "tok", WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	}, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FetchBudgets(context.Background(), core.Month{}); err != nil {
		t.Fatalf("FetchBudgets: %v", err)
	}
	if rec.variables["startDate"] != "2026-03-01" {
		t.Fatalf("expected current month, got %v", rec.variables)
	}
}

func TestFetchCategories(t *testing.T) {
	ts, _ := newServer(t, http.StatusOK, `{"data":{"categories":[
		{"id":"c1","name":"Dining Out","isDisabled":false,"group":{"id":"g1","name":"Food & Drink","type":"expense"}},
		{"id":"c3","name":"Old","isDisabled":true,"group":null}]}}`)
	got, err := newClient(t, ts.URL).FetchCategories(context.Background(), feb)
	if err != nil {
		t.Fatalf("FetchCategories: %v", err)
	}
	want := []core.Category{
		{ID: "c1", Name: "Dining Out", Group: "Food & Drink"},
		{ID: "c3", Name: "Old", Disabled: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchCategories = %+v", got)
	}
}

func TestFetchTransactions(t *testing.T) {
	ts, rec := newServer(t, http.StatusOK, `{"data":{"allTransactions":{"totalCount":3,"results":[
		{"id":"t1","amount":-45.67,"pending":false,"date":"2026-02-15","notes":null,"plaidName":"SQ *BISTRO",
		 "category":{"id":"c1","name":"Dining Out"},"merchant":{"name":"Bistro"},"account":{"displayName":"Checking"}},
		{"id":"t2","amount":-12,"pending":true,"date":"2026-02-10","notes":"lunch","plaidName":"CAFE 42",
		 "category":{"id":"c1","name":"Dining Out"},"merchant":null,"account":null},
		{"id":"t3","amount":5.5,"pending":false,"date":"2026-02-11","notes":"","plaidName":null,
		 "category":{"id":"c1","name":"Dining Out"},"merchant":{"name":""},"account":{"displayName":"Card"}}]}}}`)

	got, err := newClient(t, ts.URL).FetchTransactions(context.Background(),
		finance.TransactionQuery{Month: feb, CategoryIDs: []string{"c1"}, Limit: 25})
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if rec.op != "GetTransactionsList" {
		t.Fatalf("op = %s", rec.op)
	}
	filters, _ := rec.variables["filters"].(map[string]any)
	if filters["startDate"] != "2026-02-01" || filters["endDate"] != "2026-02-28" {
		t.Fatalf("unexpected filters: %v", filters)
	}
	if cats, _ := filters["categories"].([]any); len(cats) != 1 || cats[0] != "c1" {
		t.Fatalf("unexpected category filter: %v", filters["categories"])
	}
	if rec.variables["limit"] != float64(25) || rec.variables["offset"] != float64(0) {
		t.Fatalf("unexpected paging: limit=%v offset=%v", rec.variables["limit"], rec.variables["offset"])
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(got))
	}
	if got[0].Merchant != "Bistro" || got[0].Amount.Cents != 4567 || got[0].Account != "Checking" || got[0].Notes != "" {
		t.Fatalf("unexpected first transaction: %+v", got[0])
	}
	if got[1].Merchant != "CAFE 42" || !got[1].Pending || got[1].Notes != "lunch" || got[1].Amount.Cents != 1200 {
		t.Fatalf("unexpected second transaction: %+v", got[1])
	}
	if got[2].Amount.Cents != -550 || got[2].Merchant != "" {
		t.Fatalf("refund should be negative: %+v", got[2])
	}
	if got[0].Category != "Dining Out" || got[0].CategoryID != "c1" {
		t.Fatalf("category not carried: %+v", got[0])
	}
}

func TestFetchTransactionsOffset(t *testing.T) {
	ts, rec := newServer(t, http.StatusOK, `{"data":{"allTransactions":{"totalCount":3,"results":[]}}}`)

	got, err := newClient(t, ts.URL).FetchTransactions(context.Background(),
		finance.TransactionQuery{Month: feb, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no transactions, got %+v", got)
	}
	if rec.variables["offset"] != float64(2) {
		t.Fatalf("offset = %v, want 2", rec.variables["offset"])
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   core.Code
	}{
		{"http 401", http.StatusUnauthorized, `{"detail":"Invalid token."}`, core.CodeSessionExpired},
		{"http 403", http.StatusForbidden, ``, core.CodeSessionExpired},
		{"rate limit", http.StatusTooManyRequests, ``, core.CodeAPIError},
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, core.CodeAPIError},
		{"graphql auth message", http.StatusOK, `{"errors":[{"message":"You are not authenticated."}]}`, core.CodeSessionExpired},
		{"graphql auth code", http.StatusOK, `{"errors":[{"message":"nope","extensions":{"code":"UNAUTHENTICATED"}}]}`, core.CodeSessionExpired},
		{"graphql other", http.StatusOK, `{"errors":[{"message":"Cannot query field \"foo\""}]}`, core.CodeAPIError},
		{"not json", http.StatusOK, `hello`, core.CodeAPIError},
		{"null data", http.StatusOK, `{"data":null}`, core.CodeAPIError},
		{"schema change", http.StatusOK, `{"data":{"categories":"oops"}}`, core.CodeAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newServer(t, tt.status, tt.body)
			_, err := newClient(t, ts.URL).FetchCategories(context.Background(), feb)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := core.CodeOf(err); got != tt.code {
				t.Fatalf("code = %s, want %s (err=%v)", got, tt.code, err)
			}
		})
	}
}

func TestBadTransactionDate(t *testing.T) {
	ts, _ := newServer(t, http.StatusOK, `{"data":{"allTransactions":{"totalCount":1,"results":[{"id":"t1","amount":-1,"date":"yesterday"}]}}}`)
	_, err := newClient(t, ts.URL).FetchTransactions(context.Background(), finance.TransactionQuery{Month: feb})
	if !core.IsCode(err, core.CodeAPIError) {
		t.Fatalf("expected API_ERROR, got %v", err)
	}
}

func TestDeadlineIsNotClassified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(t, ts.URL).FetchCategories(ctx, feb)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("ftp://example.com", "tok"); err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Fatalf("expected scheme error, got %v", err)
	}
	if _, err := New("", " "); err == nil {
		t.Fatalf("expected token error")
	}
	c, err := New("", "tok")
	if err != nil || c.baseURL != DefaultBaseURL {
		t.Fatalf("expected default base URL, got %v %v", c, err)
	}
}
