// Package finance declares the provider-facing ports consumed by reports.
package finance

import (
	"context"
	"fmt"

	"budgetcheck/internal/core"
)

// DefaultLimit caps the number of transactions requested per lookup.
const DefaultLimit = 100

// maxPages bounds FetchAllTransactions against a provider that ignores
// the offset.
const maxPages = 1000

// TransactionQuery selects transactions for one month. An empty
// CategoryIDs means every category. Offset skips that many matches.
type TransactionQuery struct {
	Month       core.Month
	CategoryIDs []string
	Limit       int
	Offset      int
}

// Ports for outbound adapters.
type (
	BudgetReader interface {
		// FetchBudgets returns planned and actual amounts per category for month.
		FetchBudgets(ctx context.Context, month core.Month) ([]core.BudgetCategory, error)
	}

	// CategoryReader returns the category universe, disabled entries included.
	CategoryReader interface {
		FetchCategories(ctx context.Context, month core.Month) ([]core.Category, error)
	}

	TransactionReader interface {
		FetchTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, error)
	}

	// Client is everything a report needs from a provider.
	Client interface {
		BudgetReader
		CategoryReader
		TransactionReader
	}
)

// CategoryIDs returns the IDs of enabled categories whose name is name.
func CategoryIDs(cats []core.Category, name string) []string {
	var ids []string
	for _, c := range cats {
		if c.Disabled || c.Name != name || c.ID == "" {
			continue
		}
		ids = append(ids, c.ID)
	}
	return ids
}

// MatchesQuery reports whether t belongs to q's month and categories.
func MatchesQuery(t core.Transaction, categoryID string, q TransactionQuery) bool {
	if !q.Month.IsZero() && !q.Month.Contains(t.Date) {
		return false
	}
	if len(q.CategoryIDs) == 0 {
		return true
	}
	for _, id := range q.CategoryIDs {
		if id == categoryID {
			return true
		}
	}
	return false
}

// FetchAllTransactions pages through r using q.Limit as the page size until
// a short page shows the result set is exhausted.
func FetchAllTransactions(ctx context.Context, r TransactionReader, q TransactionQuery) ([]core.Transaction, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	var out []core.Transaction
	for page := 0; page < maxPages; page++ {
		batch, err := r.FetchTransactions(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < q.Limit {
			return out, nil
		}
		q.Offset += len(batch)
	}
	return nil, fmt.Errorf("transaction paging did not finish after %d pages of %d", maxPages, q.Limit)
}
