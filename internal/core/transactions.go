package core

import (
	"sort"
	"strings"
	"time"
)

// CategoryTransactionResult is the drill-down for one category and month.
type CategoryTransactionResult struct {
	Category     string        `json:"category"`
	Month        Month         `json:"month"`
	Transactions []Transaction `json:"transactions"`
	Total        Money         `json:"total"`
	Count        int           `json:"count"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// AvailableCategories returns the distinct names of universe, original
// casing preserved, sorted case-insensitively (ties broken bytewise).
// The result is never nil.
func AvailableCategories(universe []string) []string {
	seen := make(map[string]struct{}, len(universe))
	out := make([]string, 0, len(universe))
	for _, name := range universe {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}

// ResolveCategory finds the canonical name in universe matching requested
// case-insensitively. When several names fold to the same value the first
// in universe order wins. A miss returns a CATEGORY_NOT_FOUND error carrying
// every available name.
func ResolveCategory(universe []string, requested string) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return "", Errorf(CodeInvalidArgs, "%w: a category name is required", ErrEmptyCategory)
	}
	for _, name := range universe {
		if strings.EqualFold(name, requested) {
			return name, nil
		}
	}
	return "", &Error{
		Code:      CodeCategoryNotFound,
		Message:   "Category '" + requested + "' not found.",
		Available: AvailableCategories(universe),
	}
}

// FilterCategoryTransactions resolves requested against universe and
// returns the transactions of that category dated within month, newest
// first. Transactions sharing a date keep their input order. A resolved
// category with no transactions is a success with an empty list.
func FilterCategoryTransactions(txns []Transaction, universe []string, requested string, month Month, now time.Time) (CategoryTransactionResult, error) {
	canonical, err := ResolveCategory(universe, requested)
	if err != nil {
		return CategoryTransactionResult{}, err
	}

	res := CategoryTransactionResult{
		Category:     canonical,
		Month:        month,
		Transactions: []Transaction{},
		GeneratedAt:  now.Truncate(time.Second),
	}
	for _, t := range txns {
		if !strings.EqualFold(t.Category, canonical) || !month.Contains(t.Date) {
			continue
		}
		res.Transactions = append(res.Transactions, t)
	}

	sort.SliceStable(res.Transactions, func(i, j int) bool {
		return res.Transactions[i].Date.After(res.Transactions[j].Date.Time)
	})

	for _, t := range res.Transactions {
		res.Total = res.Total.Add(t.Amount)
	}
	res.Count = len(res.Transactions)
	return res, nil
}
