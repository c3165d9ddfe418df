package core

import (
	"sort"
	"strings"
	"time"
)

// DefaultThreshold is the minimum overage reported when none is configured.
var DefaultThreshold = Money{Cents: 5000}

// OverBudgetEntry is a reportable category row.
type OverBudgetEntry struct {
	Category string `json:"category"`
	Group    string `json:"group"`
	Planned  Money  `json:"planned"`
	Actual   Money  `json:"actual"`
	Overage  Money  `json:"overage"`
}

// OverBudgetReport lists categories whose overage exceeds Threshold,
// worst first.
type OverBudgetReport struct {
	Month        Month             `json:"month"`
	Threshold    Money             `json:"threshold"`
	Entries      []OverBudgetEntry `json:"over_budget"`
	TotalOverage Money             `json:"total_overage"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// ValidateThreshold rejects negative thresholds.
func ValidateThreshold(threshold Money) error {
	if threshold.Cents < 0 {
		return Errorf(CodeInvalidArgs, "%w %s: must be a non-negative amount", ErrInvalidThreshold, threshold)
	}
	return nil
}

// AnalyzeOverBudget keeps the categories whose actual spending exceeds
// planned spending by strictly more than threshold.
//
// Rows where both planned and actual are <= 0 are income or transfer rows
// and are skipped. Entries are ordered by overage descending, then by
// category name (case-insensitive), then by input order. An empty result is
// not an error.
func AnalyzeOverBudget(categories []BudgetCategory, threshold Money, month Month, now time.Time) (OverBudgetReport, error) {
	report := OverBudgetReport{
		Month:       month,
		Threshold:   threshold,
		Entries:     []OverBudgetEntry{},
		GeneratedAt: now.Truncate(time.Second),
	}
	if err := ValidateThreshold(threshold); err != nil {
		return report, err
	}

	for _, c := range categories {
		if c.Planned.Cents <= 0 && c.Actual.Cents <= 0 {
			continue
		}
		overage := c.Overage()
		if overage.Cents <= threshold.Cents {
			continue
		}
		report.Entries = append(report.Entries, OverBudgetEntry{
			Category: c.Name,
			Group:    c.Group,
			Planned:  c.Planned,
			Actual:   c.Actual,
			Overage:  overage,
		})
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.Overage.Cents != b.Overage.Cents {
			return a.Overage.Cents > b.Overage.Cents
		}
		return strings.ToLower(a.Category) < strings.ToLower(b.Category)
	})

	for _, e := range report.Entries {
		report.TotalOverage = report.TotalOverage.Add(e.Overage)
	}
	return report, nil
}
