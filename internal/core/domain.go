package core

import (
	"errors"
	"time"
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// BudgetCategory is one category's planned and actual spending for a month.
	BudgetCategory struct {
		ID      string
		Name    string // canonical, case-sensitive provider name
		Group   string
		Planned Money
		Actual  Money
	}

	// Category is an entry of the provider's category universe.
	Category struct {
		ID       string
		Name     string
		Group    string
		Disabled bool
	}

	// Transaction is a single provider transaction. Amount is positive for
	// expenses and negative for refunds or credits.
	Transaction struct {
		ID       string `json:"-"`
		Date     Date   `json:"date"`
		Merchant string `json:"merchant"`
		Amount   Money  `json:"amount"`
		Account  string `json:"account"`
		Notes    string `json:"notes"`
		Pending  bool   `json:"pending"`

		CategoryID string `json:"-"`
		Category   string `json:"-"`
	}
)

var (
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrEmptyCategory    = errors.New("empty category")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Overage is actual minus planned spending; negative when under budget.
func (c BudgetCategory) Overage() Money {
	return c.Actual.Sub(c.Planned)
}

// CategoryNames returns the names of enabled categories, in input order.
func CategoryNames(cats []Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		if c.Disabled {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}
