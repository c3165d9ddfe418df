package monarch

import (
	"fmt"
	"strings"

	"budgetcheck/internal/core"
)

type budgetsResponse struct {
	BudgetData struct {
		MonthlyAmountsByCategory []struct {
			Category struct {
				ID string `json:"id"`
			} `json:"category"`
			MonthlyAmounts []monthlyAmount `json:"monthlyAmounts"`
		} `json:"monthlyAmountsByCategory"`
	} `json:"budgetData"`
	CategoryGroups []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Categories []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"categories"`
	} `json:"categoryGroups"`
}

type monthlyAmount struct {
	Month                 string   `json:"month"`
	PlannedCashFlowAmount *float64 `json:"plannedCashFlowAmount"`
	ActualAmount          *float64 `json:"actualAmount"`
}

type categoriesResponse struct {
	Categories []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		IsDisabled bool   `json:"isDisabled"`
		Group      *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"group"`
	} `json:"categories"`
}

type transactionsResponse struct {
	AllTransactions struct {
		TotalCount int                 `json:"totalCount"`
		Results    []transactionResult `json:"results"`
	} `json:"allTransactions"`
}

type transactionResult struct {
	ID        string   `json:"id"`
	Amount    *float64 `json:"amount"`
	Pending   bool     `json:"pending"`
	Date      string   `json:"date"`
	Notes     *string  `json:"notes"`
	PlaidName *string  `json:"plaidName"`
	Category  *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"category"`
	Merchant *struct {
		Name string `json:"name"`
	} `json:"merchant"`
	Account *struct {
		DisplayName string `json:"displayName"`
	} `json:"account"`
}

type categoryInfo struct {
	name  string
	group string
}

// parseBudgets flattens the budget response into one row per category for
// month. The provider's month field is a date; only its YYYY-MM prefix is
// compared. Categories absent from the group listing are named "ID:<id>".
func parseBudgets(resp budgetsResponse, month core.Month) []core.BudgetCategory {
	lookup := make(map[string]categoryInfo)
	for _, g := range resp.CategoryGroups {
		groupName := g.Name
		if groupName == "" {
			groupName = "Unknown Group"
		}
		for _, c := range g.Categories {
			if c.ID == "" {
				continue
			}
			name := c.Name
			if name == "" {
				name = "Unknown Category"
			}
			lookup[c.ID] = categoryInfo{name: name, group: groupName}
		}
	}

	prefix := month.String()
	var out []core.BudgetCategory
	for _, entry := range resp.BudgetData.MonthlyAmountsByCategory {
		id := entry.Category.ID
		for _, ma := range entry.MonthlyAmounts {
			if !strings.HasPrefix(ma.Month, prefix) {
				continue
			}
			info, ok := lookup[id]
			if !ok {
				info = categoryInfo{name: "ID:" + id, group: "Unknown"}
			}
			out = append(out, core.BudgetCategory{
				ID:      id,
				Name:    info.name,
				Group:   info.group,
				Planned: core.MoneyFromFloat(deref(ma.PlannedCashFlowAmount)),
				Actual:  core.MoneyFromFloat(deref(ma.ActualAmount)),
			})
		}
	}
	return out
}

func parseCategories(resp categoriesResponse) []core.Category {
	out := make([]core.Category, 0, len(resp.Categories))
	for _, c := range resp.Categories {
		cat := core.Category{ID: c.ID, Name: c.Name, Disabled: c.IsDisabled}
		if c.Group != nil {
			cat.Group = c.Group.Name
		}
		out = append(out, cat)
	}
	return out
}

// parseTransactions normalizes provider rows. Monarch reports expenses as
// negative amounts; they are negated so expenses are positive and refunds
// negative.
func parseTransactions(resp transactionsResponse) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(resp.AllTransactions.Results))
	for _, r := range resp.AllTransactions.Results {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			return nil, core.NewError(core.CodeAPIError,
				fmt.Sprintf("Unexpected transaction %s: %v", r.ID, err), err)
		}
		t := core.Transaction{
			ID:      r.ID,
			Date:    d,
			Amount:  core.MoneyFromFloat(deref(r.Amount)).Neg(),
			Pending: r.Pending,
		}
		if r.Merchant != nil && r.Merchant.Name != "" {
			t.Merchant = r.Merchant.Name
		} else if r.PlaidName != nil {
			t.Merchant = *r.PlaidName
		}
		if r.Account != nil {
			t.Account = r.Account.DisplayName
		}
		if r.Notes != nil {
			t.Notes = *r.Notes
		}
		if r.Category != nil {
			t.CategoryID = r.Category.ID
			t.Category = r.Category.Name
		}
		out = append(out, t)
	}
	return out, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
