package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"budgetcheck/internal/core"
	"budgetcheck/internal/report"
)

var (
	subtle     = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight  = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special    = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning    = lipgloss.AdaptiveColor{Light: "#F29F05", Dark: "#F29F05"}
	errorColor = lipgloss.AdaptiveColor{Light: "#E05252", Dark: "#E05252"}

	titleStyle  = lipgloss.NewStyle().Foreground(highlight).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	amountStyle = cellStyle.Align(lipgloss.Right)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(special)
	warnStyle   = lipgloss.NewStyle().Foreground(warning)
	errStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// Money formats an amount as dollars, e.g. $1,234.50 or -$5.00.
func Money(m core.Money) string {
	s := m.Decimal().Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if m.Cents < 0 {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

func newTable(headers []string, rows [][]string, amountCols map[int]bool) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if amountCols[col] {
				return amountStyle
			}
			return cellStyle
		})
}

// OverBudgetTable renders the over-budget report for people.
func OverBudgetTable(w io.Writer, rep core.OverBudgetReport) error {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Over budget in %s (threshold %s)", rep.Month, Money(rep.Threshold))))

	if len(rep.Entries) == 0 {
		_, err := fmt.Fprintln(w, okStyle.Render("No categories over budget."))
		return err
	}

	rows := make([][]string, 0, len(rep.Entries))
	for _, e := range rep.Entries {
		rows = append(rows, []string{e.Category, e.Group, Money(e.Planned), Money(e.Actual), Money(e.Overage)})
	}
	t := newTable([]string{"Category", "Group", "Planned", "Actual", "Over"}, rows, map[int]bool{2: true, 3: true, 4: true})
	fmt.Fprintln(w, t.Render())
	_, err := fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Total overage:"), warnStyle.Render(Money(rep.TotalOverage)))
	return err
}

// TransactionsTable renders a category's transactions. Pending rows are
// marked with *.
func TransactionsTable(w io.Writer, res core.CategoryTransactionResult) error {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s in %s", res.Category, res.Month)))

	if res.Count == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("No transactions."))
		return err
	}

	rows := make([][]string, 0, len(res.Transactions))
	anyPending := false
	for _, t := range res.Transactions {
		date := t.Date.String()
		if t.Pending {
			date += "*"
			anyPending = true
		}
		rows = append(rows, []string{date, t.Merchant, Money(t.Amount), t.Account, t.Notes})
	}
	tbl := newTable([]string{"Date", "Merchant", "Amount", "Account", "Notes"}, rows, map[int]bool{2: true})
	fmt.Fprintln(w, tbl.Render())
	fmt.Fprintf(w, "%s %s\n",
		dimStyle.Render(fmt.Sprintf("%d transactions, total", res.Count)),
		warnStyle.Render(Money(res.Total)))
	if anyPending {
		fmt.Fprintln(w, dimStyle.Render("* pending"))
	}
	return nil
}

// SnapshotText renders a stored snapshot summary.
func SnapshotText(w io.Writer, s report.SnapshotResult) error {
	_, err := fmt.Fprintf(w, "%s snapshot #%d for %s: %d budgets, %d categories, %d transactions\n",
		okStyle.Render("●"), s.ID, s.Month, s.Budgets, s.Categories, s.Transactions)
	return err
}

// SessionText renders a session check.
func SessionText(w io.Writer, st report.SessionStatus) error {
	fmt.Fprintf(w, "%s session %s (token %s)\n", okStyle.Render("●"), st.Path, st.Token)
	switch {
	case st.ExpiresAt == nil:
		fmt.Fprintln(w, dimStyle.Render("  no local expiry recorded"))
	case st.Expired:
		fmt.Fprintln(w, warnStyle.Render("  local expiry "+st.ExpiresAt.Format("2006-01-02 15:04")+" has passed; the provider may reject it"))
	default:
		fmt.Fprintln(w, dimStyle.Render("  expires "+st.ExpiresAt.Format("2006-01-02 15:04")))
	}
	return nil
}

// ErrorText renders a failure for people, listing the available categories
// when the requested one was not found.
func ErrorText(w io.Writer, err error) error {
	env := NewErrorEnvelope(err)
	fmt.Fprintf(w, "%s %s\n", errStyle.Render("Error ["+string(env.Code)+"]:"), env.Error)

	var cerr *core.Error
	if errors.As(err, &cerr) && cerr.Code == core.CodeCategoryNotFound {
		if len(cerr.Available) == 0 {
			fmt.Fprintln(w, dimStyle.Render("No categories are available."))
			return nil
		}
		fmt.Fprintln(w, "Available categories:")
		for _, name := range cerr.Available {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("•"), name)
		}
	}
	return nil
}
