package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"budgetcheck/internal/core"
	"budgetcheck/internal/render"
)

// Exit statuses. Every classified error exits 1 with its envelope on
// stdout; 2 means the envelope itself could not be written.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitInternal = 2
)

// exitError carries the process status of a failure that has already been
// reported.
type exitError struct {
	status int
	err    error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd(version string, opts ...Option) *cobra.Command {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	rootCmd := &cobra.Command{
		Use:   "budgetcheck",
		Short: "Budget overage and category drill-down reports",
		Long: titleStyle.Render("budgetcheck") + " " + lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(version) + "\n" +
			"  Finds categories over budget and lists a category's transactions.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return core.NewError(core.CodeInvalidArgs, err.Error(), err)
	})

	pf := rootCmd.PersistentFlags()
	pf.Bool("json", false, "Write the result as JSON (errors included) to stdout")
	pf.Bool("debug", false, "Log provider payload summaries to stderr")
	pf.String("session", "", "Path to the session file (env BUDGETCHECK_SESSION)")
	pf.String("month", "", "Month as YYYY-MM, default current month (env BUDGETCHECK_MONTH)")
	pf.String("backend", "", "Data source: monarch, sqlite or memory (env BUDGETCHECK_BACKEND)")
	pf.Duration("timeout", 0, "Provider call timeout (env BUDGETCHECK_TIMEOUT)")
	pf.String("amqp-url", "", "Publish results to this RabbitMQ URL (env BUDGETCHECK_AMQP_URL)")

	rootCmd.AddCommand(newOverBudgetCmd(o))
	rootCmd.AddCommand(newTransactionsCmd(o))
	rootCmd.AddCommand(newSnapshotCmd(o))
	rootCmd.AddCommand(newSessionCmd(o))

	return rootCmd
}

var titleStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}).Bold(true)

// Execute runs the command tree and returns the process exit status.
func Execute(ctx context.Context, version string, args []string, stdout, stderr io.Writer, opts ...Option) int {
	root := NewRootCmd(version, opts...)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.status
	}

	// Argument errors raised by cobra before any command ran.
	if !core.IsCode(err, core.CodeInvalidArgs) {
		err = core.NewError(core.CodeInvalidArgs, err.Error(), err)
	}
	return fail(stdout, stderr, wantsJSON(args), err).(*exitError).status
}

// fail writes err on the channel matching the output mode and returns the
// exitError carrying the status.
func fail(stdout, stderr io.Writer, asJSON bool, err error) error {
	if asJSON {
		if werr := render.ErrorJSON(stdout, err); werr != nil {
			fmt.Fprintf(stderr, "internal error: %v\n", werr)
			return &exitError{status: ExitInternal, err: werr}
		}
		return &exitError{status: ExitError, err: err}
	}
	render.ErrorText(stderr, err)
	return &exitError{status: ExitError, err: err}
}

func wantsJSON(args []string) bool {
	for _, a := range args {
		if a == "--json" || a == "--json=true" {
			return true
		}
	}
	v := strings.ToLower(os.Getenv("BUDGETCHECK_JSON"))
	return v == "1" || v == "true"
}
