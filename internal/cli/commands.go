package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"budgetcheck/internal/amqp"
	"budgetcheck/internal/backend"
	"budgetcheck/internal/config"
	"budgetcheck/internal/core"
	"budgetcheck/internal/log"
	"budgetcheck/internal/render"
	"budgetcheck/internal/report"
	"budgetcheck/internal/storage"
)

// invocation holds everything resolved once at the boundary for one run.
type invocation struct {
	cfg     *config.Config
	logger  *log.Logger
	runID   string
	now     func() time.Time
	request report.Request
	service *report.Service
	closers []io.Closer
	stdout  io.Writer
	stderr  io.Writer
}

func (inv *invocation) Close() {
	for i := len(inv.closers) - 1; i >= 0; i-- {
		inv.closers[i].Close()
	}
}

// fail reports err in the invocation's output mode.
func (inv *invocation) fail(err error) error {
	return fail(inv.stdout, inv.stderr, inv.cfg.JSON, err)
}

// emit writes a successful result: JSON, or the human rendering.
func (inv *invocation) emit(v any, human func(io.Writer) error) error {
	if inv.cfg.JSON {
		if err := render.JSON(inv.stdout, v); err != nil {
			fmt.Fprintf(inv.stderr, "internal error: %v\n", err)
			return &exitError{status: ExitInternal, err: err}
		}
		return nil
	}
	return human(inv.stdout)
}

// applyFlags overrides environment values with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("json") {
		cfg.JSON, _ = flags.GetBool("json")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("session") {
		cfg.SessionPath, _ = flags.GetString("session")
	}
	if flags.Changed("month") {
		cfg.Month, _ = flags.GetString("month")
	}
	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("amqp-url") {
		cfg.AMQPURL, _ = flags.GetString("amqp-url")
	}
	if flags.Lookup("threshold") != nil && flags.Changed("threshold") {
		cfg.Threshold, _ = flags.GetString("threshold")
	}
	if flags.Lookup("category") != nil && flags.Changed("category") {
		cfg.Category, _ = flags.GetString("category")
	}
	if flags.Lookup("limit") != nil && flags.Changed("limit") {
		cfg.Limit, _ = flags.GetInt("limit")
	}
	if flags.Lookup("db") != nil && flags.Changed("db") {
		cfg.SnapshotDBPath, _ = flags.GetString("db")
	}
}

// setup resolves configuration with flag > positional > environment >
// default precedence, then builds the logger and the report service.
func setup(cmd *cobra.Command, o *options, positional func(*config.Config)) (*invocation, error) {
	cfg := config.Load()
	if positional != nil {
		positional(cfg)
	}
	applyFlags(cmd, cfg)

	inv := &invocation{
		cfg:    cfg,
		runID:  NewRunID(),
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}

	if err := cfg.Validate(); err != nil {
		return inv, inv.fail(err)
	}

	logger, logCloser := SetupLogger(cfg, inv.stderr, inv.runID)
	inv.logger = logger
	inv.closers = append(inv.closers, logCloser)

	loc, err := cfg.Location()
	if err != nil {
		return inv, inv.fail(core.NewError(core.CodeDependencyMissing, "", err))
	}
	inv.now = func() time.Time { return o.now().In(loc) }

	month, err := cfg.TargetMonth(inv.now())
	if err != nil {
		return inv, inv.fail(err)
	}
	threshold, err := cfg.ThresholdAmount()
	if err != nil {
		return inv, inv.fail(err)
	}
	inv.request = report.Request{
		SessionPath: cfg.SessionPath,
		Month:       month,
		Threshold:   threshold,
		Category:    cfg.Category,
		Limit:       cfg.Limit,
	}

	backendCfg := backend.FromAppConfig(cfg, "", loc)
	backendCfg.Now = inv.now
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())

	serviceOpts := []report.Option{
		report.WithClock(inv.now),
		report.WithTimeout(cfg.Timeout),
		report.WithRunID(inv.runID),
		report.WithLogger(logger),
	}
	if cfg.AMQPURL != "" {
		pub := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange,
			amqp.WithRunID(inv.runID),
			amqp.WithLogger(logger.WithComponent(log.ComponentAMQP).Slog()))
		inv.closers = append(inv.closers, pub)
		serviceOpts = append(serviceOpts, report.WithPublisher(pub), report.WithPublishTimeout(cfg.AMQPTimeout))
	}
	inv.service = report.NewService(factory, backendCfg, serviceOpts...)

	logger.Debug("invocation resolved",
		log.FieldBackend, cfg.Backend,
		log.FieldMonth, month.String(),
		log.FieldThreshold, threshold.String())
	return inv, nil
}

func newOverBudgetCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "over-budget [threshold]",
		Short: "List categories whose spending exceeds plan by more than a threshold",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := setup(cmd, o, func(c *config.Config) {
				if len(args) == 1 {
					c.Threshold = args[0]
				}
			})
			defer inv.Close()
			if err != nil {
				return err
			}

			rep, err := inv.service.OverBudget(cmd.Context(), inv.request)
			if err != nil {
				return inv.fail(err)
			}
			return inv.emit(rep, func(w io.Writer) error { return render.OverBudgetTable(w, rep) })
		},
	}
	cmd.Flags().String("threshold", "", "Minimum overage in dollars (env BUDGETCHECK_THRESHOLD, default 50)")
	return cmd
}

func newTransactionsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions <category>",
		Short: "List a category's transactions for a month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := setup(cmd, o, func(c *config.Config) {
				if len(args) == 1 {
					c.Category = args[0]
				}
			})
			defer inv.Close()
			if err != nil {
				return err
			}

			res, err := inv.service.Transactions(cmd.Context(), inv.request)
			if err != nil {
				return inv.fail(err)
			}
			return inv.emit(res, func(w io.Writer) error { return render.TransactionsTable(w, res) })
		},
	}
	cmd.Flags().String("category", "", "Category name, case-insensitive (env BUDGETCHECK_CATEGORY)")
	cmd.Flags().Int("limit", 0, "Maximum transactions to request (env BUDGETCHECK_LIMIT, default 100)")
	return cmd
}

func newSnapshotCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Store the month's provider data for offline reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := setup(cmd, o, nil)
			defer inv.Close()
			if err != nil {
				return err
			}

			repo, err := storage.NewSQLiteRepository(inv.cfg.SnapshotDBPath)
			if err != nil {
				return inv.fail(core.Errorf(core.CodeDependencyMissing, "snapshot database unavailable: %w", err))
			}
			inv.closers = append(inv.closers, repo)

			res, err := inv.service.Snapshot(cmd.Context(), inv.request, repo)
			if err != nil {
				return inv.fail(err)
			}
			return inv.emit(res, func(w io.Writer) error { return render.SnapshotText(w, res) })
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum transactions to store (env BUDGETCHECK_LIMIT, default 100)")
	cmd.PersistentFlags().String("db", "", "Snapshot database path (env BUDGETCHECK_SNAPSHOT_DB)")
	cmd.AddCommand(newSnapshotListCmd(o))
	return cmd
}

type snapshotEntry struct {
	ID      int64      `json:"id"`
	Month   core.Month `json:"month"`
	TakenAt time.Time  `json:"taken_at"`
	RunID   string     `json:"run_id"`
}

func newSnapshotListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := setup(cmd, o, nil)
			defer inv.Close()
			if err != nil {
				return err
			}

			repo, err := storage.OpenExisting(inv.cfg.SnapshotDBPath)
			if err != nil {
				return inv.fail(core.Errorf(core.CodeDependencyMissing, "snapshot database unavailable: %w", err))
			}
			inv.closers = append(inv.closers, repo)

			infos, err := repo.ListSnapshots(cmd.Context())
			if err != nil {
				return inv.fail(core.Errorf(core.CodeDependencyMissing, "cannot list snapshots: %w", err))
			}
			entries := make([]snapshotEntry, 0, len(infos))
			for _, s := range infos {
				entries = append(entries, snapshotEntry{ID: s.ID, Month: s.Month, TakenAt: s.TakenAt, RunID: s.RunID})
			}
			return inv.emit(entries, func(w io.Writer) error {
				if len(entries) == 0 {
					_, err := fmt.Fprintln(w, "No snapshots stored.")
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(w, "#%d  %s  taken %s  run %s\n", e.ID, e.Month, e.TakenAt.Format(time.RFC3339), e.RunID)
				}
				return nil
			})
		},
	}
}

func newSessionCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the stored provider session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the session file without contacting the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := setup(cmd, o, nil)
			defer inv.Close()
			if err != nil {
				return err
			}

			st, err := inv.service.CheckSession(inv.cfg.SessionPath)
			if err != nil {
				return inv.fail(err)
			}
			return inv.emit(st, func(w io.Writer) error { return render.SessionText(w, st) })
		},
	})
	return cmd
}
