// Package report runs the budget queries end to end: it loads the session,
// builds the provider client, fetches under a deadline and hands the data
// to the pure analysis in core.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetcheck/internal/backend"
	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
	"budgetcheck/internal/log"
	"budgetcheck/internal/session"
	"budgetcheck/internal/storage"
)

// Publisher receives successful results. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) error
}

// SnapshotSaver persists captured provider data.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, s storage.Snapshot) (int64, error)
}

// Result kinds, used as publish routing keys.
const (
	KindOverBudget   = "report.over_budget"
	KindTransactions = "report.transactions"
	KindSnapshot     = "report.snapshot"
)

// Request carries the resolved invocation arguments.
type Request struct {
	SessionPath string
	Month       core.Month
	Threshold   core.Money
	Category    string
	Limit       int
}

// Service runs reports against a provider built per invocation.
type Service struct {
	factory   backend.Factory
	backend   backend.Config
	timeout   time.Duration
	now       func() time.Time
	runID     string
	logger    *log.Logger
	publisher Publisher

	publishTimeout time.Duration
}

type Option func(*Service)

// WithClock overrides the time source used for generated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithRunID(id string) Option {
	return func(s *Service) { s.runID = id }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent(log.ComponentReport) }
}

// WithPublisher sends every successful result to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout caps how long a result waits on the publisher.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) { s.publishTimeout = d }
}

// NewService returns a service creating clients from cfg via factory. The
// session token is filled in per run.
func NewService(factory backend.Factory, cfg backend.Config, opts ...Option) *Service {
	logger, _ := log.New(log.DefaultConfig())
	s := &Service{
		factory: factory,
		backend: cfg,
		timeout: 30 * time.Second,
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentReport),

		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OverBudget reports categories whose actual spend exceeds plan by more
// than the threshold.
func (s *Service) OverBudget(ctx context.Context, req Request) (core.OverBudgetReport, error) {
	if err := core.ValidateThreshold(req.Threshold); err != nil {
		return core.OverBudgetReport{}, err
	}

	var out core.OverBudgetReport
	err := s.run(ctx, log.OpOverBudget, req, func(ctx context.Context, c finance.Client) error {
		budgets, err := c.FetchBudgets(ctx, req.Month)
		if err != nil {
			return err
		}
		out, err = core.AnalyzeOverBudget(budgets, req.Threshold, req.Month, s.now())
		return err
	})
	if err != nil {
		return core.OverBudgetReport{}, err
	}
	s.publish(ctx, KindOverBudget, out)
	return out, nil
}

// Transactions lists the month's transactions for a category matched
// case-insensitively against the provider's enabled categories.
func (s *Service) Transactions(ctx context.Context, req Request) (core.CategoryTransactionResult, error) {
	if strings.TrimSpace(req.Category) == "" {
		return core.CategoryTransactionResult{}, core.Errorf(core.CodeInvalidArgs,
			"%w: a category name is required", core.ErrEmptyCategory)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = finance.DefaultLimit
	}

	var out core.CategoryTransactionResult
	err := s.run(ctx, log.OpTransactions, req, func(ctx context.Context, c finance.Client) error {
		cats, err := c.FetchCategories(ctx, req.Month)
		if err != nil {
			return err
		}
		universe := core.CategoryNames(cats)
		canonical, err := core.ResolveCategory(universe, req.Category)
		if err != nil {
			return err
		}

		txns, err := c.FetchTransactions(ctx, finance.TransactionQuery{
			Month:       req.Month,
			CategoryIDs: finance.CategoryIDs(cats, canonical),
			Limit:       limit,
		})
		if err != nil {
			return err
		}
		out, err = core.FilterCategoryTransactions(txns, universe, canonical, req.Month, s.now())
		return err
	})
	if err != nil {
		return core.CategoryTransactionResult{}, err
	}
	s.publish(ctx, KindTransactions, out)
	return out, nil
}

// SnapshotResult describes a stored snapshot.
type SnapshotResult struct {
	ID           int64      `json:"id"`
	Month        core.Month `json:"month"`
	RunID        string     `json:"run_id"`
	TakenAt      time.Time  `json:"taken_at"`
	Budgets      int        `json:"budgets"`
	Categories   int        `json:"categories"`
	Transactions int        `json:"transactions"`
}

// Snapshot fetches budgets, categories and every transaction of the month
// concurrently and stores them for offline use. req.Limit is the page size.
func (s *Service) Snapshot(ctx context.Context, req Request, saver SnapshotSaver) (SnapshotResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = finance.DefaultLimit
	}

	var out SnapshotResult
	err := s.run(ctx, log.OpSnapshot, req, func(ctx context.Context, c finance.Client) error {
		snap := storage.Snapshot{Month: req.Month, RunID: s.runID}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			snap.Budgets, err = c.FetchBudgets(gctx, req.Month)
			return err
		})
		g.Go(func() error {
			var err error
			snap.Categories, err = c.FetchCategories(gctx, req.Month)
			return err
		})
		g.Go(func() error {
			var err error
			snap.Transactions, err = finance.FetchAllTransactions(gctx, c, finance.TransactionQuery{Month: req.Month, Limit: limit})
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		snap.TakenAt = s.now().Truncate(time.Second)
		id, err := saver.SaveSnapshot(ctx, snap)
		if err != nil {
			return core.Errorf(core.CodeDependencyMissing, "cannot store snapshot: %w", err)
		}
		out = SnapshotResult{
			ID:           id,
			Month:        req.Month,
			RunID:        s.runID,
			TakenAt:      snap.TakenAt,
			Budgets:      len(snap.Budgets),
			Categories:   len(snap.Categories),
			Transactions: len(snap.Transactions),
		}
		return nil
	})
	if err != nil {
		return SnapshotResult{}, err
	}
	s.publish(ctx, KindSnapshot, out)
	return out, nil
}

// SessionStatus describes a loaded session without exposing the token.
type SessionStatus struct {
	Path      string     `json:"path"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Expired reflects only the local hint; the provider has the final say.
	Expired bool `json:"expired_hint"`
}

// CheckSession loads the session file without contacting the provider.
func (s *Service) CheckSession(path string) (SessionStatus, error) {
	sess, err := session.Load(path)
	if err != nil {
		s.logger.Warn("session check failed", log.NewFields().
			WithOperation(log.OpSessionCheck).
			WithError(err, string(core.CodeOf(err))).ToSlice()...)
		return SessionStatus{}, err
	}
	st := SessionStatus{Path: sess.Path, Token: sess.Redacted()}
	if !sess.ExpiresHint.IsZero() {
		exp := sess.ExpiresHint
		st.ExpiresAt = &exp
		st.Expired = exp.Before(s.now())
	}
	return st, nil
}

// run loads the session before any provider call, builds the client and
// executes fn under the configured deadline. Every returned error carries
// a code.
func (s *Service) run(ctx context.Context, op string, req Request, fn func(context.Context, finance.Client) error) error {
	start := s.now()
	fields := log.NewFields().WithOperation(op).WithMonth(req.Month.String())

	sess, err := session.Load(req.SessionPath)
	if err != nil {
		s.logger.Warn("session unavailable", fields.WithError(err, string(core.CodeOf(err))).ToSlice()...)
		return err
	}
	s.logger.Debug("session loaded", append(fields.ToSlice(), log.FieldSession, sess.Redacted())...)

	cfg := s.backend
	cfg.Token = sess.Token
	res, err := s.factory.CreateClient(ctx, cfg)
	if err != nil {
		s.logger.Error("backend unavailable", fields.WithError(err, string(core.CodeOf(err))).ToSlice()...)
		return err
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			s.logger.Warn("backend cleanup failed", log.FieldError, cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = classify(fn(ctx, res.Client), s.timeout)
	fields = fields.WithDuration(start, s.now())
	if err != nil {
		s.logger.Error("report failed", fields.WithError(err, string(core.CodeOf(err))).ToSlice()...)
		return err
	}
	s.logger.Info("report completed", fields.ToSlice()...)
	return nil
}

// classify guarantees err carries a code. Deadline and cancellation are
// provider failures.
func classify(err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	var cerr *core.Error
	if errors.As(err, &cerr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.CodeAPIError, fmt.Sprintf("Provider request timed out after %s.", timeout), err)
	case errors.Is(err, context.Canceled):
		return core.NewError(core.CodeAPIError, "Provider request was cancelled.", err)
	default:
		return core.NewError(core.CodeOf(err), "", err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, payload any) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, min(s.publishTimeout, s.timeout))
	defer cancel()
	if err := s.publisher.Publish(ctx, kind, payload); err != nil {
		s.logger.Warn("publish failed", log.FieldOperation, log.OpPublish, "kind", kind, log.FieldError, err)
	}
}
