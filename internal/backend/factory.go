package backend

import (
	"context"
	"log/slog"
	"time"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance/memory"
	"budgetcheck/internal/finance/monarch"
	"budgetcheck/internal/storage"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

func (f *DefaultFactory) CreateClient(ctx context.Context, config Config) (*Result, error) {
	if !config.Type.IsValid() {
		return nil, core.Errorf(core.CodeDependencyMissing,
			"unknown backend '%s': must be one of %v", config.Type, GetBackendTypeStrings())
	}

	switch config.Type {
	case MonarchBackend:
		return f.createMonarchClient(config)
	case SQLiteBackend:
		return f.createSQLiteClient(config)
	default:
		return f.createMemoryClient(config)
	}
}

func (f *DefaultFactory) createMonarchClient(config Config) (*Result, error) {
	opts := []monarch.Option{monarch.WithLogger(f.logger)}
	if config.HTTPClient != nil {
		opts = append(opts, monarch.WithHTTPClient(config.HTTPClient))
	}
	if config.Now != nil || config.Location != nil {
		now, loc := config.Now, config.Location
		if now == nil {
			now = time.Now
		}
		if loc == nil {
			loc = time.Local
		}
		opts = append(opts, monarch.WithClock(now, loc))
	}

	client, err := monarch.New(config.MonarchURL, config.Token, opts...)
	if err != nil {
		return nil, core.Errorf(core.CodeDependencyMissing, "Monarch client unavailable: %w", err)
	}

	f.logger.Debug("Initialized Monarch backend", "api_url", config.MonarchURL)

	return &Result{
		Client:  client,
		Cleanup: func() error { return nil },
	}, nil
}

func (f *DefaultFactory) createSQLiteClient(config Config) (*Result, error) {
	repo, err := storage.OpenExisting(config.SnapshotDBPath)
	if err != nil {
		return nil, core.Errorf(core.CodeDependencyMissing,
			"snapshot database unavailable at '%s': %w", config.SnapshotDBPath, err)
	}

	f.logger.Debug("Initialized SQLite snapshot backend", "db_path", config.SnapshotDBPath)

	return &Result{
		Client:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryClient(config Config) (*Result, error) {
	store, err := memory.NewFromFiles(config.FixturesDir)
	if err != nil {
		return nil, core.Errorf(core.CodeDependencyMissing,
			"fixtures unavailable at '%s': %w", config.FixturesDir, err)
	}

	f.logger.Debug("Initialized memory backend", "fixtures_dir", config.FixturesDir)

	return &Result{
		Client:  store,
		Cleanup: func() error { return nil },
	}, nil
}
