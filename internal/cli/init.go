// Package cli wires configuration, logging and the report service into the
// budgetcheck command tree.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"budgetcheck/internal/config"
	"budgetcheck/internal/log"
)

// SetupLogger builds the stderr logger for one invocation and sets it as
// the default. --debug wins over the configured level.
func SetupLogger(cfg *config.Config, stderr io.Writer, runID string) (*log.Logger, io.Closer) {
	level := log.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger, closer := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
		Component: log.ComponentCLI,
		Writer:    stderr,
	})
	logger = logger.With(log.FieldRunID, runID)
	log.SetDefault(logger)
	return logger, closer
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as the file is optional.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// NewRunID tags one invocation across logs, snapshots and messages.
func NewRunID() string {
	return uuid.NewString()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM so an
// interrupted provider call ends as a classified error instead of a hang.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
