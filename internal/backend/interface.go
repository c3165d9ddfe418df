package backend

import (
	"context"
	"net/http"
	"time"

	"budgetcheck/internal/finance"
)

// CleanupFunc releases resources held by a client.
type CleanupFunc func() error

// Result contains the client instance and its cleanup function.
type Result struct {
	Client  finance.Client
	Cleanup CleanupFunc
}

// Factory creates finance clients based on configuration.
type Factory interface {
	// CreateClient builds the provider client. Construction failures are
	// reported as DEPENDENCY_MISSING.
	CreateClient(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for client creation.
type Config struct {
	Type BackendType

	// Monarch specific
	MonarchURL string
	Token      string
	HTTPClient *http.Client
	Now        func() time.Time
	Location   *time.Location

	// SQLite specific
	SnapshotDBPath string

	// Memory specific
	FixturesDir string
}

// BackendType represents the type of backend.
type BackendType string

const (
	MonarchBackend BackendType = "monarch"
	SQLiteBackend  BackendType = "sqlite"
	MemoryBackend  BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is known.
func (bt BackendType) IsValid() bool {
	switch bt {
	case MonarchBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
