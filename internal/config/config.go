// Package config resolves invocation settings.
//
// Precedence is explicit flag > environment > default. Load reads the
// environment (after an optional .env file); the CLI then overrides fields
// whose flags were set. Values are resolved once here and handed to the core
// as typed arguments.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
	"budgetcheck/internal/session"
)

type Config struct {
	// Invocation
	SessionPath string
	Threshold   string
	Category    string
	Month       string
	Limit       int
	JSON        bool
	Debug       bool

	// Provider
	Backend    string
	MonarchURL string
	Timeout    time.Duration
	Timezone   string

	// Offline backends
	SnapshotDBPath string
	FixturesDir    string

	// Result publishing (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPTimeout  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Backend names.
const (
	BackendMonarch = "monarch"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

var validBackends = []string{BackendMonarch, BackendSQLite, BackendMemory}

func Load() *Config {
	return &Config{
		SessionPath: getEnv("BUDGETCHECK_SESSION", session.DefaultPath),
		Threshold:   getEnv("BUDGETCHECK_THRESHOLD", core.DefaultThreshold.String()),
		Category:    getEnv("BUDGETCHECK_CATEGORY", ""),
		Month:       getEnv("BUDGETCHECK_MONTH", ""),
		Limit:       getEnvInt("BUDGETCHECK_LIMIT", finance.DefaultLimit),
		JSON:        getEnvBool("BUDGETCHECK_JSON", false),
		Debug:       getEnvBool("BUDGETCHECK_DEBUG", false),

		Backend:    getEnv("BUDGETCHECK_BACKEND", BackendMonarch),
		MonarchURL: getEnv("MONARCH_API_URL", "https://api.monarchmoney.com"),
		Timeout:    getEnvDuration("BUDGETCHECK_TIMEOUT", 30*time.Second),
		Timezone:   getEnv("BUDGETCHECK_TIMEZONE", "Local"),

		SnapshotDBPath: getEnv("BUDGETCHECK_SNAPSHOT_DB", "./data/snapshots.db"),
		FixturesDir:    getEnv("BUDGETCHECK_FIXTURES_DIR", "./data/fixtures"),

		AMQPURL:      getEnv("BUDGETCHECK_AMQP_URL", ""),
		AMQPExchange: getEnv("BUDGETCHECK_AMQP_EXCHANGE", "budgetcheck"),
		AMQPTimeout:  getEnvDuration("BUDGETCHECK_AMQP_TIMEOUT", 5*time.Second),

		LogLevel:  getEnv("BUDGETCHECK_LOG_LEVEL", "warn"),
		LogFormat: getEnv("BUDGETCHECK_LOG_FORMAT", "text"),
		LogFile:   getEnv("BUDGETCHECK_LOG_FILE", ""),
	}
}

// ThresholdAmount parses Threshold as a non-negative dollar amount.
func (c *Config) ThresholdAmount() (core.Money, error) {
	m, err := core.ParseMoney(c.Threshold)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w '%s': must be a number", core.ErrInvalidThreshold, c.Threshold)
	}
	if m.Cents < 0 {
		return core.Money{}, fmt.Errorf("%w %s: must be a non-negative amount", core.ErrInvalidThreshold, m)
	}
	return m, nil
}

// Location returns the timezone used to decide the current month.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// TargetMonth returns the configured month, or the month containing now in
// the configured timezone.
func (c *Config) TargetMonth(now time.Time) (core.Month, error) {
	if strings.TrimSpace(c.Month) != "" {
		return core.ParseMonth(c.Month)
	}
	loc, err := c.Location()
	if err != nil {
		return core.Month{}, err
	}
	return core.MonthOf(now.In(loc)), nil
}

// Validate checks every setting and reports all problems at once. Caller
// input problems are INVALID_ARGS; anything else is an environment
// misconfiguration and reported as DEPENDENCY_MISSING.
func (c *Config) Validate() error {
	var (
		argProblems []string
		envProblems []string
		causes      []error
	)

	if _, err := c.ThresholdAmount(); err != nil {
		argProblems = append(argProblems, err.Error())
		causes = append(causes, err)
	}
	if strings.TrimSpace(c.Month) != "" {
		if _, err := core.ParseMonth(c.Month); err != nil {
			argProblems = append(argProblems, err.Error())
			causes = append(causes, err)
		}
	}
	if c.Limit < 1 {
		err := fmt.Errorf("%w %d: must be at least 1", core.ErrInvalidLimit, c.Limit)
		argProblems = append(argProblems, err.Error())
		causes = append(causes, err)
	}

	isValidBackend := false
	for _, b := range validBackends {
		if c.Backend == b {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		envProblems = append(envProblems, fmt.Sprintf("invalid backend '%s': must be one of %v", c.Backend, validBackends))
	}

	if c.Backend == BackendMonarch {
		if parsedURL, err := url.Parse(c.MonarchURL); err != nil {
			envProblems = append(envProblems, fmt.Sprintf("invalid Monarch API URL '%s': %v", c.MonarchURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			envProblems = append(envProblems, fmt.Sprintf("invalid Monarch API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}
	if c.Backend == BackendSQLite && c.SnapshotDBPath == "" {
		envProblems = append(envProblems, "snapshot database path cannot be empty when using sqlite backend")
	}
	if c.Backend == BackendMemory && c.FixturesDir == "" {
		envProblems = append(envProblems, "fixtures directory cannot be empty when using memory backend")
	}

	if c.Timeout < time.Second {
		envProblems = append(envProblems, fmt.Sprintf("invalid timeout %v: must be at least 1 second", c.Timeout))
	} else if c.Timeout > 5*time.Minute {
		envProblems = append(envProblems, fmt.Sprintf("invalid timeout %v: must be at most 5 minutes", c.Timeout))
	}

	if _, err := c.Location(); err != nil {
		envProblems = append(envProblems, err.Error())
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			envProblems = append(envProblems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			envProblems = append(envProblems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			envProblems = append(envProblems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPTimeout <= 0 || c.AMQPTimeout > time.Minute {
			envProblems = append(envProblems, fmt.Sprintf("invalid AMQP timeout %v: must be positive and at most 1 minute", c.AMQPTimeout))
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		envProblems = append(envProblems, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(argProblems) > 0 {
		return &core.Error{
			Code:    core.CodeInvalidArgs,
			Message: "invalid arguments:\n- " + strings.Join(argProblems, "\n- "),
			Err:     causes[0],
		}
	}
	if len(envProblems) > 0 {
		return &core.Error{
			Code:    core.CodeDependencyMissing,
			Message: "configuration validation failed:\n- " + strings.Join(envProblems, "\n- "),
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
