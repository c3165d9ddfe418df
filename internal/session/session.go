// Package session loads the persisted provider credential.
//
// The session file is written by an external login flow and is never
// modified here. Token validity is decided by the provider: a locally
// recorded expiry is carried along for display but never trusted.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"budgetcheck/internal/core"
)

// DefaultPath is used when no session path is configured.
const DefaultPath = "session.json"

// Session is a loaded provider credential.
type Session struct {
	Token string
	// ExpiresHint is an optional, non-authoritative expiry written by the
	// login flow. Zero when absent.
	ExpiresHint time.Time
	Path        string
}

type sessionFile struct {
	Token     *string `json:"token"`
	ExpiresAt string  `json:"expires_at,omitempty"`
}

var (
	ErrNotFound     = errors.New("session file not found")
	ErrMalformed    = errors.New("session file is malformed")
	ErrMissingToken = errors.New("'token' key missing or empty")
)

// Load reads and validates the session file at path. Every failure is
// reported as a SESSION_ERROR; the wrapped sentinel tells them apart for
// logging.
func Load(path string) (Session, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Session{}, sessionError(ErrNotFound,
				"Session file not found: %s. Run the login flow to create it.", path)
		}
		return Session{}, sessionError(err, "Cannot read session file %s: %v", path, err)
	}

	if !utf8.Valid(data) {
		return Session{}, sessionError(ErrMalformed, "Session file %s is not valid UTF-8.", path)
	}

	var raw sessionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Session{}, sessionError(ErrMalformed, "Session file %s is not valid JSON: %v", path, err)
	}

	if raw.Token == nil || strings.TrimSpace(*raw.Token) == "" {
		return Session{}, sessionError(ErrMissingToken,
			"'token' key missing or empty in %s. Re-run the login flow to regenerate the session file.", path)
	}

	s := Session{Token: strings.TrimSpace(*raw.Token), Path: path}
	if raw.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, raw.ExpiresAt); err == nil {
			s.ExpiresHint = t
		}
	}
	return s, nil
}

// Redacted returns the token with all but the last four characters masked.
func (s Session) Redacted() string {
	if len(s.Token) <= 4 {
		return strings.Repeat("*", len(s.Token))
	}
	return strings.Repeat("*", len(s.Token)-4) + s.Token[len(s.Token)-4:]
}

func sessionError(cause error, format string, args ...any) *core.Error {
	return &core.Error{
		Code:    core.CodeSessionError,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}
