// Package render formats results for the two audiences: a JSON envelope for
// programs and lipgloss tables for people.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"budgetcheck/internal/core"
)

// ErrEncoding marks a failure to produce the JSON envelope itself. It is a
// contract violation inside the boundary and is never retried.
var ErrEncoding = errors.New("cannot encode result")

// ErrorEnvelope is the JSON shape of every failure.
type ErrorEnvelope struct {
	Error string    `json:"error"`
	Code  core.Code `json:"code"`
	// Present only for CATEGORY_NOT_FOUND, possibly empty.
	AvailableCategories *[]string `json:"available_categories,omitempty"`
}

// NewErrorEnvelope classifies err. Unclassified errors become API_ERROR.
func NewErrorEnvelope(err error) ErrorEnvelope {
	env := ErrorEnvelope{Error: err.Error(), Code: core.CodeOf(err)}
	var cerr *core.Error
	if errors.As(err, &cerr) && cerr.Code == core.CodeCategoryNotFound {
		available := cerr.Available
		if available == nil {
			available = []string{}
		}
		env.AvailableCategories = &available
	}
	return env
}

// JSON writes v as an indented JSON document.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return nil
}

// ErrorJSON writes the error envelope for err.
func ErrorJSON(w io.Writer, err error) error {
	return JSON(w, NewErrorEnvelope(err))
}
