package log

import "time"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRunID      = "run_id"
	FieldOperation  = "operation"
	FieldBackend    = "backend"
	FieldMonth      = "month"
	FieldCategory   = "category"
	FieldThreshold  = "threshold"
	FieldCount      = "count"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldErrorCode  = "error_code"
	FieldSnapshotID = "snapshot_id"
	FieldSession    = "session"
)

// Components
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentReport  = "report"
	ComponentMonarch = "monarch"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentBackend = "backend"
	ComponentSession = "session"
)

// Operations
const (
	OpOverBudget   = "over_budget"
	OpTransactions = "transactions"
	OpSnapshot     = "snapshot"
	OpSessionCheck = "session_check"
	OpPublish      = "publish"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithMonth(month string) LogFields {
	f[FieldMonth] = month
	return f
}

// WithError adds the error text and, when known, its stable code.
func (f LogFields) WithError(err error, code string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		if code != "" {
			f[FieldErrorCode] = code
		}
	}
	return f
}

func (f LogFields) WithDuration(start, end time.Time) LogFields {
	f[FieldDuration] = end.Sub(start).Milliseconds()
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
