package ml

import "errors"

// Error kinds returned by the inference pipeline. Callers match them with
// errors.Is; the wrapping error carries the detail.
var (
	// ErrModelUnavailable means an artifact is missing, corrupt or was never loaded.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrSchemaMismatch means the input arity or feature names disagree with the fitted artifacts.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidInput means a field is missing or not numeric.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind labels used in logs, metrics and API error bodies
const (
	KindModelUnavailable = "model_unavailable"
	KindSchemaMismatch   = "schema_mismatch"
	KindInvalidInput     = "invalid_input"
	KindInternal         = "internal"
)

// ErrorKind classifies err into one of the Kind labels
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}
