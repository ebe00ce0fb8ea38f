package coordinator

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed submission so callers can tell retryable
// failures from permanent ones.
type Kind string

// Submissions to a busy session queue rather than fail, so there is no
// busy kind in the taxonomy.
const (
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindGenerationFailed  Kind = "GENERATION_FAILED"
	KindGenerationTimeout Kind = "GENERATION_TIMEOUT"
	KindPersistenceFailed Kind = "PERSISTENCE_FAILED"
)

// Error is the coordinator's typed failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("coordinator: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("coordinator: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to an HTTP-equivalent status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind from err, or empty when err is not a
// coordinator error.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ""
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}
