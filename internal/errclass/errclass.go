// Package errclass buckets failures into the coarse classes the engine
// stores on failed work and reports to clients. Classification is
// deliberately lossy: callers keep the wrapped error for logs and use the
// class for routing, persistence, and metrics labels.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Failure classes. Stored in windows.error_code / score_attempts.error_code
// and used as the "code" field of API error bodies.
const (
	InvalidInput    = "invalid_input"
	PayloadTooLarge = "payload_too_large"
	Upstream        = "upstream_error"
	Timeout         = "timeout"
	Internal        = "internal_error"
)

// Sentinels for pre-flight validation, wrapped with detail at the call site.
var (
	ErrInvalid  = errors.New("invalid input")
	ErrTooLarge = errors.New("payload too large")
)

// StatusError is a non-2xx reply from an upstream vendor API. Body is
// truncated by the client that produced it.
type StatusError struct {
	Service string // which vendor: "lesson", "speech"
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Status, e.Body)
}

// Classify maps err to one failure class. nil maps to "".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTooLarge):
		return PayloadTooLarge
	case errors.Is(err, ErrInvalid):
		return InvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusRequestEntityTooLarge:
			return PayloadTooLarge
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return InvalidInput
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return Timeout
		default:
			return Upstream
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}

	return Internal
}
