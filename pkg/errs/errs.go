// Package errs defines the error taxonomy shared by the console components.
//
// Errors are created with cockroachdb/errors and marked with one of the
// sentinel kinds below, so callers can classify them with errors.Is no
// matter how many times they were wrapped on the way up.
package errs

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConflict means the action violates a state invariant, for example
	// starting a test session while another one is running.
	ErrConflict = errors.New("conflict")

	// ErrNotFound means an unknown module, alert or record id was referenced.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means a downstream dependency could not be reached.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout means a module exceeded its execution budget.
	ErrTimeout = errors.New("timeout")

	// ErrInvalid means the request itself was malformed.
	ErrInvalid = errors.New("invalid argument")
)

// Conflict returns an error marked as ErrConflict.
func Conflict(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// NotFound returns an error marked as ErrNotFound.
func NotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Timeout returns an error marked as ErrTimeout.
func Timeout(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrTimeout)
}

// Invalid returns an error marked as ErrInvalid.
func Invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalid)
}

// Unavailable wraps cause and marks the result as ErrUnavailable. A nil
// cause still yields a non-nil error.
func Unavailable(cause error, format string, args ...any) error {
	if cause == nil {
		return errors.Mark(errors.Newf(format, args...), ErrUnavailable)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrUnavailable)
}

// Code returns a short machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrInvalid):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps err to the status code the API handlers respond with.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "CONFLICT":
		return http.StatusConflict
	case "NOT_FOUND":
		return http.StatusNotFound
	case "UNAVAILABLE":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus converts an HTTP status received from an upstream service into
// a marked error. Statuses below 400 yield nil.
func FromStatus(status int, msg string) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusNotFound:
		return NotFound("%s", msg)
	case status == http.StatusConflict:
		return Conflict("%s", msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return Invalid("%s", msg)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return Unavailable(nil, "upstream timed out: %s", msg)
	case status >= 500:
		return Unavailable(nil, "upstream error (%d): %s", status, msg)
	default:
		return errors.Newf("upstream returned %d: %s", status, msg)
	}
}

// Attr returns err as a single-line "error" log attribute. slog's text handler
// formats error values with %+v, which prints the full stack trace.
func Attr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
