package errs

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestMarksSurviveWrapping(t *testing.T) {
	base := Conflict("session %s is running", "abc")
	wrapped := fmt.Errorf("start: %w", base)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Contains(t, wrapped.Error(), "session abc is running")
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable(cause, "fetch %s", "health")

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")

	assert.Error(t, Unavailable(nil, "store down"))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Conflict("x"), http.StatusConflict},
		{NotFound("x"), http.StatusNotFound},
		{Unavailable(nil, "x"), http.StatusServiceUnavailable},
		{Timeout("x"), http.StatusGatewayTimeout},
		{Invalid("x"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "err=%v", tc.err)
	}
}

func TestFromStatus(t *testing.T) {
	assert.NoError(t, FromStatus(http.StatusOK, ""))
	assert.True(t, errors.Is(FromStatus(http.StatusNotFound, "gone"), ErrNotFound))
	assert.True(t, errors.Is(FromStatus(http.StatusConflict, "busy"), ErrConflict))
	assert.True(t, errors.Is(FromStatus(http.StatusBadGateway, "down"), ErrUnavailable))
	assert.Equal(t, "INTERNAL", Code(FromStatus(http.StatusTeapot, "?")))
}

func TestAttrIsSingleLine(t *testing.T) {
	err := Unavailable(errors.New("connection refused"), "poll %s", "logs")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Warn("monitoring poll failed", Attr(err))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "connection refused")
	assert.Equal(t, slog.String("error", ""), Attr(nil))
}
