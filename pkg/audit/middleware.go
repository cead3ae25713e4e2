package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// Headers carrying the operator identity, set by the authenticating proxy in
// front of the console.
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorEmail = "X-Actor-Email"
)

// maxCapturedBody bounds how much of a JSON request body is kept as the
// record's "after" state.
const maxCapturedBody = 64 << 10

// Appender stores new audit records.
type Appender interface {
	Append(rec *Record) error
}

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// AuditMiddleware records every console command as an audit record once the
// handler completed.
func AuditMiddleware(store Appender, cfg *AuditConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !isCommand(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			after := captureJSONBody(r)

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(capture, r)

			result := resultFromStatus(capture.statusCode)
			if capture.statusCode == http.StatusConflict && !cfg.LogConflicts {
				return
			}

			actorID := r.Header.Get(HeaderActorID)
			if actorID == "" {
				actorID = "anonymous"
			}

			action, targetType, targetID := describeRequest(r.Method, r.URL.Path)
			rec := &Record{
				ID:         uuid.New().String(),
				ActorID:    actorID,
				ActorEmail: r.Header.Get(HeaderActorEmail),
				Action:     action,
				TargetType: targetType,
				TargetID:   targetID,
				IPAddress:  clientIP(r),
				UserAgent:  r.UserAgent(),
				Result:     result,
				CreatedAt:  startTime,
			}
			if after != nil {
				rec.Changes = &Changes{After: after}
			}

			// Best-effort write: the command already happened.
			if err := store.Append(rec); err != nil {
				logger.Error("failed to write audit record", errs.Attr(err), "requestID", middleware.GetReqID(r.Context()))
			}
		})
	}
}

// captureJSONBody reads a JSON object body and restores it for the handler.
func captureJSONBody(r *http.Request) map[string]any {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	orig := r.Body
	raw, err := io.ReadAll(io.LimitReader(orig, maxCapturedBody+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), orig), orig}
	if err != nil || len(raw) > maxCapturedBody {
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}

// resultFromStatus maps HTTP status codes to audit results. A rejected
// command that left state unchanged (409) is a warning.
func resultFromStatus(code int) Result {
	switch {
	case code >= 200 && code < 300:
		return ResultSuccess
	case code == http.StatusConflict:
		return ResultWarning
	default:
		return ResultFailure
	}
}
