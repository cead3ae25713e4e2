package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// ListHandler handles GET /alerts
// Query params: severity, includeResolved
func ListHandler(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{Severity: Severity(r.URL.Query().Get("severity"))}
		switch filter.Severity {
		case "", SeverityCritical, SeverityWarning, SeverityInfo:
		default:
			writeErr(w, errs.Invalid("unknown severity %q", filter.Severity))
			return
		}
		if v := r.URL.Query().Get("includeResolved"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeErr(w, errs.Invalid("includeResolved must be a boolean"))
				return
			}
			filter.IncludeResolved = b
		}

		writeJSON(w, http.StatusOK, p.List(filter))
	}
}

// AcknowledgeHandler handles POST /alerts/{id}:acknowledge
func AcknowledgeHandler(p *Pipeline) http.HandlerFunc {
	return actionHandler(p.Acknowledge, "acknowledged")
}

// ResolveHandler handles POST /alerts/{id}:resolve
func ResolveHandler(p *Pipeline) http.HandlerFunc {
	return actionHandler(p.Resolve, "resolved")
}

// DeleteHandler handles DELETE /alerts/{id}
func DeleteHandler(p *Pipeline) http.HandlerFunc {
	return actionHandler(p.Delete, "deleted")
}

func actionHandler(action func(ctx context.Context, id string) error, done string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeErr(w, errs.Invalid("missing alert ID"))
			return
		}
		if err := action(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  done,
			"alertId": id,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(err), map[string]string{
		"error": err.Error(),
		"code":  errs.Code(err),
	})
}
