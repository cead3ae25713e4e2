package audit

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// ListLogsHandler handles GET /audit/logs
// Query params: actorId, action, targetType, search, from, to, page, limit
func ListLogsHandler(reader *Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := FilterFromQuery(r.URL.Query())
		if err != nil {
			writeErr(w, err)
			return
		}

		res, err := reader.List(r.Context(), filter)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GetLogHandler handles GET /audit/logs/{id}
func GetLogHandler(reader *Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := reader.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// DiffLogHandler handles GET /audit/logs/{id}/diff
func DiffLogHandler(reader *Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		changes, err := reader.Diff(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      id,
			"changes": changes,
		})
	}
}

// ExportLogsHandler handles GET /audit/logs:export
// Same query params as ListLogsHandler; paging is ignored.
func ExportLogsHandler(reader *Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := FilterFromQuery(r.URL.Query())
		if err != nil {
			writeErr(w, err)
			return
		}

		// Export writes nothing on failure, so headers are only committed on success.
		ew := &exportWriter{w: w}
		if err := reader.Export(r.Context(), filter, ew); err != nil && !ew.started {
			writeErr(w, err)
		}
	}
}

type exportWriter struct {
	w       http.ResponseWriter
	started bool
}

func (e *exportWriter) Write(p []byte) (int, error) {
	if !e.started {
		e.started = true
		e.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		e.w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)
		e.w.WriteHeader(http.StatusOK)
	}
	return e.w.Write(p)
}

// FilterFromQuery parses list and export filters. Dates are RFC 3339.
func FilterFromQuery(q url.Values) (Filter, error) {
	f := Filter{
		ActorID:    q.Get("actorId"),
		Action:     q.Get("action"),
		TargetType: q.Get("targetType"),
		Search:     q.Get("search"),
	}

	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(p.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return Filter{}, errs.Invalid("%s must be an RFC 3339 timestamp", p.key)
			}
			*p.dst = &t
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Filter{}, errs.Invalid("to must not be before from")
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Filter{}, errs.Invalid("page must be a positive integer")
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Filter{}, errs.Invalid("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

// Query encodes f back into query parameters.
func (f Filter) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("actorId", f.ActorID)
	set("action", f.Action)
	set("targetType", f.TargetType)
	set("search", f.Search)
	if f.From != nil {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
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
