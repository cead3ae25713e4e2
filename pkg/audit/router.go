package audit

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the audit API.
func Router(reader *Reader) chi.Router {
	r := chi.NewRouter()

	r.Get("/logs", ListLogsHandler(reader))
	r.Get("/logs:export", ExportLogsHandler(reader))
	r.Get("/logs/{id}", GetLogHandler(reader))
	r.Get("/logs/{id}/diff", DiffLogHandler(reader))

	return r
}
