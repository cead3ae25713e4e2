package monitoring

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the monitoring API.
func Router(s *Scheduler) chi.Router {
	r := chi.NewRouter()

	r.Get("/snapshots", ListSnapshotsHandler(s))
	r.Get("/snapshots/{kind}", GetSnapshotHandler(s))
	r.Post("/snapshots/{kind}:refresh", RefreshHandler(s))
	r.Post("/refresh", RefreshAllHandler(s))
	r.Get("/config", GetConfigHandler(s))
	r.Put("/config", UpdateConfigHandler(s))

	return r
}
