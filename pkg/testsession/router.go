package testsession

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the test session API.
func Router(engine *Engine) chi.Router {
	r := chi.NewRouter()

	r.Post("/start", StartFullHandler(engine))
	r.Post("/step/{moduleId}", StartStepHandler(engine))
	r.Post("/stop", StopHandler(engine))
	r.Post("/reset", ResetHandler(engine))
	r.Get("/status", StatusHandler(engine))
	r.Get("/results", ResultsHandler(engine))
	r.Get("/history", HistoryHandler(engine))
	r.Get("/modules", ModulesHandler())

	return r
}
