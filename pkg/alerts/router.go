package alerts

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the alerts API.
func Router(p *Pipeline) chi.Router {
	r := chi.NewRouter()

	r.Get("/", ListHandler(p))
	r.Post("/{id}:acknowledge", AcknowledgeHandler(p))
	r.Post("/{id}:resolve", ResolveHandler(p))
	r.Delete("/{id}", DeleteHandler(p))

	return r
}
