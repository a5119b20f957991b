// internal/app/features/status/routes.go
package status

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a chi.Router with status routes mounted. Callers guard it.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Serve)
	r.Post("/jobs/{name}/run", h.RunJob)
	return r
}
