// internal/app/features/ledger/routes.go
package ledgerfeature

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for the ledger feature. Callers guard it.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeRecent)
	r.Get("/stats", h.ServeStats)
	r.Get("/{requestID}", h.ServeDetail)

	return r
}
