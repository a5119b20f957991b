// Package items serves the mixed folder-and-file listings: starred and trash.
package items

import (
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/system/authz"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
)

// Handler serves item listings.
type Handler struct {
	svc    *drive.Service
	errLog *errorsfeature.ErrorLogger
}

// NewHandler creates a new items Handler.
func NewHandler(svc *drive.Service, errLog *errorsfeature.ErrorLogger) *Handler {
	return &Handler{svc: svc, errLog: errLog}
}

// MountRoutes adds GET /starred and GET /trash to r. Each entry is
// {"kind": "folder"|"file", "folder"|"file": {...}}.
func MountRoutes(r chi.Router, h *Handler) {
	r.Get("/starred", h.Starred)
	r.Get("/trash", h.Trash)
}

// Starred lists the caller's starred folders and files.
func (h *Handler) Starred(w http.ResponseWriter, r *http.Request) {
	id, email, ok := authz.UserCtx(r)
	if !ok {
		jsonutil.Unauthorized(w, "authentication required")
		return
	}
	items, err := h.svc.Starred(r.Context(), drive.Requester{ID: id, Email: email})
	if err != nil {
		h.errLog.Respond(w, r, "list starred", err)
		return
	}
	jsonutil.OK(w, items)
}

// Trash lists the caller's trashed folders and files, most recent first.
func (h *Handler) Trash(w http.ResponseWriter, r *http.Request) {
	id, email, ok := authz.UserCtx(r)
	if !ok {
		jsonutil.Unauthorized(w, "authentication required")
		return
	}
	items, err := h.svc.Trash(r.Context(), drive.Requester{ID: id, Email: email})
	if err != nil {
		h.errLog.Respond(w, r, "list trash", err)
		return
	}
	jsonutil.OK(w, items)
}
