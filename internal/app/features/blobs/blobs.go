// Package blobs serves signed download links for the local blob backend.
// Requests carry no session; the token in ?t= is the credential.
package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Opener resolves a download token to the blob's content.
// *blobstore.Local implements it.
type Opener interface {
	Open(ctx context.Context, token string) (io.ReadCloser, string, error)
}

// Handler serves blob downloads.
type Handler struct {
	blobs  Opener
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a new blobs Handler.
func NewHandler(blobs Opener, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{blobs: blobs, errLog: errLog, logger: logger}
}

// Routes mounts GET / (token in ?t=).
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.serve)
	return r
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("t")
	if token == "" {
		jsonutil.Forbidden(w, blobstore.ErrBadToken.Error())
		return
	}

	rc, name, err := h.blobs.Open(r.Context(), token)
	switch {
	case errors.Is(err, blobstore.ErrBadToken):
		jsonutil.Forbidden(w, err.Error())
		return
	case errors.Is(err, blobstore.ErrNotFound):
		jsonutil.NotFound(w, "file not found")
		return
	case err != nil:
		h.errLog.Log(r, "open blob", err)
		jsonutil.Error(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	defer rc.Close()

	filename := downloadName(name)
	ct := mime.TypeByExtension(path.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; all we can do is log.
		h.logger.Warn("blob download interrupted", zap.String("blob", name), zap.Error(err))
	}
}

// downloadName strips the owner directory and the uuid prefix from an
// object name built by blobstore.ObjectName.
func downloadName(object string) string {
	base := path.Base(object)
	// "<36-char uuid>-<name>"
	if len(base) > 37 && base[36] == '-' {
		return base[37:]
	}
	if base == "." || base == "/" {
		return fmt.Sprintf("download%s", path.Ext(object))
	}
	return base
}
