// internal/app/features/ledger/handler.go
package ledgerfeature

import (
	"context"
	"net/http"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	ledgerstore "github.com/dalemusser/stratadrive/internal/app/store/ledger"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// defaultStatsWindow is used when /stats has no since parameter.
const defaultStatsWindow = 24 * time.Hour

// Handler serves read-only views of the failed-request ledger.
type Handler struct {
	store  *ledgerstore.Store
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a new ledger handler.
func NewHandler(store *ledgerstore.Store, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{store: store, errLog: errLog, logger: logger}
}

type statsResponse struct {
	Since   time.Time        `json:"since"`
	Total   int64            `json:"total"`
	ByClass map[string]int64 `json:"by_class"`
}

// ServeRecent handles GET / - the most recent failures, newest first.
// ?limit= is clamped by the store.
func (h *Handler) ServeRecent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.store.RecentErrors(ctx, limit)
	if err != nil {
		h.errLog.Respond(w, r, "list ledger entries", err)
		return
	}
	jsonutil.OK(w, entries)
}

// ServeStats handles GET /stats - failure counts per error class.
// ?since= is a duration such as 1h or 168h.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			jsonutil.BadRequest(w, "since must be a positive duration")
			return
		}
		window = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	since := time.Now().Add(-window)
	counts, err := h.store.CountByErrorClass(ctx, since)
	if err != nil {
		h.errLog.Respond(w, r, "count ledger entries", err)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	jsonutil.OK(w, statsResponse{Since: since, Total: total, ByClass: counts})
}

// ServeDetail handles GET /{requestID}.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	entry, err := h.store.GetByRequestID(ctx, chi.URLParam(r, "requestID"))
	if err == mongo.ErrNoDocuments {
		jsonutil.NotFound(w, "no ledger entry for that request id")
		return
	}
	if err != nil {
		h.errLog.Respond(w, r, "get ledger entry", err)
		return
	}
	jsonutil.OK(w, entry)
}
