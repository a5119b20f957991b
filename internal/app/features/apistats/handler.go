// internal/app/features/apistats/handler.go
package apistatsfeature

import (
	"context"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	apistatsstore "github.com/dalemusser/stratadrive/internal/app/store/apistats"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultWindow = 24 * time.Hour

// Handler serves recorded request statistics.
type Handler struct {
	store  *apistatsstore.Store
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a new API stats handler.
func NewHandler(store *apistatsstore.Store, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{store: store, errLog: errLog, logger: logger}
}

// Routes returns a chi.Router with API stats routes mounted. Callers guard it.
//
//   - GET /            totals per route group (?since=24h)
//   - GET /{statType}  buckets for one group (?since=24h)
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeSummary)
	r.Get("/{statType}", h.ServeBuckets)
	return r
}

type summaryResponse struct {
	Since  time.Time               `json:"since"`
	Groups []apistatsstore.Summary `json:"groups"`
}

type bucketsResponse struct {
	Since    time.Time              `json:"since"`
	StatType apistatsstore.StatType `json:"stat_type"`
	Buckets  []bucketView           `json:"buckets"`
}

type bucketView struct {
	apistatsstore.Bucket
	AvgMs float64 `json:"avg_ms"`
}

// ServeSummary handles GET /.
func (h *Handler) ServeSummary(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	groups, err := h.store.GetSummary(ctx, since, time.Now())
	if err != nil {
		h.errLog.Respond(w, r, "summarize api stats", err)
		return
	}
	jsonutil.OK(w, summaryResponse{Since: since, Groups: groups})
}

// ServeBuckets handles GET /{statType}.
func (h *Handler) ServeBuckets(w http.ResponseWriter, r *http.Request) {
	statType := apistatsstore.StatType(chi.URLParam(r, "statType"))
	if !statType.Valid() {
		jsonutil.NotFound(w, "unknown stat type")
		return
	}
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	buckets, err := h.store.GetRange(ctx, statType, since, time.Now())
	if err != nil {
		h.errLog.Respond(w, r, "list api stats", err)
		return
	}
	views := make([]bucketView, len(buckets))
	for i, b := range buckets {
		views[i] = bucketView{Bucket: b, AvgMs: b.AvgMs()}
	}
	jsonutil.OK(w, bucketsResponse{Since: since, StatType: statType, Buckets: views})
}

func parseSince(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	window := defaultWindow
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			jsonutil.BadRequest(w, "since must be a positive duration")
			return time.Time{}, false
		}
		window = d
	}
	return time.Now().Add(-window), true
}
