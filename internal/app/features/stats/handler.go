// internal/app/features/stats/handler.go
package statsfeature

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	statsstore "github.com/dalemusser/stratadrive/internal/app/store/stats"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultDays = 30
	maxDays     = 366
)

// Handler serves drive-wide totals, live and by day.
type Handler struct {
	svc    *drive.Service
	store  *statsstore.Store
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a new stats handler.
func NewHandler(svc *drive.Service, store *statsstore.Store, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, store: store, errLog: errLog, logger: logger}
}

// Routes returns a chi.Router with stats routes mounted. Callers guard it.
//
//   - GET /        live totals
//   - GET /daily   daily snapshots (?days=30)
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeTotals)
	r.Get("/daily", h.ServeDaily)
	return r
}

// ServeTotals handles GET /.
func (h *Handler) ServeTotals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	totals, err := h.svc.Totals(ctx)
	if err != nil {
		h.errLog.Respond(w, r, "count drive totals", err)
		return
	}
	jsonutil.OK(w, totals)
}

// ServeDaily handles GET /daily.
func (h *Handler) ServeDaily(w http.ResponseWriter, r *http.Request) {
	days := defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonutil.BadRequest(w, "days must be a positive integer")
			return
		}
		days = min(n, maxDays)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	now := time.Now()
	out, err := h.store.GetRange(ctx, statsstore.TypeDrive, now.AddDate(0, 0, -(days-1)), now)
	if err != nil {
		h.errLog.Respond(w, r, "list daily stats", err)
		return
	}
	jsonutil.OK(w, out)
}
