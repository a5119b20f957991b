// internal/app/features/auditlog/auditlog.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/store/audit"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	pageSize    = 50
	maxPageSize = 500
)

// Handler serves the audit trail as JSON.
type Handler struct {
	store  *audit.Store
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a new audit log Handler.
func NewHandler(store *audit.Store, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{store: store, errLog: errLog, logger: logger}
}

// Routes returns the audit router. Callers guard it.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Get("/failed-logins", h.ServeFailedLogins)
	return r
}

type listResponse struct {
	Events []audit.Event `json:"events"`
	Total  int64         `json:"total"`
	Limit  int64         `json:"limit"`
	Offset int64         `json:"offset"`
}

// ServeList handles GET / with optional filters:
// user_id, category, event_type, start and end (RFC 3339), limit, offset.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Category:  q.Get("category"),
		EventType: q.Get("event_type"),
		Limit:     pageSize,
	}

	if raw := q.Get("user_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			jsonutil.BadRequest(w, "user_id must be an object id")
			return
		}
		filter.UserID = &id
	}
	for key, dst := range map[string]**time.Time{"start": &filter.StartTime, "end": &filter.EndTime} {
		if raw := q.Get(key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				jsonutil.BadRequest(w, key+" must be an RFC 3339 time")
				return
			}
			*dst = &t
		}
	}
	if n, err := strconv.ParseInt(q.Get("limit"), 10, 64); err == nil && n > 0 {
		filter.Limit = min(n, maxPageSize)
	}
	if n, err := strconv.ParseInt(q.Get("offset"), 10, 64); err == nil && n > 0 {
		filter.Offset = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	events, err := h.store.Query(ctx, filter)
	if err != nil {
		h.errLog.Respond(w, r, "query audit log", err)
		return
	}
	total, err := h.store.Count(ctx, filter)
	if err != nil {
		h.errLog.Respond(w, r, "count audit log", err)
		return
	}

	jsonutil.OK(w, listResponse{Events: events, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// ServeFailedLogins handles GET /failed-logins?since=24h.
func (h *Handler) ServeFailedLogins(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
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

	events, err := h.store.GetFailedLogins(ctx, time.Now().Add(-window), pageSize)
	if err != nil {
		h.errLog.Respond(w, r, "list failed logins", err)
		return
	}
	jsonutil.OK(w, events)
}
