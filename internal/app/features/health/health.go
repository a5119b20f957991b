// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const checkTimeout = 5 * time.Second

// Check is one dependency probed by /health and /ready.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Mongo probes the primary of client.
func Mongo(client *mongo.Client) Check {
	return Check{
		Name: "mongodb",
		Probe: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// Handler provides health check endpoints.
type Handler struct {
	checks []Check
	logger *zap.Logger
}

// NewHandler creates a new health check Handler.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	return &Handler{checks: checks, logger: logger}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the Kubernetes probe paths on the root router.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

func (h *Handler) run(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	resp := Response{Status: "ok", Services: make(map[string]string, len(h.checks))}
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			resp.Status = "degraded"
			resp.Services[c.Name] = "unavailable"
			h.logger.Warn("health check failed", zap.String("service", c.Name), zap.Error(err))
			continue
		}
		resp.Services[c.Name] = "ok"
	}
	return resp
}

// Health reports every dependency. 503 when any is down.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := h.run(r.Context())
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	jsonutil.JSON(w, status, resp)
}

// Ready is the readiness probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if resp := h.run(r.Context()); resp.Status != "ok" {
		jsonutil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	jsonutil.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live is the liveness probe; it never touches dependencies.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
