// internal/app/features/status/handler.go
package status

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/certcheck"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var startTime = time.Now()

// Setting is one configuration value shown on the status report. Secret
// values are masked.
type Setting struct {
	Name   string
	Value  string
	Secret bool
}

// Config wires a Handler.
type Config struct {
	Client *mongo.Client
	// CertDomain, when set, is checked for TLS certificate expiry.
	CertDomain  string
	BlobBackend string
	// Jobs reports the background jobs. May be nil.
	Jobs func() []tasks.JobStatus
	// RunJob triggers one job out of schedule. May be nil.
	RunJob   func(ctx context.Context, name string) error
	Settings []Setting
	Logger   *zap.Logger
}

// Handler reports process, database and configuration status.
type Handler struct {
	cfg Config
}

// NewHandler creates a new status Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

type dbStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	PingMS    int64  `json:"ping_ms,omitempty"`
	Version   string `json:"version,omitempty"`
}

type runtimeStatus struct {
	GoVersion     string `json:"go_version"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Goroutines    int    `json:"goroutines"`
	MemAllocBytes uint64 `json:"mem_alloc_bytes"`
}

// Report is the GET / response body.
type Report struct {
	Runtime     runtimeStatus      `json:"runtime"`
	Database    dbStatus           `json:"database"`
	BlobBackend string             `json:"blob_backend"`
	Jobs        []tasks.JobStatus   `json:"jobs"`
	Certificate *certcheck.CertInfo `json:"certificate,omitempty"`
	Config      map[string]string  `json:"config"`
}

// Serve handles GET /.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := time.Since(startTime)

	rep := Report{
		Runtime: runtimeStatus{
			GoVersion:     runtime.Version(),
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: int64(uptime.Seconds()),
			Goroutines:    runtime.NumGoroutine(),
			MemAllocBytes: m.Alloc,
		},
		Database:    h.checkDB(ctx),
		BlobBackend: h.cfg.BlobBackend,
		Jobs:        []tasks.JobStatus{},
		Config:      make(map[string]string, len(h.cfg.Settings)),
	}
	if h.cfg.Jobs != nil {
		rep.Jobs = h.cfg.Jobs()
	}
	if h.cfg.CertDomain != "" {
		info := certcheck.Check(h.cfg.CertDomain)
		rep.Certificate = &info
	}
	for _, s := range h.cfg.Settings {
		v := s.Value
		if s.Secret {
			v = mask(v)
		}
		rep.Config[s.Name] = v
	}

	jsonutil.OK(w, rep)
}

// RunJob handles POST /jobs/{name}/run. The run uses the request context,
// so it is bounded by the ops route timeout.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h.cfg.RunJob == nil {
		jsonutil.NotFound(w, "no background jobs")
		return
	}
	name := chi.URLParam(r, "name")
	start := time.Now()
	err := h.cfg.RunJob(r.Context(), name)
	switch {
	case errors.Is(err, tasks.ErrUnknownJob):
		jsonutil.NotFound(w, "unknown job")
		return
	case err != nil:
		h.cfg.Logger.Warn("status: manual job run failed", zap.String("job", name), zap.Error(err))
		jsonutil.JSON(w, http.StatusBadGateway, map[string]string{"job": name, "error": err.Error()})
		return
	}
	h.cfg.Logger.Info("status: manual job run", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	jsonutil.OK(w, map[string]any{"job": name, "duration_ms": time.Since(start).Milliseconds()})
}

func (h *Handler) checkDB(ctx context.Context) dbStatus {
	start := time.Now()
	if err := h.cfg.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.cfg.Logger.Warn("status: database ping failed", zap.Error(err))
		return dbStatus{Error: err.Error()}
	}
	st := dbStatus{Connected: true, PingMS: time.Since(start).Milliseconds()}

	var info bson.M
	if err := h.cfg.Client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info); err == nil {
		if v, ok := info["version"].(string); ok {
			st.Version = v
		}
	}
	return st
}

// mask keeps the first and last two characters of long secrets.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
