// Package apistats provides middleware that records request counts and
// latency per route group.
package apistats

import (
	"context"
	"net/http"
	"time"

	apistatsstore "github.com/dalemusser/stratadrive/internal/app/store/apistats"
	"go.uber.org/zap"
)

// Writer persists one observation. *apistatsstore.Store implements it.
type Writer interface {
	Record(ctx context.Context, statType apistatsstore.StatType, bucketSize time.Duration, durationMs int64, isError bool) error
}

// Recorder is shared by every route group. A nil *Recorder records nothing.
type Recorder struct {
	store      Writer
	logger     *zap.Logger
	bucketSize time.Duration
}

// NewRecorder creates a Recorder. bucketSize must be positive.
func NewRecorder(store Writer, bucketSize time.Duration, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, bucketSize: bucketSize}
}

// Middleware records every request under statType.
func (rec *Recorder) Middleware(statType apistatsstore.StatType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rec == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			rec.record(statType, time.Since(start).Milliseconds(), sw.status >= 400)
		})
	}
}

func (rec *Recorder) record(statType apistatsstore.StatType, durationMs int64, isError bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.store.Record(ctx, statType, rec.bucketSize, durationMs, isError); err != nil {
			rec.logger.Error("failed to record API stats",
				zap.String("stat_type", string(statType)),
				zap.Error(err))
		}
	}()
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
