// internal/app/system/ledger/middleware.go
// Package ledger records API requests that fail, with the error class and
// message the handler reported, so a user's "it didn't work" can be traced
// by request id.
package ledger

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	ledgerstore "github.com/dalemusser/stratadrive/internal/app/store/ledger"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/network"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the ledger request id back to the client.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const ctxKeyEntry ctxKey = iota

// Recorder persists entries. *ledgerstore.Store implements it.
type Recorder interface {
	Create(ctx context.Context, entry ledgerstore.Entry) error
}

// Config holds configuration for the ledger middleware.
type Config struct {
	Store  Recorder
	Logger *zap.Logger

	// OnlyErrors skips entries with status < 400.
	OnlyErrors bool

	// ExcludePaths is a list of path prefixes that are never recorded.
	ExcludePaths []string
}

// entryBox lets handlers deeper in the chain annotate the entry.
type entryBox struct {
	mu    sync.Mutex
	entry ledgerstore.Entry
}

// Middleware returns HTTP middleware that records requests to the ledger.
// Entries are written after the response, off the request goroutine.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cfg.ExcludePaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			start := time.Now()
			box := &entryBox{entry: ledgerstore.Entry{
				RequestID: requestID,
				Method:    r.Method,
				Path:      r.URL.Path,
				Query:     r.URL.RawQuery,
				RemoteIP:  network.GetClientIP(r),
				StartedAt: start,
			}}

			wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), ctxKeyEntry, box)))

			if cfg.OnlyErrors && wrapped.statusCode < 400 {
				return
			}

			box.mu.Lock()
			entry := box.entry
			box.mu.Unlock()

			entry.StatusCode = wrapped.statusCode
			entry.ResponseSize = wrapped.bytesWritten
			entry.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
			if entry.StatusCode >= 400 && entry.ErrorClass == "" {
				entry.ErrorClass = classify(entry.StatusCode)
			}

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := cfg.Store.Create(ctx, entry); err != nil {
					cfg.Logger.Error("failed to store ledger entry",
						zap.String("request_id", requestID),
						zap.Error(err))
				}
			}()
		})
	}
}

// TagUser copies the authenticated caller onto the entry. Mount it after
// the auth middleware.
func TagUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := auth.CurrentUser(r); ok {
			update(r.Context(), func(e *ledgerstore.Entry) { e.UserID = u.ID.Hex() })
		}
		next.ServeHTTP(w, r)
	})
}

// SetError annotates the current entry with the failing operation, its
// error class and the message sent to the client. It is a no-op outside
// the middleware.
func SetError(ctx context.Context, op, class, message string) {
	update(ctx, func(e *ledgerstore.Entry) {
		e.Operation = op
		e.ErrorClass = class
		e.ErrorMessage = message
	})
}

// RequestID returns the ledger request id for ctx, or "".
func RequestID(ctx context.Context) string {
	var id string
	update(ctx, func(e *ledgerstore.Entry) { id = e.RequestID })
	return id
}

func update(ctx context.Context, fn func(*ledgerstore.Entry)) {
	box, ok := ctx.Value(ctxKeyEntry).(*entryBox)
	if !ok {
		return
	}
	box.mu.Lock()
	fn(&box.entry)
	box.mu.Unlock()
}

func classify(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "validation"
	case status == http.StatusUnauthorized:
		return "auth"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusRequestEntityTooLarge:
		return "too_large"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "internal"
	default:
		return "client_error"
	}
}

// responseWrapper captures status code and bytes written.
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
