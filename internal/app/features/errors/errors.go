// internal/app/features/errors/errors.go
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/ledger"
	"go.uber.org/zap"
)

// ErrorLogger wraps the zap logger for error logging.
type ErrorLogger struct {
	logger *zap.Logger
}

// NewErrorLogger creates a new ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

// Log logs an error with the given message and error.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error) {
	e.logger.Error(msg,
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	)
}

// LogWithFields logs an error with additional fields.
func (e *ErrorLogger) LogWithFields(r *http.Request, msg string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	}, fields...)
	e.logger.Error(msg, allFields...)
}

// Respond writes err as a JSON error body. A *drive.Error maps to the status
// of its kind and its user-facing message; anything else is logged and
// reported as a 500 without detail. The request ledger, when mounted, gets
// the operation and kind.
func (e *ErrorLogger) Respond(w http.ResponseWriter, r *http.Request, op string, err error) {
	var de *drive.Error
	if !stderrors.As(err, &de) {
		e.Log(r, op+" failed", err)
		ledger.SetError(r.Context(), op, drive.KindUnknown.String(), err.Error())
		jsonutil.InternalError(w, "server error")
		return
	}

	status := de.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		e.LogWithFields(r, op+" failed", err, zap.String("kind", de.Kind.String()))
	}
	ledger.SetError(r.Context(), op, de.Kind.String(), de.Msg)
	jsonutil.Error(w, status, de.Msg)
}

// Handler provides JSON fallbacks for unmatched routes.
type Handler struct{}

// NewHandler creates a new error Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// NotFound writes a 404 JSON body.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	jsonutil.NotFound(w, "route not found")
}

// MethodNotAllowed writes a 405 JSON body.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	jsonutil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
}
