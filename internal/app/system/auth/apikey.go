package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// StaticBearer returns middleware that guards an operational endpoint
// (e.g. /metrics) with a fixed bearer token: "Authorization: Bearer <token>".
//
// An empty token disables the check, so scrapers inside a private network
// can reach the endpoint without credentials.
func StaticBearer(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	if token == "" {
		logger.Info("static bearer not configured; endpoint is unauthenticated")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Debug("request rejected: missing or malformed Authorization header",
					zap.String("path", r.URL.Path),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
				logger.Warn("request rejected: invalid bearer token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
