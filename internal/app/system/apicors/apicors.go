// Package apicors provides CORS middleware for the bearer-token JSON API.
//
// Tokens travel in headers, never cookies, so credentials are not allowed
// and any origin may be accepted unless the deployment restricts it.
package apicors

import (
	"net/http"
	"strings"
)

const (
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders  = "Authorization, Content-Type, Accept, X-Auth-Token, X-Request-ID"
	exposeHeaders = "X-Request-ID"
)

// Middleware returns CORS middleware for /api. With no origins every origin
// is allowed; otherwise only the listed origins get CORS headers.
//
//	r.Route("/api", func(r chi.Router) {
//	    r.Use(apicors.Middleware(appCfg.CORSAllowedOrigins...))
//	    ...
//	})
func Middleware(allowedOrigins ...string) func(http.Handler) http.Handler {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			originSet[o] = struct{}{}
		}
	}
	wildcard := len(originSet) == 0
	if _, ok := originSet["*"]; ok {
		wildcard = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				h.Add("Vary", "Origin")
				if _, ok := originSet[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
