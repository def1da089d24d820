package server

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidebet/relayer/core"
)

var rateLimitedErr = core.NewError(core.KindRateLimited, "rate limit exceeded")

// requestLogger writes basic request info using structured logging, the
// same fields-then-Info shape as cmd/xchainserver/server.RequestLogger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("handled request")
	})
}

// jsonHeaders sets Content-Type application/json for every response.
func jsonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// cors applies a simple allow-list CORS policy, following the
// ALLOWED_ORIGINS configuration from spec.md §6. An empty list permits
// every origin, matching the teacher's permissive defaults for locally-run
// servers.
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireDevelopment guards dev-only endpoints (DELETE /api/attestations/:market).
func requireDevelopment(isDevelopment func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isDevelopment() {
				writeError(w, core.NewError(core.KindValidation, "this endpoint is only available in a development environment"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
