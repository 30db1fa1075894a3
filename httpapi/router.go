// Package httpapi exposes spec.md §6's HTTP surface: health/readiness
// checks and on-demand report generation, built on a chi middleware chain
// of security headers, request ID, recoverer, request logger, and body
// size limit. The CORS middleware in package middleware is not installed.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	gwmw "github.com/ghillie/ghillie/middleware"
	"github.com/ghillie/ghillie/observability"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

// NewRouter builds the HTTP surface. metrics may be nil to disable /metrics.
func NewRouter(log zerolog.Logger, handlers *Handlers, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(gwmw.SecurityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(log))
	r.Use(maxBodySize(maxRequestBodyBytes))

	r.Get("/health", handlers.Health)
	r.Get("/ready", handlers.Ready)
	r.Post("/reports/repositories/{owner}/{name}", handlers.GenerateReport)
	if metrics != nil {
		r.Get("/metrics", metrics.Handler())
	}

	return r
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
