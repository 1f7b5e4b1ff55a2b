package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Recorder observes one completed HTTP request (method, matched route
// pattern, status, latency) — implemented by *metrics.Metrics.
type Recorder interface {
	ObserveHTTPRequest(method, path, status string, d time.Duration)
}

// Metrics records http_requests_total / http_request_duration_seconds
// for every request, labeled by the chi route pattern rather than the
// raw path so per-service URLs don't create unbounded label cardinality.
func Metrics(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			status := ww.status
			if status == 0 {
				status = http.StatusOK
			}
			rec.ObserveHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start))
		})
	}
}
