package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront-gateway/internal/metrics"
)

// Metrics records request counts and latency per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := metrics.TrackInFlight()
		defer done()

		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(r.Method, route, rw.status, time.Since(start))
	})
}
