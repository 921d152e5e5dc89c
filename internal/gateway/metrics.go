package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleMetrics serves the Prometheus exposition endpoint. It prefers the
// registry published as "observability.registry" and falls back to the
// process-wide default gatherer.
func (g *Gateway) handleMetrics() http.HandlerFunc {
	gatherer := g.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return h.ServeHTTP
}

// metricsMiddleware observes every request. Requests are attributed to the
// chi route pattern ("/api/sessions/{id}"), not the raw path, to bound label
// cardinality.
func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(status), time.Since(start))
	})
}
