package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	g := &Gateway{metrics: observability.NewMetrics(reg)}

	r := chi.NewRouter()
	r.Use(g.metricsMiddleware)
	r.Get("/api/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc123", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	got := testutil.ToFloat64(
		g.metrics.HTTPRequests.WithLabelValues("GET", "/api/sessions/{id}", "200"),
	)
	if got != 1 {
		t.Errorf("request count = %v, want 1 (pattern label, not raw path)", got)
	}
}

func TestMetricsMiddleware_ImplicitOK(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	g := &Gateway{metrics: observability.NewMetrics(reg)}

	r := chi.NewRouter()
	r.Use(g.metricsMiddleware)
	// Handler writes a body without calling WriteHeader.
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	got := testutil.ToFloat64(g.metrics.HTTPRequests.WithLabelValues("GET", "/ping", "200"))
	if got != 1 {
		t.Errorf("request count = %v, want 1", got)
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	g := &Gateway{metrics: observability.NewMetrics(reg)}

	r := chi.NewRouter()
	r.Use(g.metricsMiddleware)
	r.Get("/known", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}

	got := testutil.ToFloat64(g.metrics.HTTPRequests.WithLabelValues("GET", "unmatched", "404"))
	if got != 1 {
		t.Errorf("request count = %v, want 1 under the unmatched label", got)
	}
}

func TestMetricsMiddleware_NilMetricsPassthrough(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	r := chi.NewRouter()
	r.Use(g.metricsMiddleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}
}

func TestHandleMetrics_ServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.QueueDecision("admitted")

	g := &Gateway{metrics: m, gatherer: reg}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	g.handleMetrics().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	body, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `parley_queue_decisions_total{decision="admitted"} 1`) {
		t.Errorf("exposition missing queue decision counter:\n%s", body)
	}
}

func TestHandleMetrics_DefaultGathererFallback(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	g.handleMetrics().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("default gatherer exposition should not be empty")
	}
}
