package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobSeries(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("audit:record").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `ovr_jobs_total{status="success",task="audit:record"} 1`) {
		t.Fatalf("expected job counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/roles/{id}")

	req := httptest.NewRequest(http.MethodGet, "/roles/abc", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `ovr_http_requests_total{code="418",route="/roles/{id}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `ovr_http_request_duration_seconds_bucket{route="/roles/{id}"`) {
		t.Fatalf("expected duration histogram, got: %s", body)
	}
}

func TestObserveDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision(true, "ignored")
	metrics.ObserveDecision(false, "PERMISSION_DENIED")
	metrics.ObserveDecision(false, "PERMISSION_DENIED")
	metrics.ObserveDecision(false, "STORE_UNAVAILABLE")

	if got := testutil.ToFloat64(metrics.decisions.WithLabelValues("allow", "")); got != 1 {
		t.Fatalf("allow count = %v", got)
	}
	if got := testutil.ToFloat64(metrics.decisions.WithLabelValues("deny", "PERMISSION_DENIED")); got != 2 {
		t.Fatalf("permission denied count = %v", got)
	}
	if got := testutil.ToFloat64(metrics.decisions.WithLabelValues("deny", "STORE_UNAVAILABLE")); got != 1 {
		t.Fatalf("store unavailable count = %v", got)
	}
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision(false, "X")
	if err := metrics.Jobs().Track("x").End(errors.New("boom")); err == nil {
		t.Fatal("expected error to pass through")
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
