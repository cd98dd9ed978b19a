package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SyedDaiam9101/intent-service/internal/handler"
)

func get(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	hs := health.NewServer()
	mux := newMux(hs)

	// The overall status starts SERVING; the classifier is unknown until registered
	if rec := get(t, mux, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("Expected /healthz 200, got %d", rec.Code)
	}
	if rec := get(t, mux, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /readyz 503 before the service is marked serving, got %d", rec.Code)
	}

	hs.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if rec := get(t, mux, "/readyz"); rec.Code != http.StatusOK || rec.Body.String() != "Ready" {
		t.Errorf("Expected /readyz 200 Ready, got %d %q", rec.Code, rec.Body.String())
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if rec := get(t, mux, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /healthz 503 after NOT_SERVING, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newMux(health.NewServer()), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected /metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("Expected default Go collectors in /metrics output")
	}
}
