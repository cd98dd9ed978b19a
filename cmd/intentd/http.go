package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SyedDaiam9101/intent-service/internal/handler"
)

func newHTTPServer(port int, healthServer *health.Server) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: newMux(healthServer),
	}
}

func newMux(healthServer *health.Server) *http.ServeMux {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthCheck(healthServer, "", "OK", "Service Unavailable"))
	// Readiness tracks the classifier service rather than the process
	mux.HandleFunc("/readyz", healthCheck(healthServer, handler.ServiceName, "Ready", "Not Ready"))

	return mux
}

func healthCheck(healthServer *health.Server, service, ok, unavailable string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(unavailable))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(ok))
	}
}
