// cmd/intentd/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/intent-service/internal/app"
	"github.com/SyedDaiam9101/intent-service/internal/config"
	"github.com/SyedDaiam9101/intent-service/internal/handler"
	"github.com/SyedDaiam9101/intent-service/internal/logging"
	"github.com/SyedDaiam9101/intent-service/internal/metrics"
	"github.com/SyedDaiam9101/intent-service/internal/middleware"
)

const serviceName = "intent-service"

// drainDelay gives load balancers time to see NOT_SERVING before the listener closes
const drainDelay = 5 * time.Second

func main() {
	// Parse command-line flags
	port := flag.Int("port", 0, "gRPC server port (default: 50051)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	modelPath := flag.String("model", "", "Path to ONNX model file")
	tokenizerPath := flag.String("tokenizer", "", "Path to tokenizer.json or vocab.txt")
	labelsPath := flag.String("labels", "", "Path to a label table (json, yaml or toml)")
	redisAddr := flag.String("redis", "", "Redis address; enables the result cache")
	configFile := flag.String("config", "", "Path to config file (optional)")
	useMock := flag.Bool("mock", false, "Use mock inference engine (for testing)")
	flag.Parse()

	v, err := config.Open(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "intentd: %v\n", err)
		os.Exit(1)
	}

	// Override with flags if provided
	if *port > 0 {
		v.Set("port", *port)
	}
	if *metricsPort > 0 {
		v.Set("metrics_port", *metricsPort)
	}
	if *modelPath != "" {
		v.Set("model", *modelPath)
	}
	if *tokenizerPath != "" {
		v.Set("tokenizer", *tokenizerPath)
	}
	if *labelsPath != "" {
		v.Set("labels", *labelsPath)
	}
	if *redisAddr != "" {
		v.Set("redis", *redisAddr)
		v.Set("cache_enabled", true)
	}
	if *useMock {
		v.Set("use_mock_inference", true)
	}

	cfg, err := config.Decode(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "intentd: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("service", serviceName).
		Int("port", cfg.Port).
		Int("metrics_port", cfg.MetricsPort).
		Str("model", cfg.Model).
		Str("tokenizer", cfg.Tokenizer).
		Bool("cache", cfg.CacheEnabled).
		Bool("otel", cfg.OTELEnabled).
		Msg("starting")

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = app.InitTracer(serviceName, os.Stdout)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize tracer")
		} else {
			log.Info().Str("endpoint", cfg.OTELEndpoint).Msg("OpenTelemetry tracing enabled (stdout exporter)")
		}
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.Build(startCtx, cfg, log)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start classifier")
	}
	defer a.Close()

	// Create gRPC health server
	healthServer := health.NewServer()

	// Start HTTP server for metrics and health checks
	httpServer := newHTTPServer(cfg.MetricsPort, healthServer)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening (metrics, health)")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Build interceptor chain
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(log),
		middleware.UnaryMetricsInterceptor(),
		middleware.UnaryLoggingInterceptor(),
	}

	serverOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if cfg.OTELEnabled {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	grpcServer := grpc.NewServer(serverOpts...)

	handler.Register(grpcServer, handler.New(a.Classifier))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Enable server reflection for debugging
	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("failed to listen")
	}

	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

		healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		time.Sleep(drainDelay)

		grpcServer.GracefulStop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown")
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("tracer shutdown")
			}
		}
	}()

	log.Info().Str("addr", addr).Msg("gRPC server listening")

	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal().Err(err).Msg("failed to serve")
	}

	log.Info().Msg("server shutdown complete")
}
