// Package main is the entry point for the flag delivery relay.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flagstream-io/feature-flag-platform/internal/config"
	"github.com/flagstream-io/feature-flag-platform/internal/eval"
	"github.com/flagstream-io/feature-flag-platform/internal/events"
	"github.com/flagstream-io/feature-flag-platform/internal/handler"
	"github.com/flagstream-io/feature-flag-platform/internal/middleware"
	"github.com/flagstream-io/feature-flag-platform/internal/sender"
	"github.com/flagstream-io/feature-flag-platform/internal/store"
	"github.com/flagstream-io/feature-flag-platform/internal/updates"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
	"github.com/flagstream-io/feature-flag-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting flag delivery relay")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "feature-flag-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS and start consuming flag updates
	featureStore := store.New()
	natsClient, err := updates.Connect(updates.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	listener := updates.NewListener(natsClient, featureStore, log)
	if err := listener.Start(ctx); err != nil {
		log.Error("failed to start update listener", zap.Error(err))
		os.Exit(1)
	}
	defer listener.Stop()

	// Start the event pipeline
	var diagnostics *events.DiagnosticsManager
	if !cfg.DiagnosticOptOut {
		diagnostics = events.NewDiagnosticsManager(cfg, time.Now())
	}
	eventSender := sender.New(cfg.EventsURI, cfg.SDKKey, log)
	processor, err := events.NewProcessor(cfg, eventSender, diagnostics, log)
	if err != nil {
		log.Error("failed to start event processor", zap.Error(err))
		os.Exit(1)
	}

	// Build the evaluator over the store
	evaluator := eval.NewEvaluator(featureStore.GetFlag, featureStore.GetSegment, nil)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(featureStore, natsClient)
	evalHandler := handler.NewEvalHandler(featureStore, evaluator, processor, log)
	flagsHandler := handler.NewFlagsHandler(featureStore, log)
	eventsHandler := handler.NewEventsHandler(processor, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/status", healthHandler.Status)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// SDK-facing routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SDKKeyAuth(cfg.SDKKey))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/evaluate", evalHandler.Evaluate)
		r.Get("/flags", flagsHandler.List)
		r.Get("/flags/{key}", flagsHandler.Get)

		r.Route("/events", func(r chi.Router) {
			r.Post("/identify", eventsHandler.Identify)
			r.Post("/custom", eventsHandler.Custom)
			r.Post("/alias", eventsHandler.Alias)
		})
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWTSecret))
		r.Use(middleware.RequireScope("events:flush"))

		r.Post("/events/flush", eventsHandler.Flush)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down relay")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Flush and stop the event pipeline last so in-flight events go out.
	processor.Stop()

	log.Info("relay stopped")
}
