package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-gateway/config"
	httpHandler "webhook-gateway/internal/adapter/http/handler"
	pgStorage "webhook-gateway/internal/adapter/storage/postgres"
	redisStorage "webhook-gateway/internal/adapter/storage/redis"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/metrics"
	"webhook-gateway/internal/service"
	"webhook-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Webhook Gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	endpointRepo := pgStorage.NewEndpointRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	attemptRepo := pgStorage.NewAttemptRepo(pool)

	// Initialize Redis stores
	dedupeStore := redisStorage.NewDedupeStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	envelopes := service.NewEnvelopeBuilder(sigSvc)

	// Initialize business services
	endpointSvc := service.NewEndpointService(endpointRepo, attemptRepo, encSvc, cfg.Delivery.AllowInsecureURLs, log)
	scheduler := service.NewRetryScheduler(attemptRepo, endpointRepo, service.RetryPolicy{
		MaxAttempts:      cfg.Delivery.MaxAttempts,
		BackoffBase:      cfg.Delivery.BackoffBase,
		BackoffMax:       cfg.Delivery.BackoffMax,
		JitterFraction:   cfg.Delivery.JitterFraction,
		DisableThreshold: cfg.Delivery.DisableThreshold,
	}, log)
	dispatchSvc := service.NewDispatchService(
		endpointRepo,
		eventRepo,
		attemptRepo,
		dedupeStore,
		encSvc,
		envelopes,
		scheduler,
		&http.Client{Timeout: cfg.Delivery.HTTPTimeout},
		service.DeliveryOptions{
			SnippetMaxBytes: cfg.Delivery.SnippetMaxBytes,
			DedupeTTL:       cfg.Delivery.DedupeTTL,
		},
		log,
	)
	deliverySvc := service.NewDeliveryService(endpointRepo, attemptRepo, log)

	// Register Prometheus metrics
	metrics.Register()

	// Start the retry sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeper := service.NewSweeper(attemptRepo, dispatchSvc, scheduler, service.SweepOptions{
		Interval:   cfg.Sweep.Interval,
		BatchSize:  cfg.Sweep.BatchSize,
		Workers:    cfg.Sweep.Workers,
		StuckAfter: cfg.Sweep.StuckAfter,
	}, log)
	sweeperDone := make(chan struct{})
	go func() {
		sweeper.Run(sweepCtx)
		close(sweeperDone)
	}()

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		EndpointSvc:    endpointSvc,
		DispatchSvc:    dispatchSvc,
		DeliverySvc:    deliverySvc,
		TokenSvc:       tokenSvc,
		SigSvc:         sigSvc,
		ProducerKey:    cfg.Producer.Key,
		ProducerDrift:  cfg.Producer.MaxDrift,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the sweeper after the API quiesces so in-flight retries finish.
	stopSweeper()
	<-sweeperDone

	log.Info().Msg("Server exited")
}
