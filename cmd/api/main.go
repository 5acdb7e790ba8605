package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "edumod/docs" // This is for Swagger
	"edumod/internal/analyzer"
	"edumod/internal/auth"
	"edumod/internal/config"
	"edumod/internal/handlers"
	"edumod/internal/logger"
	"edumod/internal/metrics"
	"edumod/internal/middleware"
	"edumod/internal/roles"
	"edumod/internal/scheduler"
	"edumod/internal/service"
	"edumod/internal/workflow"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

// @title Educational Content Moderation API
// @version 1.0
// @description Tiered moderation pipeline for educational community content
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@edumod.example

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	log := logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, checks, closeStore, err := openStore(ctx, &cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Sealing of unredacted originals (if Vault is enabled)
	sealer, err := openSealer(ctx, &cfg.Vault, checks)
	if err != nil {
		slog.Error("Failed to initialize Vault client", "error", err)
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		slog.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Event delivery
	notifier := newNotifier(&cfg.Notify, &cfg.Email, log)
	// deliveries outlive the signal context; Stop bounds the drain
	notifier.Start(context.Background())

	// Pattern library and analyzer
	library, err := loadPatterns(cfg.Moderation.PatternFile)
	if err != nil {
		slog.Error("Failed to load pattern library", "path", cfg.Moderation.PatternFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Pattern library loaded", "version", library.Version(), "patterns", len(library.All()))
	contentAnalyzer := analyzer.New(library, analyzer.WithMaxBodyLength(cfg.Moderation.MaxBodyLength))

	// Initialize services
	rolesRegistry := roles.DefaultRegistry()
	authService := auth.NewService(&cfg.JWT)
	queueOpts := []service.QueueOption{
		service.WithPublisher(notifier.Publisher()),
		service.WithMetrics(m),
		service.WithLogger(log),
		service.WithCASRetries(cfg.Moderation.CASRetries),
		service.WithSweepBatchSize(cfg.Scheduler.SweepBatchSize),
	}
	if sealer != nil {
		queueOpts = append(queueOpts, service.WithSealer(sealer))
	}
	queueService := service.NewQueueService(store, rolesRegistry, workflow.Default(), queueOpts...)
	submissionService := service.NewSubmissionService(contentAnalyzer, queueService, sealer, cfg.Moderation.AuditSampleRate)
	moderatorService := service.NewModeratorService(store, rolesRegistry)

	// Initialize scheduler
	var sweeper *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sweeper, err = scheduler.NewScheduler(queueService, &cfg.Scheduler, log)
		if err != nil {
			slog.Error("Failed to initialize scheduler", "error", err)
			os.Exit(1)
		}
		sweeper.Start()
	} else {
		slog.Warn("Scheduler is disabled - overdue reviews will not be escalated")
	}

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(authService, moderatorService)
	rbacMw := middleware.NewRBACMiddleware(rolesRegistry)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)

	// Setup router
	api := &handlers.API{
		Submissions: handlers.NewSubmissionHandler(submissionService),
		Queue:       handlers.NewQueueHandler(queueService),
		Oversight:   handlers.NewOversightHandler(queueService),
		Moderators:  handlers.NewModeratorHandler(moderatorService, authService, cfg.JWT.Expiration),
		Health:      handlers.NewHealthHandler(cfg.App.Version, checks),
		Auth:        authMw,
		RBAC:        rbacMw,
		Limiter:     rateLimiter,
	}
	if notifier.hub != nil {
		api.Stream = handlers.NewStreamHandler(notifier.hub)
	}

	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(mux),
		),
	)

	// Create server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Wait for interrupt signal to gracefully shut down the server
		<-gctx.Done()
		slog.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if sweeper != nil {
			errs = append(errs, sweeper.Stop(shutdownCtx))
		}
		// websocket connections are hijacked and not tracked by Shutdown
		notifier.CloseStreams()
		errs = append(errs, server.Shutdown(shutdownCtx))
		rateLimiter.Stop()
		notifier.Stop(shutdownCtx)
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
