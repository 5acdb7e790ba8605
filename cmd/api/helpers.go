package main

import (
	"context"
	"fmt"
	"log/slog"

	"edumod/internal/config"
	"edumod/internal/database"
	"edumod/internal/email"
	"edumod/internal/events"
	"edumod/internal/handlers"
	"edumod/internal/patterns"
	"edumod/internal/repository"
	"edumod/internal/service"
	"edumod/internal/vault"
	"edumod/migrations"
)

// openStore connects the configured store, running migrations for postgres.
// The returned checks feed the health endpoint.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (repository.Store, map[string]handlers.HealthChecker, func(), error) {
	checks := map[string]handlers.HealthChecker{}

	if cfg.Driver == "memory" {
		slog.Warn("Using the in-memory store - data is lost on restart")
		store := repository.NewMemoryStore()
		checks["store"] = handlers.HealthCheckFunc(store.Ping)
		return store, checks, func() {}, nil
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}
	slog.Info("Database connection established")

	if cfg.AutoMigrate {
		applied, err := database.NewMigrationExecutor(db.DB, migrations.FS).RunMigrations(ctx)
		if err != nil {
			closeDB()
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("Database migrations completed", "applied", applied)
	}

	checks["database"] = handlers.HealthCheckFunc(db.HealthCheck)
	return repository.NewPostgresStore(db.DB), checks, closeDB, nil
}

// openSealer returns nil when Vault is disabled; originals are then dropped
// after redaction.
func openSealer(ctx context.Context, cfg *config.VaultConfig, checks map[string]handlers.HealthChecker) (service.Sealer, error) {
	if !cfg.Enabled {
		slog.Warn("Vault is disabled - redacted originals will not be kept")
		return nil, nil
	}

	client, err := vault.NewClient(ctx, &vault.Config{
		Address:      cfg.Address,
		Token:        cfg.Token,
		TransitMount: cfg.TransitMount,
		KeyName:      cfg.KeyName,
	})
	if err != nil {
		return nil, err
	}
	checks["vault"] = client
	slog.Info("Vault sealing enabled", "vault_addr", cfg.Address, "key", cfg.KeyName)
	return service.NewVaultSealer(client), nil
}

// loadPatterns reads a custom library or falls back to the builtin one
func loadPatterns(path string) (*patterns.Library, error) {
	if path == "" {
		return patterns.Builtin(), nil
	}
	return patterns.LoadFile(path)
}

// notifier fans queue events out to the log, websocket clients, the
// escalation webhook and the oversight mailbox
type notifier struct {
	publisher events.Multi
	hub       *events.Hub
	async     []*events.AsyncPublisher
}

func newNotifier(cfg *config.NotifyConfig, mail *config.EmailConfig, logger *slog.Logger) *notifier {
	n := &notifier{publisher: events.Multi{events.NewLogPublisher(logger)}}

	if cfg.WebSocketEnabled {
		n.hub = events.NewHub(cfg.WebSocketBuffer, logger,
			events.WithAllowedOrigins(cfg.WebSocketOrigins),
			events.WithPingInterval(cfg.WebSocketPingEach),
		)
		n.publisher = append(n.publisher, events.Filter(n.hub, events.EscalationRaised))
	}

	if cfg.WebhookURL != "" {
		n.deliver("escalation-webhook", events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookTimeout), cfg, logger)
		slog.Info("Escalation webhook enabled", "url", cfg.WebhookURL)
	}
	if mailer := email.NewService(mail); mailer.Enabled() {
		n.deliver("escalation-email", mailer, cfg, logger)
		slog.Info("Escalation emails enabled", "recipients", len(mail.EscalationRecipients))
	}
	return n
}

// deliver sends escalations to an external sink in the background, with
// retries behind a circuit breaker
func (n *notifier) deliver(name string, sink events.Publisher, cfg *config.NotifyConfig, logger *slog.Logger) {
	resilient := events.NewResilientPublisher(sink, events.ResilientConfig{
		Name:           name,
		MaxFailures:    cfg.BreakerMaxFails,
		OpenTimeout:    cfg.BreakerOpenFor,
		MaxElapsedTime: cfg.RetryMaxElapsed,
	}, logger)
	async := events.NewAsyncPublisher(resilient, 256, logger.With("sink", name))
	n.async = append(n.async, async)
	n.publisher = append(n.publisher, events.Filter(async, events.EscalationRaised))
}

func (n *notifier) Publisher() events.Publisher { return n.publisher }

func (n *notifier) Start(ctx context.Context) {
	for _, a := range n.async {
		a.Start(ctx)
	}
}

// CloseStreams disconnects websocket clients
func (n *notifier) CloseStreams() {
	if n.hub != nil {
		n.hub.Close()
	}
}

// Stop drains pending webhook deliveries until ctx expires
func (n *notifier) Stop(ctx context.Context) {
	for _, a := range n.async {
		a.Stop(ctx)
	}
}
