// Package main is the entry point for the brokerly billing webhook service.
//
// It loads configuration, opens the PostgreSQL pool, wires the AWS clients
// (CloudWatch metrics, SQS notices), builds the webhook processor, and serves
// HTTP with graceful shutdown on SIGINT/SIGTERM.
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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"brokerly/internal/api/handlers"
	"brokerly/internal/billing"
	"brokerly/internal/config"
	"brokerly/internal/core"
	"brokerly/internal/db"
	"brokerly/internal/external"
	"brokerly/internal/metrics"
	"brokerly/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("billing webhook service starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	collector := metrics.NewCollector(
		cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		}),
		cfg.AWS.MetricsNamespace,
		logger,
	)

	// Repositories.
	subRepo := db.NewSubscriptionRepo(pool, logger)
	accountRepo := db.NewAccountRepo(pool)
	eventLog, err := db.NewEventLogRepo(pool)
	if err != nil {
		return fmt.Errorf("creating event log repo: %w", err)
	}

	// Optional collaborators degrade to logging when unconfigured.
	var notices billing.NoticeEnqueuer
	if cfg.AWS.NotificationQueue != "" {
		notices = queue.NewNoticeTrigger(
			sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			}),
			cfg.AWS.NotificationQueue,
			logger,
		)
	} else {
		logger.Warn("SQS_BILLING_NOTICES not set; billing notices disabled")
	}

	var alerter billing.UnmatchedAlerter
	if cfg.Alerting.OpsWebhookURL != "" {
		alerter = external.NewOpsAlerter(cfg.Alerting, cfg.Service)
	} else {
		logger.Warn("OPS_ALERT_WEBHOOK_URL not set; unmatched-event alerts disabled")
	}

	processor := billing.NewProcessor(
		external.NewWebhookVerifier(cfg.Billing.WebhookSecret),
		billing.NewResolver(accountRepo, logger),
		subRepo,
		&eventLogAuditor{repo: eventLog},
		notices,
		alerter,
		collector,
		cfg.Billing,
		logger,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.HealthProbes = []core.HealthProbe{db.NewProbe(pool)}

	webhookHandler := handlers.NewWebhookHandler(processor, logger)
	subsHandler := handlers.NewSubscriptionsHandler(subRepo, eventLog, cfg.Internal.ServiceKeyHash, logger)
	srv.PublicRoutes = append(srv.PublicRoutes, webhookHandler.RegisterRoutes)
	srv.InternalRoutes = append(srv.InternalRoutes, subsHandler.RegisterRoutes)

	srv.MountRoutes()

	return serveHTTP(srv, cfg, logger)
}

// serveHTTP runs the HTTP server until a shutdown signal or a listener error.
func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// eventLogAuditor adapts db.EventLogRepo to the processor's auditor contract.
type eventLogAuditor struct {
	repo *db.EventLogRepo
}

func (a *eventLogAuditor) Record(ctx context.Context, entry billing.AuditEntry, raw []byte) (bool, error) {
	return a.repo.Insert(ctx, db.EventLogEntry{
		Fingerprint: entry.Fingerprint,
		EventName:   entry.EventName,
		AccountID:   entry.AccountID,
		Outcome:     entry.Outcome,
		ReceivedAt:  entry.ReceivedAt,
	}, raw)
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
