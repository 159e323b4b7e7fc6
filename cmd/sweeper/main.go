// Package main is the entrypoint for the grace-period sweeper Lambda.
//
// The billing provider sends no event when a past_due grace window quietly
// runs out, so this function runs on an EventBridge schedule, expires every
// subscription whose window has closed, and enqueues the expiry notices.
//
// This file handles dependency wiring (cold start) and delegates the sweep
// itself to billing.Sweeper.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"brokerly/internal/billing"
	"brokerly/internal/config"
	"brokerly/internal/db"
	"brokerly/internal/metrics"
	"brokerly/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("grace-period sweeper initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
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
		logger.Warn("SQS_BILLING_NOTICES not set; expiry notices disabled")
	}

	sweeper := billing.NewSweeper(
		db.NewSubscriptionRepo(pool, logger),
		notices,
		collector,
		logger,
	)

	logger.Info("grace-period sweeper initialized",
		"environment", cfg.Environment,
		"grace_period", cfg.Billing.GracePeriod.String(),
	)

	lambda.Start(newHandler(sweeper, logger))
}

// newHandler wraps Sweeper.Run with logging and result formatting for the
// Lambda runtime.
func newHandler(sweeper *billing.Sweeper, logger *slog.Logger) func(ctx context.Context) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (string, error) {
		logger.InfoContext(ctx, "sweep starting")

		expired, err := sweeper.Run(ctx, time.Now())
		if err != nil {
			logger.ErrorContext(ctx, "sweep failed",
				"error", err,
				"expired_before_error", expired,
			)
			return "", fmt.Errorf("grace-period sweep failed: %w", err)
		}

		result := fmt.Sprintf("sweep complete: %d subscriptions expired", expired)
		logger.InfoContext(ctx, result, "expired", expired)
		return result, nil
	}
}
