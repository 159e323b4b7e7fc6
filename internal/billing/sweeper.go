package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"brokerly/internal/types"
)

// LapsedExpirer moves subscriptions whose end date has passed to expired:
// past_due rows whose grace window closed, and paused rows whose paid-up
// period lapsed. Satisfied by db.SubscriptionRepo.
type LapsedExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper is the scheduled half of the lifecycle: the provider never sends an
// event when a grace period quietly runs out, so a periodic job closes those
// subscriptions and tells the notification worker.
type Sweeper struct {
	store   LapsedExpirer
	notices NoticeEnqueuer
	metrics EventMetrics
	logger  *slog.Logger
}

func NewSweeper(store LapsedExpirer, notices NoticeEnqueuer, metrics EventMetrics, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, notices: notices, metrics: metrics, logger: logger}
}

// Run performs one sweep and returns how many subscriptions it expired.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	accountIDs, err := s.store.ExpireLapsed(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, accountID := range accountIDs {
		s.logger.InfoContext(ctx, "grace period lapsed, subscription expired",
			slog.String("account_id", accountID),
		)
		if s.metrics != nil {
			s.metrics.RecordEvent("grace_period_lapsed", string(OutcomeAccepted))
		}
		if s.notices == nil {
			continue
		}
		err := s.notices.Enqueue(ctx, types.BillingNoticeMessage{
			MessageID:  uuid.NewString(),
			AccountID:  accountID,
			Kind:       types.NoticeSubscriptionExpired,
			OccurredAt: now,
		})
		if err != nil {
			// The row is already expired; the notice can only be retried on
			// the next sweep by ops tooling, so record it loudly.
			s.logger.ErrorContext(ctx, "failed to enqueue expiry notice",
				slog.String("account_id", accountID),
				slog.Any("error", err),
			)
		}
	}

	return len(accountIDs), nil
}
