package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"brokerly/internal/types"
)

// SubscriptionRepo persists the single billing row per account.
//
// Invariants:
//   - One row per account_id; Upsert never creates a second.
//   - Upsert applies only when the event is strictly newer than the stored
//     last_event_at (optimistic lock). Out-of-order and duplicate provider
//     deliveries become observable no-ops.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given
// connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

const getSubscriptionSQL = `SELECT account_id, external_subscription_id, status, subscription_ends_at, last_event_at, updated_at
	 FROM subscriptions WHERE account_id = $1`

// GetByAccountID returns the subscription row for an account, or a not-found
// AppError when the account has never received a billing event.
func (r *SubscriptionRepo) GetByAccountID(ctx context.Context, accountID string) (*types.SubscriptionRecord, error) {
	var rec types.SubscriptionRecord
	err := r.db.QueryRow(ctx, getSubscriptionSQL, accountID).Scan(
		&rec.AccountID,
		&rec.ExternalSubscriptionID,
		&rec.Status,
		&rec.SubscriptionEndsAt,
		&rec.LastEventAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for account", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return &rec, nil
}

const upsertSubscriptionSQL = `INSERT INTO subscriptions
	 (account_id, external_subscription_id, status, subscription_ends_at, last_event_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, NOW())
	 ON CONFLICT (account_id) DO UPDATE SET
	   external_subscription_id = EXCLUDED.external_subscription_id,
	   status = EXCLUDED.status,
	   subscription_ends_at = EXCLUDED.subscription_ends_at,
	   last_event_at = EXCLUDED.last_event_at,
	   updated_at = NOW()
	 WHERE subscriptions.last_event_at < EXCLUDED.last_event_at`

// Upsert writes the full recomputed state for an account in one atomic
// statement. The ON CONFLICT guard applies the update only when the incoming
// event is strictly newer than the stored one; a stale or replayed event
// leaves the row untouched and returns applied=false with no error.
func (r *SubscriptionRepo) Upsert(ctx context.Context, rec *types.SubscriptionRecord) (applied bool, err error) {
	tag, err := r.db.Exec(ctx, upsertSubscriptionSQL,
		rec.AccountID,
		rec.ExternalSubscriptionID,
		rec.Status,
		rec.SubscriptionEndsAt,
		rec.LastEventAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "stale billing event ignored (optimistic lock)",
			slog.String("account_id", rec.AccountID),
			slog.Time("event_at", rec.LastEventAt),
		)
		return false, nil
	}

	return true, nil
}

const expireLapsedSQL = `UPDATE subscriptions
	 SET status = $1, updated_at = NOW()
	 WHERE status = ANY($2) AND subscription_ends_at IS NOT NULL AND subscription_ends_at < $3
	 RETURNING account_id`

// expirableStatuses are the states the sweeper closes once the end date
// passes: past_due whose grace window ran out, and paused whose paid-up
// period lapsed.
var expirableStatuses = []string{
	string(types.SubStatusPastDue),
	string(types.SubStatusPaused),
}

// ExpireLapsed transitions every expirable subscription whose end date passed
// before now to expired, returning the affected account IDs. Run by the
// sweeper; last_event_at is untouched so a late provider event for the same
// period still applies.
func (r *SubscriptionRepo) ExpireLapsed(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, expireLapsedSQL,
		types.SubStatusExpired, expirableStatuses, now)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire lapsed subscriptions", err)
	}
	defer rows.Close()

	var accountIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expired account", err)
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate expired accounts", err)
	}

	return accountIDs, nil
}
