package billing

import (
	"context"
	"errors"
	"log/slog"

	"brokerly/internal/types"
)

// AccountDirectory is the slice of the CRM's account store the resolver
// reads. Satisfied by db.AccountRepo.
type AccountDirectory interface {
	FindByID(ctx context.Context, id string) (*types.Account, error)
	FindByEmail(ctx context.Context, email string) (*types.Account, error)
}

// Resolver maps a parsed event to an internal account ID. The correlation ID
// stamped at checkout always wins; the billing email is the fallback for
// events that predate stamping.
type Resolver struct {
	dir    AccountDirectory
	logger *slog.Logger
}

func NewResolver(dir AccountDirectory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns the owning account ID. A not-found AppError means the event
// could not be matched to any account; infrastructure failures surface as
// internal errors so the caller can fail the request and let the provider
// retry.
func (r *Resolver) Resolve(ctx context.Context, ev *WebhookEvent) (string, error) {
	if ev.CorrelationUserID != "" {
		acct, err := r.dir.FindByID(ctx, ev.CorrelationUserID)
		if err == nil {
			return acct.ID, nil
		}
		if !isNotFound(err) {
			return "", err
		}
		// A correlation ID that matches nothing is suspicious (deleted
		// account, forged custom data); note it before trying the fallback.
		r.logger.WarnContext(ctx, "correlation ID matched no account, trying email fallback",
			slog.String("correlation_user_id", ev.CorrelationUserID),
			slog.String("event_kind", string(ev.Kind)),
		)
	}

	if ev.BillingEmail != "" {
		acct, err := r.dir.FindByEmail(ctx, ev.BillingEmail)
		if err == nil {
			return acct.ID, nil
		}
		if !isNotFound(err) {
			return "", err
		}
	}

	return "", types.NewAppError(types.ErrCodeNotFoundAccount, "event matched no account", nil)
}

func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAccount
}
