package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"brokerly/internal/config"
	"brokerly/internal/types"
)

// Outcome classifies a processed delivery for the HTTP layer.
//
//   - OutcomeAccepted: state applied, or a deliberate no-op (unknown kind,
//     unmatched identity, stale event). Always acknowledged with 200.
//   - OutcomeRejected: signature or payload failure. The provider sent
//     something we will never accept; retrying is pointless but harmless.
//   - OutcomeFailed: our own storage or lookup failed. Non-200 so the
//     provider's retry redelivers once we recover.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// SignatureVerifier authenticates a raw body against the provider signature.
type SignatureVerifier interface {
	Verify(body []byte, signatureHex string) bool
}

// SubscriptionStore is the persistence contract the processor drives.
// Satisfied by db.SubscriptionRepo.
type SubscriptionStore interface {
	GetByAccountID(ctx context.Context, accountID string) (*types.SubscriptionRecord, error)
	Upsert(ctx context.Context, rec *types.SubscriptionRecord) (applied bool, err error)
}

// AuditEntry is the processor's view of one delivery for the audit log.
type AuditEntry struct {
	Fingerprint string
	EventName   string
	AccountID   string
	Outcome     string
	ReceivedAt  time.Time
}

// EventAuditor records deliveries (with their raw payload) and reports
// whether the payload was seen before. Satisfied via db.EventLogRepo.
type EventAuditor interface {
	Record(ctx context.Context, entry AuditEntry, raw []byte) (firstDelivery bool, err error)
}

// NoticeEnqueuer hands billing notices to the CRM's notification worker.
type NoticeEnqueuer interface {
	Enqueue(ctx context.Context, msg types.BillingNoticeMessage) error
}

// UnmatchedAlerter flags a paying customer no account matched. This is the
// observability hook behind the acknowledge-but-alert contract.
type UnmatchedAlerter interface {
	AlertUnmatched(ctx context.Context, eventName, billingEmail, externalSubscriptionID string) error
}

// EventMetrics counts processed events by kind and outcome.
type EventMetrics interface {
	RecordEvent(kind, outcome string)
}

// Processor orchestrates verify, parse, resolve, transition, and store for
// one delivery. All collaborators are injected; everything but the verifier,
// resolver, and store may be nil and degrades to logging.
type Processor struct {
	verifier SignatureVerifier
	resolver *Resolver
	store    SubscriptionStore
	auditor  EventAuditor
	notices  NoticeEnqueuer
	alerter  UnmatchedAlerter
	metrics  EventMetrics
	logger   *slog.Logger

	gracePeriod     time.Duration
	renewalFallback time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewProcessor(
	verifier SignatureVerifier,
	resolver *Resolver,
	store SubscriptionStore,
	auditor EventAuditor,
	notices NoticeEnqueuer,
	alerter UnmatchedAlerter,
	metrics EventMetrics,
	cfg config.BillingConfig,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		verifier:        verifier,
		resolver:        resolver,
		store:           store,
		auditor:         auditor,
		notices:         notices,
		alerter:         alerter,
		metrics:         metrics,
		logger:          logger,
		gracePeriod:     cfg.GracePeriod,
		renewalFallback: cfg.RenewalFallback,
		now:             time.Now,
	}
}

// Process runs one delivery end to end. The returned error is non-nil for
// Rejected and Failed outcomes and carries the AppError the HTTP layer maps
// to a status code.
func (p *Processor) Process(ctx context.Context, rawBody []byte, signatureHex string) (Outcome, error) {
	if signatureHex == "" {
		p.logger.WarnContext(ctx, "webhook rejected: missing signature header")
		p.count("", OutcomeRejected)
		return OutcomeRejected, types.NewAppError(types.ErrCodeAuthSignatureMissing, "signature header required", nil)
	}
	if !p.verifier.Verify(rawBody, signatureHex) {
		// Logged as a security event; no parsing happens past this point.
		p.logger.WarnContext(ctx, "webhook rejected: signature verification failed",
			slog.Int("body_bytes", len(rawBody)),
		)
		p.count("", OutcomeRejected)
		return OutcomeRejected, types.NewAppError(types.ErrCodeAuthSignatureInvalid, "invalid webhook signature", nil)
	}

	receivedAt := p.now().UTC()

	ev, err := ParseEvent(rawBody, receivedAt)
	if err != nil {
		p.logger.WarnContext(ctx, "webhook rejected: unparseable payload", slog.Any("error", err))
		p.count("", OutcomeRejected)
		return OutcomeRejected, err
	}

	outcome, accountID, procErr := p.apply(ctx, ev)

	p.audit(ctx, ev, rawBody, accountID, outcome, receivedAt)
	p.count(string(ev.Kind), outcome)

	return outcome, procErr
}

// apply resolves identity and drives the transition for a parsed event.
// Returns the outcome, the resolved account ID (empty when unresolved), and
// the error for non-accepted outcomes.
func (p *Processor) apply(ctx context.Context, ev *WebhookEvent) (Outcome, string, error) {
	if ev.Kind == EventUnknown || ev.Kind == EventOrderCreated {
		// Forward-compatible acknowledge: logged, audited, no state change.
		p.logger.InfoContext(ctx, "webhook acknowledged without state change",
			slog.String("event_kind", string(ev.Kind)),
		)
		return OutcomeAccepted, "", nil
	}

	accountID, err := p.resolver.Resolve(ctx, ev)
	if err != nil {
		if isNotFound(err) {
			// Acknowledge so the provider stops retrying, but alert: this is
			// a paying customer we cannot place.
			p.logger.ErrorContext(ctx, "webhook event matched no account",
				slog.String("event_kind", string(ev.Kind)),
				slog.String("external_subscription_id", ev.ExternalSubscriptionID),
			)
			if p.alerter != nil {
				if alertErr := p.alerter.AlertUnmatched(ctx, string(ev.Kind), ev.BillingEmail, ev.ExternalSubscriptionID); alertErr != nil {
					p.logger.ErrorContext(ctx, "failed to send unmatched-account alert", slog.Any("error", alertErr))
				}
			}
			return OutcomeAccepted, "", nil
		}
		return OutcomeFailed, "", err
	}

	next := Next(ev, p.now(), p.gracePeriod, p.renewalFallback)
	if !next.Apply {
		p.logger.InfoContext(ctx, "webhook produced no state change",
			slog.String("event_kind", string(ev.Kind)),
			slog.String("account_id", accountID),
		)
		return OutcomeAccepted, accountID, nil
	}

	rec := &types.SubscriptionRecord{
		AccountID:              accountID,
		ExternalSubscriptionID: ev.ExternalSubscriptionID,
		Status:                 next.Status,
		SubscriptionEndsAt:     next.EndsAt,
		LastEventAt:            ev.OccurredAt,
	}

	if next.KeepEndsAt {
		current, err := p.store.GetByAccountID(ctx, accountID)
		switch {
		case err == nil:
			rec.SubscriptionEndsAt = current.SubscriptionEndsAt
		case isNotFoundSubscription(err):
			// First event we see for this account carries no end date.
		default:
			return OutcomeFailed, accountID, err
		}
	}

	applied, err := p.store.Upsert(ctx, rec)
	if err != nil {
		return OutcomeFailed, accountID, err
	}
	if !applied {
		// Stale or replayed event: the optimistic lock kept the newer row.
		return OutcomeAccepted, accountID, nil
	}

	p.logger.InfoContext(ctx, "subscription state updated",
		slog.String("account_id", accountID),
		slog.String("event_kind", string(ev.Kind)),
		slog.String("status", string(next.Status)),
	)

	p.notify(ctx, ev, rec)

	return OutcomeAccepted, accountID, nil
}

// notify enqueues the notification job an applied transition warrants.
// Best-effort: a queue failure is logged, never bubbled into the webhook
// response.
func (p *Processor) notify(ctx context.Context, ev *WebhookEvent, rec *types.SubscriptionRecord) {
	if p.notices == nil {
		return
	}

	var kind types.BillingNoticeKind
	switch {
	case ev.Kind == EventPaymentFailed:
		kind = types.NoticePaymentFailed
	case rec.Status == types.SubStatusCancelled:
		kind = types.NoticeSubscriptionCanceled
	case rec.Status == types.SubStatusExpired:
		kind = types.NoticeSubscriptionExpired
	default:
		return
	}

	msg := types.BillingNoticeMessage{
		MessageID:  uuid.NewString(),
		TraceID:    types.GetRequestID(ctx),
		AccountID:  rec.AccountID,
		Kind:       kind,
		OccurredAt: ev.OccurredAt,
	}
	if kind == types.NoticePaymentFailed {
		msg.GraceEndsAt = rec.SubscriptionEndsAt
	}

	if err := p.notices.Enqueue(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to enqueue billing notice",
			slog.String("account_id", rec.AccountID),
			slog.String("notice_kind", string(kind)),
			slog.Any("error", err),
		)
	}
}

// audit appends the delivery to the event log. Failures are logged only; the
// audit trail never decides the webhook response.
func (p *Processor) audit(ctx context.Context, ev *WebhookEvent, raw []byte, accountID string, outcome Outcome, receivedAt time.Time) {
	if p.auditor == nil {
		return
	}

	sum := sha256.Sum256(raw)
	first, err := p.auditor.Record(ctx, AuditEntry{
		Fingerprint: hex.EncodeToString(sum[:]),
		EventName:   string(ev.Kind),
		AccountID:   accountID,
		Outcome:     string(outcome),
		ReceivedAt:  receivedAt,
	}, raw)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to record webhook audit entry", slog.Any("error", err))
		return
	}
	if !first {
		p.logger.InfoContext(ctx, "duplicate webhook delivery observed",
			slog.String("event_kind", string(ev.Kind)),
			slog.String("account_id", accountID),
		)
	}
}

func (p *Processor) count(kind string, outcome Outcome) {
	if p.metrics == nil {
		return
	}
	if kind == "" {
		kind = "unparsed"
	}
	p.metrics.RecordEvent(kind, string(outcome))
}

func isNotFoundSubscription(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSubscription
}
