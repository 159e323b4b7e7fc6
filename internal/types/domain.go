package types

import "time"

// SubscriptionStatus is the persisted lifecycle status of an account's
// subscription. The set is closed; the transition engine is the only writer.
type SubscriptionStatus string

const (
	SubStatusTrial     SubscriptionStatus = "trial"
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusPastDue   SubscriptionStatus = "past_due"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusExpired   SubscriptionStatus = "expired"
	SubStatusPaused    SubscriptionStatus = "paused"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubStatusTrial, SubStatusActive, SubStatusPastDue,
		SubStatusCancelled, SubStatusExpired, SubStatusPaused:
		return true
	}
	return false
}

// Terminated reports whether the subscription has reached an end state.
// Records are never hard-deleted; "destroyed" means one of these statuses.
func (s SubscriptionStatus) Terminated() bool {
	return s == SubStatusCancelled || s == SubStatusExpired
}

// SubscriptionRecord is the single persisted billing row per account.
// Status and EndsAt always reflect the most recently applied provider event;
// there is no append-only history on our side (the provider's event log is
// the source of truth for history).
type SubscriptionRecord struct {
	AccountID              string              `json:"account_id"`
	ExternalSubscriptionID string              `json:"external_subscription_id"`
	Status                 SubscriptionStatus  `json:"status"`
	// SubscriptionEndsAt is nil only for cancelled subscriptions; every other
	// status carries a provider-reported or computed end date.
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`
	// LastEventAt is the occurred-at timestamp of the most recently applied
	// event. Events at or before it are rejected as stale (optimistic lock).
	LastEventAt time.Time `json:"last_event_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Account is the slice of the CRM account directory this core reads:
// just enough to resolve a webhook event to an owner.
type Account struct {
	ID           string `json:"id"`
	BillingEmail string `json:"billing_email"`
}

// BillingNoticeKind identifies the notification job a webhook outcome
// produces for the CRM's email worker.
type BillingNoticeKind string

const (
	NoticePaymentFailed        BillingNoticeKind = "payment_failed"
	NoticeSubscriptionCanceled BillingNoticeKind = "subscription_cancelled"
	NoticeSubscriptionExpired  BillingNoticeKind = "subscription_expired"
)

// BillingNoticeMessage is the payload enqueued for the notification worker.
// The worker owns templates and delivery; this side only states what
// happened to whom.
type BillingNoticeMessage struct {
	MessageID string            `json:"message_id"`
	TraceID   string            `json:"trace_id"`
	AccountID string            `json:"account_id"`
	Kind      BillingNoticeKind `json:"kind"`
	// GraceEndsAt is set for payment_failed notices so the email can state
	// when access lapses.
	GraceEndsAt *time.Time `json:"grace_ends_at,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}
