// Package billing implements the provider webhook pipeline: signature-checked
// raw bytes in, one atomic subscription-state write out. The closed event
// model and the transition table live here; HTTP concerns stay in the
// handlers and persistence in the repositories.
package billing

import (
	"encoding/json"
	"strings"
	"time"

	"brokerly/internal/types"
)

// EventKind is the closed set of provider event variants. Anything the
// provider adds later lands on EventUnknown and is acknowledged without a
// state change.
type EventKind string

const (
	EventSubscriptionCreated   EventKind = "subscription_created"
	EventSubscriptionUpdated   EventKind = "subscription_updated"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
	EventSubscriptionResumed   EventKind = "subscription_resumed"
	EventSubscriptionExpired   EventKind = "subscription_expired"
	EventSubscriptionPaused    EventKind = "subscription_paused"
	EventSubscriptionUnpaused  EventKind = "subscription_unpaused"
	EventPaymentSuccess        EventKind = "subscription_payment_success"
	EventPaymentFailed         EventKind = "subscription_payment_failed"
	EventOrderCreated          EventKind = "order_created"
	EventUnknown               EventKind = "unknown"
)

// kindFromName maps the provider's meta.event_name to a kind. Unrecognized
// names fall through to EventUnknown rather than failing the request.
func kindFromName(name string) EventKind {
	switch EventKind(name) {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled,
		EventSubscriptionResumed, EventSubscriptionExpired, EventSubscriptionPaused,
		EventSubscriptionUnpaused, EventPaymentSuccess, EventPaymentFailed,
		EventOrderCreated:
		return EventKind(name)
	default:
		return EventUnknown
	}
}

// WebhookEvent is one parsed provider delivery. Immutable once parsed; each
// transition recomputes full target state from these fields alone.
type WebhookEvent struct {
	Kind EventKind

	// CorrelationUserID is the account ID stamped into the checkout session
	// and echoed back by the provider. Empty when checkout predates the
	// stamping or the event is provider-initiated.
	CorrelationUserID string

	ExternalSubscriptionID string

	// Status is the provider-reported subscription status, verbatim.
	Status       string
	BillingEmail string
	RenewsAt     *time.Time
	EndsAt       *time.Time
	Paused       bool
	TestMode     bool

	// OccurredAt orders events for the optimistic lock: the provider's
	// updated_at, falling back to created_at.
	OccurredAt time.Time
}

// webhookEnvelope mirrors only the provider fields the pipeline reads; extra
// fields are dropped at this boundary.
type webhookEnvelope struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID string `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status    string          `json:"status"`
			UserEmail string          `json:"user_email"`
			RenewsAt  *time.Time      `json:"renews_at"`
			EndsAt    *time.Time      `json:"ends_at"`
			Pause     json.RawMessage `json:"pause"`
			TestMode  bool            `json:"test_mode"`
			CreatedAt *time.Time      `json:"created_at"`
			UpdatedAt *time.Time      `json:"updated_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseEvent turns verified raw bytes into a WebhookEvent. Malformed JSON, a
// missing event name, or a subscription event without a subscription ID yield
// a validation AppError; the caller rejects the request without side effects.
// now supplies the OccurredAt fallback when the payload carries no timestamps.
func ParseEvent(raw []byte, now time.Time) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed webhook payload", err)
	}

	name := strings.TrimSpace(env.Meta.EventName)
	if name == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "payload missing meta.event_name", nil)
	}

	kind := kindFromName(name)

	ev := &WebhookEvent{
		Kind:                   kind,
		CorrelationUserID:      strings.TrimSpace(env.Meta.CustomData.UserID),
		ExternalSubscriptionID: strings.TrimSpace(env.Data.ID),
		Status:                 strings.ToLower(strings.TrimSpace(env.Data.Attributes.Status)),
		BillingEmail:           strings.TrimSpace(env.Data.Attributes.UserEmail),
		RenewsAt:               env.Data.Attributes.RenewsAt,
		EndsAt:                 env.Data.Attributes.EndsAt,
		Paused:                 len(env.Data.Attributes.Pause) > 0 && string(env.Data.Attributes.Pause) != "null",
		TestMode:               env.Data.Attributes.TestMode,
	}

	switch {
	case env.Data.Attributes.UpdatedAt != nil:
		ev.OccurredAt = env.Data.Attributes.UpdatedAt.UTC()
	case env.Data.Attributes.CreatedAt != nil:
		ev.OccurredAt = env.Data.Attributes.CreatedAt.UTC()
	default:
		ev.OccurredAt = now.UTC()
	}

	// Subscription lifecycle events are meaningless without the provider's
	// subscription ID. Unknown and order events carry no such requirement.
	if kind != EventUnknown && kind != EventOrderCreated && ev.ExternalSubscriptionID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "payload missing data.id", nil)
	}

	return ev, nil
}
