package external

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"brokerly/internal/config"
	"brokerly/internal/types"
)

// OpsAlerter posts unmatched-customer alerts to the operations webhook
// (a chat channel integration). An event that reaches the service but cannot
// be matched to an account means someone is paying for nothing; it must land
// in front of a human.
type OpsAlerter struct {
	client     *BaseClient
	webhookURL string
	service    string
}

// NewOpsAlerter builds the alerter. webhookURL may be empty; callers should
// skip constructing the alerter in that case.
func NewOpsAlerter(cfg config.AlertingConfig, service string) *OpsAlerter {
	return &OpsAlerter{
		client: NewBaseClient(
			&http.Client{Timeout: cfg.Timeout},
			"ops-alerts",
			DefaultRetryPolicy(),
			service,
		),
		webhookURL: cfg.OpsWebhookURL,
		service:    service,
	}
}

type opsAlertPayload struct {
	Service                string    `json:"service"`
	Alert                  string    `json:"alert"`
	EventName              string    `json:"event_name"`
	BillingEmail           string    `json:"billing_email,omitempty"`
	ExternalSubscriptionID string    `json:"external_subscription_id,omitempty"`
	TraceID                string    `json:"trace_id,omitempty"`
	OccurredAt             time.Time `json:"occurred_at"`
}

// AlertUnmatched reports a billing event that resolved to no account.
func (a *OpsAlerter) AlertUnmatched(ctx context.Context, eventName, billingEmail, externalSubscriptionID string) error {
	payload := opsAlertPayload{
		Service:                a.service,
		Alert:                  "unmatched_billing_event",
		EventName:              eventName,
		BillingEmail:           billingEmail,
		ExternalSubscriptionID: externalSubscriptionID,
		TraceID:                types.GetRequestID(ctx),
		OccurredAt:             time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal ops alert", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build ops alert request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamAlerting, "ops alert delivery failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.NewAppError(types.ErrCodeUpstreamAlerting, "ops alert webhook rejected the payload", nil)
	}
	return nil
}
