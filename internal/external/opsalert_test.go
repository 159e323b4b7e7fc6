package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brokerly/internal/config"
	"brokerly/internal/types"
)

func TestOpsAlerter_PostsUnmatchedAlert(t *testing.T) {
	var received opsAlertPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("alert payload is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewOpsAlerter(config.AlertingConfig{
		OpsWebhookURL: srv.URL,
		Timeout:       5 * time.Second,
	}, "brokerly-billing")

	ctx := types.WithRequestID(context.Background(), "req_alert_1")
	err := a.AlertUnmatched(ctx, "subscription_created", "ghost@example.com", "sub_ext_1")
	if err != nil {
		t.Fatalf("AlertUnmatched: %v", err)
	}

	if received.Alert != "unmatched_billing_event" {
		t.Errorf("unexpected alert type %q", received.Alert)
	}
	if received.EventName != "subscription_created" {
		t.Errorf("unexpected event name %q", received.EventName)
	}
	if received.BillingEmail != "ghost@example.com" {
		t.Errorf("unexpected billing email %q", received.BillingEmail)
	}
	if received.TraceID != "req_alert_1" {
		t.Errorf("trace ID not propagated, got %q", received.TraceID)
	}
}

func TestOpsAlerter_WebhookRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := NewOpsAlerter(config.AlertingConfig{
		OpsWebhookURL: srv.URL,
		Timeout:       5 * time.Second,
	}, "brokerly-billing")

	err := a.AlertUnmatched(context.Background(), "subscription_created", "x@example.com", "sub_1")
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamAlerting {
		t.Errorf("unexpected code %s", appErr.Code)
	}
}
