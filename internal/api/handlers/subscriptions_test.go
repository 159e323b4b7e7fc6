package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"brokerly/internal/db"
	"brokerly/internal/types"
)

// mockSubReader implements SubscriptionReader for testing.
type mockSubReader struct {
	rec *types.SubscriptionRecord
	err error
}

func (m *mockSubReader) GetByAccountID(_ context.Context, _ string) (*types.SubscriptionRecord, error) {
	return m.rec, m.err
}

// mockEventReader implements EventLogReader for testing.
type mockEventReader struct {
	entries []db.EventLogEntry
	err     error
}

func (m *mockEventReader) RecentByAccount(_ context.Context, _ string, _ int) ([]db.EventLogEntry, error) {
	return m.entries, m.err
}

const testServiceKey = "svc_key_test"

func testKeyHash(t *testing.T) types.SecretString {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testServiceKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing service key: %v", err)
	}
	return types.SecretString(hash)
}

func serveSubscriptions(t *testing.T, subs SubscriptionReader, events EventLogReader, serviceKey string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewSubscriptionsHandler(subs, events, testKeyHash(t), nil).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/acct_1", nil)
	if serviceKey != "" {
		req.Header.Set("X-Service-Key", serviceKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func activeRecord() *types.SubscriptionRecord {
	ends := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return &types.SubscriptionRecord{
		AccountID:              "acct_1",
		ExternalSubscriptionID: "sub_ext_1",
		Status:                 types.SubStatusActive,
		SubscriptionEndsAt:     &ends,
		LastEventAt:            time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC),
	}
}

func TestGetSubscription_Success(t *testing.T) {
	events := &mockEventReader{entries: []db.EventLogEntry{
		{EventName: "subscription_created", Outcome: "accepted", ReceivedAt: time.Date(2026, 8, 28, 11, 0, 1, 0, time.UTC)},
	}}

	rec := serveSubscriptions(t, &mockSubReader{rec: activeRecord()}, events, testServiceKey)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Subscription struct {
				AccountID string `json:"account_id"`
				Status    string `json:"status"`
			} `json:"subscription"`
			RecentEvents []struct {
				EventName string `json:"event_name"`
				Outcome   string `json:"outcome"`
			} `json:"recent_events"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.Data.Subscription.AccountID != "acct_1" || resp.Data.Subscription.Status != "active" {
		t.Errorf("unexpected subscription: %+v", resp.Data.Subscription)
	}
	if len(resp.Data.RecentEvents) != 1 || resp.Data.RecentEvents[0].EventName != "subscription_created" {
		t.Errorf("unexpected events: %+v", resp.Data.RecentEvents)
	}
}

func TestGetSubscription_MissingServiceKey(t *testing.T) {
	rec := serveSubscriptions(t, &mockSubReader{rec: activeRecord()}, &mockEventReader{}, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetSubscription_WrongServiceKey(t *testing.T) {
	rec := serveSubscriptions(t, &mockSubReader{rec: activeRecord()}, &mockEventReader{}, "not-the-key")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(types.ErrCodeAuthServiceKey)) {
		t.Errorf("expected service key error code in body: %s", rec.Body.String())
	}
}

func TestGetSubscription_NotFound(t *testing.T) {
	subs := &mockSubReader{err: types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for account", nil)}

	rec := serveSubscriptions(t, subs, &mockEventReader{}, testServiceKey)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSubscription_EventLogFailureDegrades(t *testing.T) {
	events := &mockEventReader{err: types.NewAppError(types.ErrCodeInternalDB, "timeout", nil)}

	rec := serveSubscriptions(t, &mockSubReader{rec: activeRecord()}, events, testServiceKey)

	// The subscription is the answer; a broken audit query must not 500.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"recent_events":[]`) {
		t.Errorf("expected empty recent_events, got: %s", rec.Body.String())
	}
}
