package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"brokerly/internal/core"
	"brokerly/internal/db"
	"brokerly/internal/types"
)

// serviceKeyHeader authenticates internal service-to-service calls.
const serviceKeyHeader = "X-Service-Key"

// recentEventLimit bounds the audit trail returned alongside a subscription.
const recentEventLimit = 20

// SubscriptionReader is the subset of db.SubscriptionRepo the internal read
// API needs.
type SubscriptionReader interface {
	GetByAccountID(ctx context.Context, accountID string) (*types.SubscriptionRecord, error)
}

// EventLogReader lists recent webhook deliveries for an account.
// Satisfied by db.EventLogRepo.
type EventLogReader interface {
	RecentByAccount(ctx context.Context, accountID string, limit int) ([]db.EventLogEntry, error)
}

// SubscriptionsHandler serves the internal read API other CRM services use to
// check an account's billing state. Callers authenticate with a shared service
// key; the stored value is a bcrypt hash, never the key itself.
type SubscriptionsHandler struct {
	subs           SubscriptionReader
	events         EventLogReader
	serviceKeyHash types.SecretString
	logger         *slog.Logger
}

func NewSubscriptionsHandler(
	subs SubscriptionReader,
	events EventLogReader,
	serviceKeyHash types.SecretString,
	logger *slog.Logger,
) *SubscriptionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionsHandler{
		subs:           subs,
		events:         events,
		serviceKeyHash: serviceKeyHash,
		logger:         logger,
	}
}

// RegisterRoutes mounts the internal endpoints behind service-key auth.
func (h *SubscriptionsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireServiceKey)
		r.Get("/subscriptions/{accountID}", h.GetSubscription)
	})
}

// requireServiceKey rejects requests whose X-Service-Key does not match the
// configured bcrypt hash.
func (h *SubscriptionsHandler) requireServiceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(serviceKeyHeader)
		if key == "" {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeAuthServiceKey,
				"service key required",
				nil,
			))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(h.serviceKeyHash.Unmask()), []byte(key)); err != nil {
			h.logger.WarnContext(r.Context(), "internal request with invalid service key",
				slog.String("path", r.URL.Path),
			)
			core.Error(w, r, types.NewAppError(
				types.ErrCodeAuthServiceKey,
				"invalid service key",
				err,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// subscriptionEventView is one audit-log row in the read API response.
type subscriptionEventView struct {
	EventName  string    `json:"event_name"`
	Outcome    string    `json:"outcome"`
	ReceivedAt time.Time `json:"received_at"`
}

// subscriptionView is the internal read API response body.
type subscriptionView struct {
	Subscription *types.SubscriptionRecord `json:"subscription"`
	RecentEvents []subscriptionEventView   `json:"recent_events"`
}

// GetSubscription returns the current billing state for one account plus its
// recent webhook deliveries. An audit-log failure degrades to an empty event
// list; the subscription itself is the answer callers need.
func (h *SubscriptionsHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"account ID is required",
			nil,
		))
		return
	}

	rec, err := h.subs.GetByAccountID(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	view := subscriptionView{
		Subscription: rec,
		RecentEvents: []subscriptionEventView{},
	}

	if h.events != nil {
		entries, err := h.events.RecentByAccount(r.Context(), accountID, recentEventLimit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to load recent webhook events",
				slog.String("account_id", accountID),
				slog.Any("error", err),
			)
		}
		for _, e := range entries {
			view.RecentEvents = append(view.RecentEvents, subscriptionEventView{
				EventName:  e.EventName,
				Outcome:    e.Outcome,
				ReceivedAt: e.ReceivedAt,
			})
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: view})
}
