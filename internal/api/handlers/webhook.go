// Package handlers contains the HTTP handler implementations for the billing
// service.
//
// The webhook endpoint is NOT behind auth middleware -- it is called directly
// by the billing provider. Security comes from verifying the X-Signature
// header with HMAC-SHA256 over the raw body.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"brokerly/internal/billing"
	"brokerly/internal/core"
)

// signatureHeader carries the provider's hex-encoded HMAC-SHA256 of the body.
const signatureHeader = "X-Signature"

// EventProcessor runs one verified-parse-apply cycle for a raw delivery.
// Satisfied by billing.Processor.
type EventProcessor interface {
	Process(ctx context.Context, rawBody []byte, signatureHex string) (billing.Outcome, error)
}

// WebhookHandler receives billing provider deliveries and hands them to the
// event processor. All policy (verification, ordering, idempotence) lives in
// the processor; the handler only translates HTTP to and from it.
type WebhookHandler struct {
	processor EventProcessor
	logger    *slog.Logger
}

func NewWebhookHandler(processor EventProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{processor: processor, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from the internal
// routes because this one is public.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/billing", h.Handle)
}

// webhookAck is the body returned for every acknowledged delivery.
type webhookAck struct {
	Received bool `json:"received"`
}

// Handle processes one delivery. The raw bytes are read before any decoding
// because the signature covers the body exactly as sent.
//
// Status mapping: accepted deliveries (including deliberate no-ops) get 200 so
// the provider stops retrying; rejected ones get 400/401; our own failures get
// 5xx so the provider redelivers after we recover.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := core.ReadBody(w, r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", slog.Any("error", err))
		core.Error(w, r, err)
		return
	}

	outcome, err := h.processor.Process(r.Context(), body, r.Header.Get(signatureHeader))
	if outcome != billing.OutcomeAccepted {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}
