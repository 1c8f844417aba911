package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"storefront/internal/webhook"
)

const maxWebhookBody = 65536

type WebhookHandler struct {
	reconciler *webhook.Reconciler
	logger     *slog.Logger
}

func NewWebhookHandler(reconciler *webhook.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// HandleStripeWebhook applies one Stripe delivery. A signature failure is a
// 400 before any payload field is trusted; a dispatch failure is a 500 so
// Stripe redelivers; everything else acknowledges receipt.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	err = h.reconciler.HandleEvent(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Webhook signature verification failed")
	case err != nil:
		h.logger.Error("webhook dispatch", "error", err)
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
