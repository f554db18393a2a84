package main

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/billing"
)

// stripeWebhookHandler verifies and applies one Stripe webhook delivery
// under /billing/webhook.
type stripeWebhookHandler struct {
	billing *billing.Manager
}

func (h *stripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusServiceUnavailable)
		return
	}
	if err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		log.Warn().Err(err).Msg("stripe webhook rejected")
		http.Error(w, "webhook error", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
