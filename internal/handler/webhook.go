package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/guard"
	"github.com/tourneyhub/economy/internal/service"
)

// WebhookProcessor processes a raw, signed payment webhook.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*service.PaymentResult, error)
}

// WebhookHandler handles Stripe webhook callbacks.
type WebhookHandler struct {
	payments WebhookProcessor
	limiter  *guard.RateLimiter
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. limiter may be nil.
func NewWebhookHandler(payments WebhookProcessor, limiter *guard.RateLimiter, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, limiter: limiter, logger: logger}
}

// HandleStripeWebhook handles POST /webhooks/stripe.
// The body is read raw; signature verification needs the exact bytes.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		if res := h.limiter.Check(r.Context(), clientAddr(r)); !res.Allowed {
			h.logger.Warn("webhook rate limited", "client", clientAddr(r), "reason", res.Reason)
			RespondError(w, domain.ErrRateLimited(res.Reason))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		RespondError(w, domain.ErrValidation("unreadable body"))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.Warn("missing Stripe-Signature header", "request_id", GetRequestID(r.Context()))
		RespondError(w, domain.ErrInvalidSignature(nil))
		return
	}

	result, err := h.payments.HandleWebhook(r.Context(), body, sigHeader)
	if err != nil {
		h.logger.Error("process stripe webhook", "error", err, "request_id", GetRequestID(r.Context()))
		RespondError(w, err)
		return
	}

	// Stripe only needs a 2xx; duplicates are acknowledged the same way.
	RespondJSON(w, http.StatusOK, result)
}
