package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/provider"
)

// WalletCrediter is the wallet operation purchases are credited through.
type WalletCrediter interface {
	Credit(ctx context.Context, params domain.CreditParams) (*domain.CommandResult, error)
}

// WebhookVerifier authenticates and decodes a raw webhook delivery.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, sigHeader string) (*provider.StripeWebhookEvent, error)
}

// PaymentResult is the outcome of processing one payment event.
type PaymentResult struct {
	EventID       string     `json:"event_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Credited      int64      `json:"credited_qp"`
	Duplicate     bool       `json:"duplicate"`
	Ignored       bool       `json:"ignored,omitempty"`
}

// PaymentProcessor credits purchased QP exactly once per payment event.
type PaymentProcessor struct {
	verifier WebhookVerifier
	wallet   WalletCrediter
	logger   *slog.Logger
}

// NewPaymentProcessor creates a PaymentProcessor.
func NewPaymentProcessor(verifier WebhookVerifier, wallet WalletCrediter, logger *slog.Logger) *PaymentProcessor {
	return &PaymentProcessor{
		verifier: verifier,
		wallet:   wallet,
		logger:   logger,
	}
}

// Handle credits QPAmount+BonusQP as a single purchase entry keyed by the
// event id. A redelivered event returns the original transaction.
func (p *PaymentProcessor) Handle(ctx context.Context, event domain.PaymentEvent) (*PaymentResult, error) {
	if err := event.Validate(); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"event_id":  event.EventID,
		"qp_amount": event.QPAmount,
		"bonus_qp":  event.BonusQP,
	})
	res, err := p.wallet.Credit(ctx, domain.CreditParams{
		UserID:        event.UserID,
		Currency:      domain.CurrencyQP,
		Amount:        decimal.NewFromInt(event.TotalQP()),
		Kind:          domain.KindPurchase,
		Description:   fmt.Sprintf("QP purchase (%d + %d bonus)", event.QPAmount, event.BonusQP),
		ReferenceID:   event.EventID,
		ReferenceType: domain.RefPaymentEvent,
		Metadata:      meta,
	})
	if err != nil {
		p.logger.Error("payment credit failed",
			"event_id", event.EventID,
			"user_id", event.UserID,
			"error", err,
		)
		return nil, err
	}

	txID := res.Transaction.ID
	result := &PaymentResult{
		EventID:       event.EventID,
		TransactionID: &txID,
		Credited:      res.Transaction.Amount.IntPart(),
		Duplicate:     res.Idempotent,
	}
	if res.Idempotent {
		p.logger.Info("payment event already processed",
			"event_id", event.EventID,
			"transaction_id", txID,
		)
	} else {
		p.logger.Info("payment credited",
			"event_id", event.EventID,
			"user_id", event.UserID,
			"qp", result.Credited,
			"transaction_id", txID,
		)
	}
	return result, nil
}

// HandleWebhook verifies, parses and processes a raw webhook delivery.
// Event types other than checkout completion are acknowledged and ignored.
func (p *PaymentProcessor) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*PaymentResult, error) {
	event, err := p.verifier.VerifyWebhookSignature(payload, sigHeader)
	if err != nil {
		p.logger.Warn("webhook rejected", "error", err)
		return nil, err
	}

	if event.Type != provider.EventCheckoutCompleted {
		p.logger.Info("unhandled stripe event type", "type", event.Type, "event_id", event.ID)
		return &PaymentResult{EventID: event.ID, Ignored: true}, nil
	}

	pe, err := provider.ParsePurchaseEvent(event)
	if err != nil {
		p.logger.Warn("malformed purchase event", "event_id", event.ID, "error", err)
		return nil, err
	}
	return p.Handle(ctx, *pe)
}
