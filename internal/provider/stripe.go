package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tourneyhub/economy/internal/domain"
)

// EventCheckoutCompleted is the only webhook event type that credits a wallet.
const EventCheckoutCompleted = "checkout.session.completed"

// DefaultTolerance bounds how old a signed webhook timestamp may be.
const DefaultTolerance = 5 * time.Minute

var (
	errHeaderFormat = errors.New("invalid signature header format")
	errTimestampOld = errors.New("webhook timestamp too old")
	errSignature    = errors.New("invalid webhook signature")
	errSecretNotSet = errors.New("stripe webhook secret not configured")
)

// StripeProvider verifies and decodes Stripe webhooks.
type StripeProvider struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

// NewStripeProvider creates a Stripe provider.
func NewStripeProvider(webhookSecret string) *StripeProvider {
	return &StripeProvider{
		webhookSecret: webhookSecret,
		tolerance:     DefaultTolerance,
		now:           time.Now,
	}
}

// StripeWebhookEvent represents a parsed Stripe webhook event.
type StripeWebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CheckoutSessionData is the nested data.object from a checkout.session.completed event.
type CheckoutSessionData struct {
	ID                string            `json:"id"`
	PaymentIntent     string            `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// VerifyWebhookSignature checks the Stripe-Signature header against payload
// and returns the decoded event. Every failure is an InvalidSignature error.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, sigHeader string) (*StripeWebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, domain.ErrInvalidSignature(errSecretNotSet)
	}

	// Stripe-Signature: t=timestamp,v1=signature[,v1=...]
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return nil, domain.ErrInvalidSignature(errHeaderFormat)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidSignature(fmt.Errorf("invalid timestamp: %w", err))
	}
	if s.now().Sub(time.Unix(ts, 0)) > s.tolerance {
		return nil, domain.ErrInvalidSignature(errTimestampOld)
	}

	expected := s.sign(timestamp, payload)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, domain.ErrInvalidSignature(errSignature)
	}

	var event StripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrValidation(fmt.Sprintf("decode webhook event: %v", err))
	}
	if event.ID == "" || event.Type == "" {
		return nil, domain.ErrValidation("webhook event id and type are required")
	}
	return &event, nil
}

func (s *StripeProvider) sign(timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a Stripe-Signature header for payload at ts.
// Used by tests and local tooling that replay webhooks.
func (s *StripeProvider) SignatureHeader(payload []byte, ts time.Time) string {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, s.sign(timestamp, payload))
}

// ParseCheckoutSessionData extracts checkout session data from a webhook event.
func ParseCheckoutSessionData(data json.RawMessage) (*CheckoutSessionData, error) {
	var wrapper struct {
		Object CheckoutSessionData `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse checkout session data: %w", err)
	}
	return &wrapper.Object, nil
}

// ParsePurchaseEvent turns a checkout.session.completed event into a
// PaymentEvent. The purchasing user comes from metadata.user_id, falling back
// to client_reference_id. Malformed events are ValidationErrors.
func ParsePurchaseEvent(event *StripeWebhookEvent) (*domain.PaymentEvent, error) {
	if event.Type != EventCheckoutCompleted {
		return nil, domain.ErrValidation(fmt.Sprintf("unsupported event type %q", event.Type))
	}
	session, err := ParseCheckoutSessionData(event.Data)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	userID := session.Metadata["user_id"]
	if userID == "" {
		userID = session.ClientReferenceID
	}
	qp, err := metadataInt(session.Metadata, "qp_amount", true)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	bonus, err := metadataInt(session.Metadata, "bonus_qp", false)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	pe := &domain.PaymentEvent{
		EventID:  event.ID,
		UserID:   userID,
		QPAmount: qp,
		BonusQP:  bonus,
	}
	if err := pe.Validate(); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return pe, nil
}

func metadataInt(md map[string]string, key string, required bool) (int64, error) {
	raw, ok := md[key]
	if !ok || raw == "" {
		if required {
			return 0, fmt.Errorf("metadata.%s is required", key)
		}
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("metadata.%s must be an integer, got %q", key, raw)
	}
	return n, nil
}
