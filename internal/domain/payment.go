package domain

import (
	"fmt"
	"math"
)

// PaymentEvent is a verified purchase notification from the payment processor.
// It is parsed and validated at the webhook boundary before it reaches the processor.
type PaymentEvent struct {
	EventID  string `json:"event_id"`
	UserID   string `json:"user_id"`
	QPAmount int64  `json:"qp_amount"`
	BonusQP  int64  `json:"bonus_qp"`
}

// Validate checks the structural invariants of a payment event.
func (e PaymentEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if e.QPAmount <= 0 {
		return fmt.Errorf("qp amount must be positive, got %d", e.QPAmount)
	}
	if e.BonusQP < 0 {
		return fmt.Errorf("bonus qp must not be negative, got %d", e.BonusQP)
	}
	if e.BonusQP > math.MaxInt64-e.QPAmount {
		return fmt.Errorf("qp amount %d plus bonus qp %d overflows", e.QPAmount, e.BonusQP)
	}
	return nil
}

// TotalQP is the amount credited for the event: purchased plus bonus points.
func (e PaymentEvent) TotalQP() int64 {
	return e.QPAmount + e.BonusQP
}
