package ledger

import (
	"context"

	"github.com/tourneyhub/economy/internal/domain"
)

// Credit adds a positive amount to one balance.
// Pattern: Lock → Idempotency → PostLedgerEntry
func (e *Engine) Credit(ctx context.Context, params domain.CreditParams) (*domain.CommandResult, error) {
	if err := validateCommand("credit", params.UserID, params.Currency, params.Amount,
		params.Kind, params.ReferenceID, params.ReferenceType); err != nil {
		return nil, err
	}

	return e.post(ctx, "credit", domain.LedgerEntryParams{
		UserID:        params.UserID,
		Currency:      params.Currency,
		Amount:        params.Amount,
		Kind:          params.Kind,
		Description:   params.Description,
		ReferenceID:   strPtr(params.ReferenceID),
		ReferenceType: refTypePtr(params.ReferenceType),
		Metadata:      ensureJSON(params.Metadata),
	})
}
