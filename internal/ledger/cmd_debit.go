package ledger

import (
	"context"

	"github.com/tourneyhub/economy/internal/domain"
)

// Debit subtracts a positive amount from one balance, failing with
// InsufficientFunds rather than going below zero. The ledger records the
// negated amount.
func (e *Engine) Debit(ctx context.Context, params domain.DebitParams) (*domain.CommandResult, error) {
	if err := validateCommand("debit", params.UserID, params.Currency, params.Amount,
		params.Kind, params.ReferenceID, params.ReferenceType); err != nil {
		return nil, err
	}

	return e.post(ctx, "debit", domain.LedgerEntryParams{
		UserID:        params.UserID,
		Currency:      params.Currency,
		Amount:        params.Amount.Neg(),
		Kind:          params.Kind,
		Description:   params.Description,
		ReferenceID:   strPtr(params.ReferenceID),
		ReferenceType: refTypePtr(params.ReferenceType),
		Metadata:      ensureJSON(params.Metadata),
	})
}
