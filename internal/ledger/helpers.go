package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func refTypePtr(t domain.ReferenceType) *domain.ReferenceType {
	if t == "" {
		return nil
	}
	return &t
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func entryKey(p domain.LedgerEntryParams) (domain.IdempotencyKey, bool) {
	if p.ReferenceID == nil || p.ReferenceType == nil {
		return domain.IdempotencyKey{}, false
	}
	return domain.IdempotencyKey{
		ReferenceID:   *p.ReferenceID,
		ReferenceType: *p.ReferenceType,
		Kind:          p.Kind,
	}, true
}

// validateCommand checks the fields shared by credit and debit.
func validateCommand(op, userID string, currency domain.Currency, amount decimal.Decimal,
	kind domain.TransactionKind, referenceID string, referenceType domain.ReferenceType,
) error {
	checks := []error{
		domain.ValidateUserID(userID),
		domain.ValidateAmount(currency, amount),
		domain.ValidateKind(kind),
		domain.ValidateReference(referenceID, referenceType),
	}
	for _, err := range checks {
		if err != nil {
			return domain.ErrValidation(fmt.Sprintf("%s: %v", op, err))
		}
	}
	return nil
}
