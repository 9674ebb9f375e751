package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateCurrency checks that currency is one of the wallet currencies.
func ValidateCurrency(currency Currency) error {
	switch currency {
	case CurrencyQP, CurrencyCash:
		return nil
	default:
		return fmt.Errorf("invalid currency: %q", currency)
	}
}

// ValidatePositiveAmount checks that an amount is strictly positive.
func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	return nil
}

// ValidateAmount checks amount is positive and representable in currency:
// QP is integral, Cash has at most CashPlaces fractional digits.
func ValidateAmount(currency Currency, amount decimal.Decimal) error {
	if err := ValidateCurrency(currency); err != nil {
		return err
	}
	if err := ValidatePositiveAmount(amount); err != nil {
		return err
	}
	switch currency {
	case CurrencyQP:
		if !amount.Equal(amount.Truncate(0)) {
			return fmt.Errorf("QP amount must be a whole number, got %s", amount.String())
		}
	case CurrencyCash:
		if !amount.Equal(amount.Truncate(CashPlaces)) {
			return fmt.Errorf("cash amount supports at most %d decimal places, got %s", CashPlaces, amount.String())
		}
	}
	return nil
}

// ValidateUserID rejects empty user ids.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

// ValidateKind checks that kind is a known transaction kind.
func ValidateKind(kind TransactionKind) error {
	switch kind {
	case KindPurchase, KindTournamentWin, KindWithdrawal, KindAdminAdjustment, KindRefund:
		return nil
	default:
		return fmt.Errorf("invalid transaction kind: %q", kind)
	}
}

// ValidateReference requires reference id and type to be given together.
func ValidateReference(referenceID string, referenceType ReferenceType) error {
	if (referenceID == "") != (referenceType == "") {
		return fmt.Errorf("reference id and reference type must be set together")
	}
	switch referenceType {
	case "", RefPaymentEvent, RefPrizePayout, RefWithdrawalRequest, RefAdminAction:
		return nil
	default:
		return fmt.Errorf("invalid reference type: %q", referenceType)
	}
}
