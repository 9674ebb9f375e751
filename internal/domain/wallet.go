package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency identifies one of the two balances held per user.
type Currency string

const (
	CurrencyQP   Currency = "QP"
	CurrencyCash Currency = "CASH"
)

// CashPlaces is the number of fractional digits Cash is stored with (NUMERIC(18,2)).
const CashPlaces = 2

// Wallet represents a wallets row. Balances never go below zero.
type Wallet struct {
	UserID             string          `json:"user_id"`
	QPBalance          int64           `json:"qp_balance"`
	CashBalance        decimal.Decimal `json:"cash_balance"`
	TotalQPPurchased   int64           `json:"total_qp_purchased"`
	TotalCashEarned    decimal.Decimal `json:"total_cash_earned"`
	TotalCashWithdrawn decimal.Decimal `json:"total_cash_withdrawn"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewWallet returns a zero-balance wallet for userID.
func NewWallet(userID string, now time.Time) *Wallet {
	return &Wallet{
		UserID:             userID,
		CashBalance:        decimal.Zero,
		TotalCashEarned:    decimal.Zero,
		TotalCashWithdrawn: decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Balance returns the current balance for currency as a decimal.
func (w *Wallet) Balance(currency Currency) decimal.Decimal {
	if currency == CurrencyQP {
		return decimal.NewFromInt(w.QPBalance)
	}
	return w.CashBalance
}

// BalanceDelta describes which wallet columns change and by how much.
// Used by ApplyDelta to build the dynamic UPDATE statement.
type BalanceDelta struct {
	QP                 int64
	Cash               decimal.Decimal
	TotalQPPurchased   int64
	TotalCashEarned    decimal.Decimal
	TotalCashWithdrawn decimal.Decimal
}

// NewBalanceDelta derives the column deltas for a signed ledger amount.
// Positive amounts feed the lifetime purchase/earning totals; Cash withdrawals
// feed the lifetime withdrawn total.
func NewBalanceDelta(currency Currency, amount decimal.Decimal, kind TransactionKind) BalanceDelta {
	var d BalanceDelta
	switch currency {
	case CurrencyQP:
		d.QP = amount.IntPart()
		if d.QP > 0 {
			d.TotalQPPurchased = d.QP
		}
	case CurrencyCash:
		d.Cash = amount
		if amount.IsPositive() {
			d.TotalCashEarned = amount
		}
		if amount.IsNegative() && kind == KindWithdrawal {
			d.TotalCashWithdrawn = amount.Neg()
		}
	}
	return d
}

func (d BalanceDelta) HasQPDelta() bool { return d.QP != 0 }

func (d BalanceDelta) HasCashDelta() bool { return !d.Cash.IsZero() }

func (d BalanceDelta) HasQPPurchasedDelta() bool { return d.TotalQPPurchased != 0 }

func (d BalanceDelta) HasCashEarnedDelta() bool { return !d.TotalCashEarned.IsZero() }

func (d BalanceDelta) HasCashWithdrawnDelta() bool { return !d.TotalCashWithdrawn.IsZero() }

// Apply returns a copy of w with the delta applied. It does not check invariants.
func (d BalanceDelta) Apply(w Wallet) Wallet {
	w.QPBalance += d.QP
	w.CashBalance = w.CashBalance.Add(d.Cash)
	w.TotalQPPurchased += d.TotalQPPurchased
	w.TotalCashEarned = w.TotalCashEarned.Add(d.TotalCashEarned)
	w.TotalCashWithdrawn = w.TotalCashWithdrawn.Add(d.TotalCashWithdrawn)
	return w
}
