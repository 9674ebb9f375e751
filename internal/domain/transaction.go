package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind enumerates the reasons a balance changes.
type TransactionKind string

const (
	KindPurchase        TransactionKind = "purchase"
	KindTournamentWin   TransactionKind = "tournament_win"
	KindWithdrawal      TransactionKind = "withdrawal"
	KindAdminAdjustment TransactionKind = "admin_adjustment"
	KindRefund          TransactionKind = "refund"
)

// ReferenceType qualifies what a transaction's reference id points at.
type ReferenceType string

const (
	RefPaymentEvent      ReferenceType = "payment_event"
	RefPrizePayout       ReferenceType = "prize_payout"
	RefWithdrawalRequest ReferenceType = "withdrawal_request"
	RefAdminAction       ReferenceType = "admin_action"
)

// Transaction represents a transactions row (append-only ledger entry).
// Amount is signed: positive credits, negative debits.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"user_id"`
	Currency      Currency        `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          TransactionKind `json:"kind"`
	Description   string          `json:"description"`
	ReferenceID   *string         `json:"reference_id,omitempty"`
	ReferenceType *ReferenceType  `json:"reference_type,omitempty"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IdempotencyKey is the uniqueness scope for referenced ledger entries. It is
// global across users: a reference id names one external occurrence, so it
// can produce at most one entry of a given kind.
type IdempotencyKey struct {
	ReferenceID   string
	ReferenceType ReferenceType
	Kind          TransactionKind
}

// Key returns the idempotency key of t, or false when t carries no reference.
func (t *Transaction) Key() (IdempotencyKey, bool) {
	if t.ReferenceID == nil || t.ReferenceType == nil {
		return IdempotencyKey{}, false
	}
	return IdempotencyKey{
		ReferenceID:   *t.ReferenceID,
		ReferenceType: *t.ReferenceType,
		Kind:          t.Kind,
	}, true
}

// LedgerEntryParams is the input to the atomic post-entry primitive.
type LedgerEntryParams struct {
	UserID        string
	Currency      Currency
	Amount        decimal.Decimal
	Kind          TransactionKind
	Description   string
	ReferenceID   *string
	ReferenceType *ReferenceType
	Metadata      json.RawMessage
}

// CreditParams holds the input for the wallet credit command.
type CreditParams struct {
	UserID        string
	Currency      Currency
	Amount        decimal.Decimal
	Kind          TransactionKind
	Description   string
	ReferenceID   string
	ReferenceType ReferenceType
	Metadata      json.RawMessage
}

// DebitParams holds the input for the wallet debit command.
type DebitParams struct {
	UserID        string
	Currency      Currency
	Amount        decimal.Decimal
	Kind          TransactionKind
	Description   string
	ReferenceID   string
	ReferenceType ReferenceType
	Metadata      json.RawMessage
}

// CommandResult is the return value of credit and debit.
type CommandResult struct {
	Transaction *Transaction
	Wallet      *Wallet
	Idempotent  bool // true if this was a duplicate that returned the existing entry
}

// TransactionQuery filters ListTransactions. Results are newest first.
type TransactionQuery struct {
	UserID   string
	Currency *Currency
	Cursor   *uuid.UUID
	Limit    int
}

// NormalizedLimit clamps the page size to (0, 100], defaulting to 20.
func (q TransactionQuery) NormalizedLimit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}
