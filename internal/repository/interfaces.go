package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// WalletRepository provides access to wallets.
type WalletRepository interface {
	// Get returns the wallet, or nil when the user has none yet.
	Get(ctx context.Context, db DBTX, userID string) (*domain.Wallet, error)

	// EnsureExists inserts a zero wallet unless one exists. Concurrent callers
	// create at most one row.
	EnsureExists(ctx context.Context, db DBTX, userID string) error

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the wallet.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)

	// UpdateBalances atomically updates balance columns using server-side arithmetic.
	UpdateBalances(ctx context.Context, tx pgx.Tx, userID string, delta domain.BalanceDelta) (*domain.Wallet, error)
}

// TransactionRepository provides access to the append-only transactions table.
type TransactionRepository interface {
	// FindExisting checks the idempotency index for a duplicate transaction.
	FindExisting(ctx context.Context, db DBTX, key domain.IdempotencyKey) (*domain.Transaction, error)

	// Insert creates a new ledger entry with balance snapshot. Returns the inserted row.
	Insert(ctx context.Context, db DBTX, params domain.LedgerEntryParams, balanceAfter decimal.Decimal) (*domain.Transaction, error)

	// ListByUser returns transactions ordered by created_at DESC with cursor pagination.
	ListByUser(ctx context.Context, db DBTX, q domain.TransactionQuery) ([]domain.Transaction, error)

	// SumByUser totals every entry of one currency for a user.
	SumByUser(ctx context.Context, db DBTX, userID string, currency domain.Currency) (decimal.Decimal, error)
}

// PrizePoolRepository provides access to prize_pools.
type PrizePoolRepository interface {
	Create(ctx context.Context, db DBTX, pool *domain.PrizePool) error
	FindByTournament(ctx context.Context, db DBTX, tournamentID string) (*domain.PrizePool, error)

	// MarkPaidOut flips paid_out once. It reports false if the pool was already paid.
	MarkPaidOut(ctx context.Context, db DBTX, tournamentID string, paidAt time.Time) (bool, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in insertion order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps published_at on the given rows.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// Store is the storage contract the ledger and settlement engines run on.
// Postgres and the in-memory fake both implement it.
type Store interface {
	// WithinTx runs fn in one atomic unit. It commits when fn returns nil and
	// rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// GetWallet returns the committed wallet, creating a zero wallet if absent.
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, error)

	ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error)

	// CreatePrizePool fails with CodeConflict when the tournament already has a pool.
	CreatePrizePool(ctx context.Context, pool *domain.PrizePool) error

	// FindPrizePool returns nil when the tournament has no pool.
	FindPrizePool(ctx context.Context, tournamentID string) (*domain.PrizePool, error)
}

// UnitOfWork is the set of mutations available inside WithinTx.
type UnitOfWork interface {
	// LockWallet creates the wallet if needed and serializes all other units
	// of work on the same user until this one ends.
	LockWallet(ctx context.Context, userID string) (*domain.Wallet, error)

	// ApplyDelta fails with CodeInsufficientFunds when a balance would go negative.
	ApplyDelta(ctx context.Context, userID string, delta domain.BalanceDelta) (*domain.Wallet, error)

	FindByReference(ctx context.Context, key domain.IdempotencyKey) (*domain.Transaction, error)
	SumTransactions(ctx context.Context, userID string, currency domain.Currency) (decimal.Decimal, error)

	// AppendTransaction fails with CodeDuplicateReference when the key is taken.
	AppendTransaction(ctx context.Context, params domain.LedgerEntryParams, balanceAfter decimal.Decimal) (*domain.Transaction, error)

	MarkPrizePoolPaid(ctx context.Context, tournamentID string, paidAt time.Time) (bool, error)
	InsertOutbox(ctx context.Context, draft domain.OutboxDraft) error
}
