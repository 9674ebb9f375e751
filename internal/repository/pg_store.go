package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
)

// PgStore implements Store on a pgx pool. Wallet serialization is the
// wallets row lock, so concurrent API instances stay safe.
type PgStore struct {
	pool    *pgxpool.Pool
	wallets WalletRepository
	txs     TransactionRepository
	pools   PrizePoolRepository
	outbox  OutboxRepository
}

var _ Store = (*PgStore)(nil)

// NewPgStore wires the pgx repositories behind the Store contract.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{
		pool:    pool,
		wallets: NewWalletRepository(),
		txs:     NewTransactionRepository(),
		pools:   NewPrizePoolRepository(),
		outbox:  NewOutboxRepository(),
	}
}

// WithinTx runs fn in a READ COMMITTED transaction. BeginTxFunc rolls back on
// any error or panic. Errors that are not domain errors become PersistenceFailure.
func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgUnitOfWork{tx: tx, store: s})
	})
	if err == nil {
		return nil
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrPersistence("transaction failed", err)
}

func (s *PgStore) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := s.wallets.EnsureExists(ctx, s.pool, userID); err != nil {
		return nil, domain.ErrPersistence("create wallet", err)
	}
	w, err := s.wallets.Get(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrPersistence("load wallet", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound("wallet", userID)
	}
	return w, nil
}

func (s *PgStore) ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	txs, err := s.txs.ListByUser(ctx, s.pool, q)
	if err != nil {
		return nil, domain.ErrPersistence("list transactions", err)
	}
	return txs, nil
}

func (s *PgStore) CreatePrizePool(ctx context.Context, pool *domain.PrizePool) error {
	if err := s.pools.Create(ctx, s.pool, pool); err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrConflict(fmt.Sprintf("prize pool for tournament %s already exists", pool.TournamentID))
		}
		return domain.ErrPersistence("create prize pool", err)
	}
	return nil
}

func (s *PgStore) FindPrizePool(ctx context.Context, tournamentID string) (*domain.PrizePool, error) {
	p, err := s.pools.FindByTournament(ctx, s.pool, tournamentID)
	if err != nil {
		return nil, domain.ErrPersistence("load prize pool", err)
	}
	return p, nil
}

// FetchUnpublished and MarkPublished make PgStore the outbox poller's source.
func (s *PgStore) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxDraft, error) {
	return s.outbox.FetchUnpublished(ctx, s.pool, limit)
}

func (s *PgStore) MarkPublished(ctx context.Context, seqIDs []int64) error {
	return s.outbox.MarkPublished(ctx, s.pool, seqIDs)
}

type pgUnitOfWork struct {
	tx    pgx.Tx
	store *PgStore
}

func (u *pgUnitOfWork) LockWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := u.store.wallets.EnsureExists(ctx, u.tx, userID); err != nil {
		return nil, err
	}
	w, err := u.store.wallets.LockForUpdate(ctx, u.tx, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrNotFound("wallet", userID)
	}
	return w, nil
}

func (u *pgUnitOfWork) ApplyDelta(ctx context.Context, userID string, delta domain.BalanceDelta) (*domain.Wallet, error) {
	w, err := u.store.wallets.UpdateBalances(ctx, u.tx, userID, delta)
	if err != nil {
		if IsCheckViolation(err) {
			currency := domain.CurrencyCash
			if delta.HasQPDelta() {
				currency = domain.CurrencyQP
			}
			return nil, domain.ErrInsufficientFunds(currency)
		}
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrNotFound("wallet", userID)
	}
	return w, nil
}

func (u *pgUnitOfWork) FindByReference(ctx context.Context, key domain.IdempotencyKey) (*domain.Transaction, error) {
	return u.store.txs.FindExisting(ctx, u.tx, key)
}

func (u *pgUnitOfWork) SumTransactions(ctx context.Context, userID string, currency domain.Currency) (decimal.Decimal, error) {
	return u.store.txs.SumByUser(ctx, u.tx, userID, currency)
}

func (u *pgUnitOfWork) AppendTransaction(ctx context.Context, params domain.LedgerEntryParams, balanceAfter decimal.Decimal) (*domain.Transaction, error) {
	tx, err := u.store.txs.Insert(ctx, u.tx, params, balanceAfter)
	if err != nil {
		if IsUniqueViolation(err) && params.ReferenceID != nil && params.ReferenceType != nil {
			return nil, domain.ErrDuplicateReference(domain.IdempotencyKey{
				ReferenceID:   *params.ReferenceID,
				ReferenceType: *params.ReferenceType,
				Kind:          params.Kind,
			})
		}
		return nil, err
	}
	return tx, nil
}

func (u *pgUnitOfWork) MarkPrizePoolPaid(ctx context.Context, tournamentID string, paidAt time.Time) (bool, error) {
	return u.store.pools.MarkPaidOut(ctx, u.tx, tournamentID, paidAt)
}

func (u *pgUnitOfWork) InsertOutbox(ctx context.Context, draft domain.OutboxDraft) error {
	return u.store.outbox.Insert(ctx, u.tx, draft)
}
