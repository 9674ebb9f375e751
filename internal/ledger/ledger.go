package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/projection"
	"github.com/tourneyhub/economy/internal/repository"
)

// Engine is the wallet service. Every balance change goes through
// PostLedgerEntry:
//  1. LockWallet: per-user serialization
//  2. FindByReference: idempotency check
//  3. ApplyDelta, AppendTransaction and InsertOutbox in one transaction
type Engine struct {
	store         repository.Store
	projections   projection.Store
	projectionTTL time.Duration
	logger        *slog.Logger
}

// NewEngine creates a ledger engine. projections may be nil to disable the
// balance cache.
func NewEngine(store repository.Store, projections projection.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:         store,
		projections:   projections,
		projectionTTL: projection.DefaultBalanceTTL,
		logger:        logger,
	}
}

// WithProjectionTTL overrides how long cached balances live.
func (e *Engine) WithProjectionTTL(ttl time.Duration) *Engine {
	if ttl > 0 {
		e.projectionTTL = ttl
	}
	return e
}

// PostLedgerEntry applies params inside uow. A referenced entry that already
// exists is returned with Idempotent set and nothing is written.
func (e *Engine) PostLedgerEntry(ctx context.Context, uow repository.UnitOfWork, params domain.LedgerEntryParams) (*domain.CommandResult, error) {
	wallet, err := uow.LockWallet(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	if key, ok := entryKey(params); ok {
		existing, err := uow.FindByReference(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("find existing transaction: %w", err)
		}
		if existing != nil {
			if existing.UserID != params.UserID || !existing.Amount.Equal(params.Amount) || existing.Currency != params.Currency {
				e.logger.Warn("reference replayed with different parameters",
					"user_id", params.UserID,
					"recorded_user_id", existing.UserID,
					"reference_id", key.ReferenceID,
					"recorded", existing.Amount.String(),
					"requested", params.Amount.String(),
				)
			}
			return &domain.CommandResult{Transaction: existing, Wallet: wallet, Idempotent: true}, nil
		}
	}

	if params.Amount.IsNegative() && wallet.Balance(params.Currency).Add(params.Amount).IsNegative() {
		return nil, domain.ErrInsufficientFunds(params.Currency)
	}

	updated, err := uow.ApplyDelta(ctx, params.UserID, domain.NewBalanceDelta(params.Currency, params.Amount, params.Kind))
	if err != nil {
		return nil, fmt.Errorf("update balances: %w", err)
	}

	entry, err := uow.AppendTransaction(ctx, params, updated.Balance(params.Currency))
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := uow.InsertOutbox(ctx, domain.NewTransactionPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &domain.CommandResult{Transaction: entry, Wallet: updated}, nil
}

// post runs PostLedgerEntry in its own unit of work and refreshes the cache.
func (e *Engine) post(ctx context.Context, op string, params domain.LedgerEntryParams) (*domain.CommandResult, error) {
	var result *domain.CommandResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		result, err = e.PostLedgerEntry(ctx, uow, params)
		return err
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeDuplicateReference) {
			// A concurrent writer committed the same reference first.
			return e.resolveDuplicate(ctx, op, params)
		}
		return nil, storeError(op, err)
	}

	if !result.Idempotent {
		e.logger.Info("ledger entry posted",
			"op", op,
			"user_id", params.UserID,
			"currency", params.Currency,
			"amount", params.Amount.String(),
			"kind", params.Kind,
			"transaction_id", result.Transaction.ID,
		)
		e.refreshProjection(ctx, result.Wallet)
	}
	return result, nil
}

func (e *Engine) resolveDuplicate(ctx context.Context, op string, params domain.LedgerEntryParams) (*domain.CommandResult, error) {
	key, _ := entryKey(params)
	var result *domain.CommandResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		wallet, err := uow.LockWallet(ctx, params.UserID)
		if err != nil {
			return err
		}
		existing, err := uow.FindByReference(ctx, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("duplicate reference %s vanished", key.ReferenceID)
		}
		result = &domain.CommandResult{Transaction: existing, Wallet: wallet, Idempotent: true}
		return nil
	})
	if err != nil {
		return nil, storeError(op, err)
	}
	return result, nil
}

func (e *Engine) refreshProjection(ctx context.Context, w *domain.Wallet) {
	if e.projections == nil || w == nil {
		return
	}
	if err := projection.UpdateBalance(ctx, e.projections, projection.FromWallet(w), e.projectionTTL); err != nil {
		e.logger.Warn("balance projection refresh failed", "user_id", w.UserID, "error", err)
	}
}

// GetWallet returns the committed wallet, creating it on first reference.
func (e *Engine) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	w, err := e.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, storeError("get wallet", err)
	}
	return w, nil
}

// Balance serves the cached projection when present and fills it on a miss.
func (e *Engine) Balance(ctx context.Context, userID string) (*projection.BalanceProjection, error) {
	if e.projections != nil {
		p, err := projection.GetBalance(ctx, e.projections, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, projection.ErrMiss) {
			e.logger.Warn("balance projection read failed", "user_id", userID, "error", err)
		}
	}

	w, err := e.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.refreshProjection(ctx, w)
	p := projection.FromWallet(w)
	return &p, nil
}

// ListTransactions returns committed ledger entries, newest first.
func (e *Engine) ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	if err := domain.ValidateUserID(q.UserID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if q.Currency != nil {
		if err := domain.ValidateCurrency(*q.Currency); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
	}
	txs, err := e.store.ListTransactions(ctx, q)
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return txs, nil
}

// storeError keeps domain errors and marks everything else retryable.
func storeError(op string, err error) error {
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrPersistence(op, err)
}
