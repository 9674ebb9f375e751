// Package memory is an in-process implementation of repository.Store. It
// serializes per user the way the Postgres row lock does and is used by tests
// and by the API when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/guard"
	"github.com/tourneyhub/economy/internal/repository"
)

// Fault operations passed to a FaultFunc.
const (
	OpLockWallet = "lock_wallet"
	OpApplyDelta = "apply_delta"
	OpAppend     = "append_transaction"
	OpMarkPaid   = "mark_prize_pool_paid"
	OpOutbox     = "insert_outbox"
	OpCommit     = "commit"
)

// FaultFunc lets tests fail a storage operation. userID is empty for
// operations that are not scoped to a user.
type FaultFunc func(op, userID string) error

// Store holds committed state behind mu. Wallet locks are separate so a unit
// of work can hold a user's lock without blocking readers.
type Store struct {
	mu        sync.Mutex
	locks     *guard.KeyedMutex
	wallets   map[string]*domain.Wallet
	txs       []domain.Transaction
	byKey     map[domain.IdempotencyKey]int
	pools     map[string]*domain.PrizePool
	outbox    []domain.OutboxDraft
	published map[int64]bool
	nextSeq   int64
	fault     FaultFunc
	now       func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		locks:     guard.NewKeyedMutex(),
		wallets:   make(map[string]*domain.Wallet),
		byKey:     make(map[domain.IdempotencyKey]int),
		pools:     make(map[string]*domain.PrizePool),
		published: make(map[int64]bool),
		now:       time.Now,
	}
}

// SetFault installs fn to be consulted before every mutating operation.
// Passing nil clears it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) checkFault(op, userID string) error {
	s.mu.Lock()
	fn := s.fault
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(op, userID)
}

// WithinTx runs fn against a staged unit of work. Nothing is visible to other
// callers until fn returns nil and the commit succeeds. Locks are released on
// every exit path, including panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return domain.ErrPersistence("begin transaction", err)
	}

	uow := newUnitOfWork(s)
	defer uow.release()

	if err := fn(ctx, uow); err != nil {
		return asStoreError(err)
	}
	if err := s.checkFault(OpCommit, ""); err != nil {
		return asStoreError(err)
	}
	return asStoreError(uow.commit())
}

func asStoreError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrPersistence("transaction failed", err)
}

func (s *Store) GetWallet(_ context.Context, userID string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := *s.walletLocked(userID)
	return &w, nil
}

// walletLocked returns the committed wallet, creating it. Caller holds mu.
func (s *Store) walletLocked(userID string) *domain.Wallet {
	w, ok := s.wallets[userID]
	if !ok {
		w = domain.NewWallet(userID, s.now())
		s.wallets[userID] = w
	}
	return w
}

func (s *Store) ListTransactions(_ context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.NormalizedLimit()
	seenCursor := q.Cursor == nil
	var out []domain.Transaction
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		tx := s.txs[i]
		if tx.UserID != q.UserID {
			continue
		}
		if !seenCursor {
			if tx.ID == *q.Cursor {
				seenCursor = true
			}
			continue
		}
		if q.Currency != nil && tx.Currency != *q.Currency {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) CreatePrizePool(_ context.Context, pool *domain.PrizePool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[pool.TournamentID]; exists {
		return domain.ErrConflict(fmt.Sprintf("prize pool for tournament %s already exists", pool.TournamentID))
	}
	pool.CreatedAt = s.now()
	s.pools[pool.TournamentID] = clonePool(pool)
	return nil
}

func (s *Store) FindPrizePool(_ context.Context, tournamentID string) (*domain.PrizePool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[tournamentID]
	if !ok {
		return nil, nil
	}
	return clonePool(p), nil
}

// FetchUnpublished and MarkPublished make Store an outbox poller source.
func (s *Store) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OutboxDraft
	for _, e := range s.outbox {
		if s.published[e.SeqID] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, seqIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range seqIDs {
		s.published[id] = true
	}
	return nil
}

// Transactions returns every committed entry in insertion order.
func (s *Store) Transactions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Transaction(nil), s.txs...)
}

// Outbox returns every committed outbox event in insertion order.
func (s *Store) Outbox() []domain.OutboxDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxDraft(nil), s.outbox...)
}

func clonePool(p *domain.PrizePool) *domain.PrizePool {
	cp := *p
	cp.Distribution = make(map[int]decimal.Decimal, len(p.Distribution))
	for k, v := range p.Distribution {
		cp.Distribution[k] = v
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}

// unitOfWork stages every write until commit.
type unitOfWork struct {
	s       *Store
	unlocks []func()
	staged  map[string]*domain.Wallet
	entries []domain.Transaction
	outbox  []domain.OutboxDraft
	paid    map[string]time.Time
}

func newUnitOfWork(s *Store) *unitOfWork {
	return &unitOfWork{
		s:      s,
		staged: make(map[string]*domain.Wallet),
		paid:   make(map[string]time.Time),
	}
}

func (u *unitOfWork) release() {
	for i := len(u.unlocks) - 1; i >= 0; i-- {
		u.unlocks[i]()
	}
	u.unlocks = nil
}

func (u *unitOfWork) LockWallet(_ context.Context, userID string) (*domain.Wallet, error) {
	if err := u.s.checkFault(OpLockWallet, userID); err != nil {
		return nil, err
	}
	if w, ok := u.staged[userID]; ok {
		cp := *w
		return &cp, nil
	}

	u.unlocks = append(u.unlocks, u.s.locks.Lock(userID))

	u.s.mu.Lock()
	w := *u.s.walletLocked(userID)
	u.s.mu.Unlock()

	u.staged[userID] = &w
	cp := w
	return &cp, nil
}

func (u *unitOfWork) ApplyDelta(_ context.Context, userID string, delta domain.BalanceDelta) (*domain.Wallet, error) {
	if err := u.s.checkFault(OpApplyDelta, userID); err != nil {
		return nil, err
	}
	w, ok := u.staged[userID]
	if !ok {
		return nil, fmt.Errorf("wallet %s is not locked in this unit of work", userID)
	}

	next := delta.Apply(*w)
	if next.QPBalance < 0 {
		return nil, domain.ErrInsufficientFunds(domain.CurrencyQP)
	}
	if next.CashBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds(domain.CurrencyCash)
	}
	now := u.s.now()
	if !now.After(w.UpdatedAt) {
		now = w.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now

	*w = next
	cp := next
	return &cp, nil
}

func (u *unitOfWork) FindByReference(_ context.Context, key domain.IdempotencyKey) (*domain.Transaction, error) {
	for i := range u.entries {
		if k, ok := u.entries[i].Key(); ok && k == key {
			tx := u.entries[i]
			return &tx, nil
		}
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if idx, ok := u.s.byKey[key]; ok {
		tx := u.s.txs[idx]
		return &tx, nil
	}
	return nil, nil
}

func (u *unitOfWork) SumTransactions(_ context.Context, userID string, currency domain.Currency) (decimal.Decimal, error) {
	sum := decimal.Zero
	u.s.mu.Lock()
	for _, tx := range u.s.txs {
		if tx.UserID == userID && tx.Currency == currency {
			sum = sum.Add(tx.Amount)
		}
	}
	u.s.mu.Unlock()

	for _, tx := range u.entries {
		if tx.UserID == userID && tx.Currency == currency {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (u *unitOfWork) AppendTransaction(ctx context.Context, params domain.LedgerEntryParams, balanceAfter decimal.Decimal) (*domain.Transaction, error) {
	if err := u.s.checkFault(OpAppend, params.UserID); err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:            uuid.New(),
		UserID:        params.UserID,
		Currency:      params.Currency,
		Amount:        params.Amount,
		Kind:          params.Kind,
		Description:   params.Description,
		ReferenceID:   params.ReferenceID,
		ReferenceType: params.ReferenceType,
		BalanceAfter:  balanceAfter,
		Metadata:      params.Metadata,
		CreatedAt:     u.s.now(),
	}
	if tx.Metadata == nil {
		tx.Metadata = []byte(`{}`)
	}

	if key, ok := tx.Key(); ok {
		existing, err := u.FindByReference(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, domain.ErrDuplicateReference(key)
		}
	}

	u.entries = append(u.entries, tx)
	return &tx, nil
}

func (u *unitOfWork) MarkPrizePoolPaid(_ context.Context, tournamentID string, paidAt time.Time) (bool, error) {
	if err := u.s.checkFault(OpMarkPaid, ""); err != nil {
		return false, err
	}
	if _, ok := u.paid[tournamentID]; ok {
		return false, nil
	}

	u.s.mu.Lock()
	p, ok := u.s.pools[tournamentID]
	paidOut := ok && p.PaidOut
	u.s.mu.Unlock()

	if !ok || paidOut {
		return false, nil
	}
	u.paid[tournamentID] = paidAt
	return true, nil
}

func (u *unitOfWork) InsertOutbox(_ context.Context, draft domain.OutboxDraft) error {
	if err := u.s.checkFault(OpOutbox, draft.AggregateID); err != nil {
		return err
	}
	u.outbox = append(u.outbox, draft)
	return nil
}

// commit publishes staged state atomically. Constraints are re-checked under
// mu because appends are not required to hold a wallet lock.
func (u *unitOfWork) commit() error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range u.entries {
		if key, ok := tx.Key(); ok {
			if _, dup := s.byKey[key]; dup {
				return domain.ErrDuplicateReference(key)
			}
		}
	}
	for tid := range u.paid {
		if p, ok := s.pools[tid]; !ok || p.PaidOut {
			return domain.ErrAlreadyPaidOut(tid)
		}
	}

	for userID, w := range u.staged {
		cp := *w
		s.wallets[userID] = &cp
	}
	for _, tx := range u.entries {
		s.txs = append(s.txs, tx)
		if key, ok := tx.Key(); ok {
			s.byKey[key] = len(s.txs) - 1
		}
	}
	for _, e := range u.outbox {
		s.nextSeq++
		e.SeqID = s.nextSeq
		s.outbox = append(s.outbox, e)
	}
	for tid, at := range u.paid {
		p := s.pools[tid]
		p.PaidOut = true
		t := at
		p.PaidAt = &t
	}
	return nil
}
