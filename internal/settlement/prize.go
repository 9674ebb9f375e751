package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/guard"
	"github.com/tourneyhub/economy/internal/repository"
)

// Reasons recorded for rankings that produce no payouts.
const (
	SkipInvalid           = "invalid"
	SkipNoPrize           = "no_prize"
	SkipDuplicatePosition = "duplicate_position"
	SkipDuplicateTeam     = "duplicate_team"
)

// Crediter is the wallet operation the engine pays through. *ledger.Engine satisfies it.
type Crediter interface {
	Credit(ctx context.Context, params domain.CreditParams) (*domain.CommandResult, error)
}

// Payout is one member's share of a team prize.
type Payout struct {
	TeamID   string
	Position int
	UserID   string
	Amount   decimal.Decimal
}

// PrizeSettlement pays tournament prize pools exactly once.
type PrizeSettlement struct {
	store    repository.Store
	crediter Crediter
	locks    *guard.KeyedMutex
	logger   *slog.Logger
	now      func() time.Time
}

// NewPrizeSettlement creates a prize settlement handler.
func NewPrizeSettlement(store repository.Store, crediter Crediter, logger *slog.Logger) *PrizeSettlement {
	return &PrizeSettlement{
		store:    store,
		crediter: crediter,
		locks:    guard.NewKeyedMutex(),
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePool registers the prize pool for a tournament.
func (s *PrizeSettlement) CreatePool(ctx context.Context, pool *domain.PrizePool) (*domain.PrizePool, error) {
	if err := pool.Validate(); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	pool.PaidOut = false
	pool.PaidAt = nil
	if err := s.store.CreatePrizePool(ctx, pool); err != nil {
		return nil, storeError("create prize pool", err)
	}
	s.logger.Info("prize pool created",
		"tournament_id", pool.TournamentID,
		"total_pool", pool.TotalPool.StringFixed(domain.CashPlaces),
		"positions", len(pool.Distribution),
	)
	return pool, nil
}

// GetPool returns the pool for a tournament or PoolNotFound.
func (s *PrizeSettlement) GetPool(ctx context.Context, tournamentID string) (*domain.PrizePool, error) {
	pool, err := s.store.FindPrizePool(ctx, tournamentID)
	if err != nil {
		return nil, storeError("load prize pool", err)
	}
	if pool == nil {
		return nil, domain.ErrPoolNotFound(tournamentID)
	}
	return pool, nil
}

// Distribute credits every ranked member their share and then marks the pool
// paid. Member credits are idempotent per tournament:position:user, so a run
// that stopped part-way is finished by calling Distribute again; the pool stays
// open until a run completes with no failed payouts.
func (s *PrizeSettlement) Distribute(ctx context.Context, tournamentID string, rankings []domain.Ranking) (*domain.DistributionResult, error) {
	if tournamentID == "" {
		return nil, domain.ErrValidation("tournament id is required")
	}

	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	pool, err := s.GetPool(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if pool.PaidOut {
		return nil, domain.ErrAlreadyPaidOut(tournamentID)
	}

	payouts, skipped := PlanPayouts(pool, rankings)
	if len(payouts) == 0 {
		s.logger.Warn("prize distribution has nothing to pay, pool left open",
			"tournament_id", tournamentID,
			"rankings", len(rankings),
			"skipped", len(skipped),
		)
		return nil, domain.ErrValidation("rankings produce no payouts")
	}

	result := &domain.DistributionResult{
		TournamentID:     tournamentID,
		Transactions:     make([]domain.Transaction, 0, len(payouts)),
		TotalDistributed: decimal.Zero,
		Skipped:          skipped,
	}

	for _, p := range payouts {
		res, err := s.crediter.Credit(ctx, creditFor(tournamentID, p))
		if err != nil {
			s.logger.Error("prize payout failed",
				"tournament_id", tournamentID,
				"position", p.Position,
				"user_id", p.UserID,
				"amount", p.Amount.String(),
				"error", err,
			)
			result.Failed = append(result.Failed, domain.FailedPayout{
				TeamID:   p.TeamID,
				Position: p.Position,
				UserID:   p.UserID,
				Amount:   p.Amount,
				Code:     domain.ErrorCode(err),
				Error:    err.Error(),
			})
			continue
		}
		result.Transactions = append(result.Transactions, *res.Transaction)
		result.TotalDistributed = result.TotalDistributed.Add(res.Transaction.Amount)
	}
	result.Undistributed = pool.TotalPool.Sub(result.TotalDistributed)

	if len(result.Failed) > 0 {
		s.logger.Warn("prize distribution incomplete, pool left open",
			"tournament_id", tournamentID,
			"failed", len(result.Failed),
			"paid", len(result.Transactions),
		)
		return result, nil
	}

	paidAt := s.now()
	err = s.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		flipped, err := uow.MarkPrizePoolPaid(ctx, tournamentID, paidAt)
		if err != nil {
			return fmt.Errorf("mark prize pool paid: %w", err)
		}
		if !flipped {
			return domain.ErrAlreadyPaidOut(tournamentID)
		}
		event := domain.NewPrizePoolPaidOutEvent(tournamentID, result.TotalDistributed, len(result.Transactions), paidAt)
		return uow.InsertOutbox(ctx, event)
	})
	if err != nil {
		return nil, storeError("mark prize pool paid", err)
	}

	result.PaidOut = true
	s.logger.Info("prize pool paid out",
		"tournament_id", tournamentID,
		"total_distributed", result.TotalDistributed.StringFixed(domain.CashPlaces),
		"undistributed", result.Undistributed.StringFixed(domain.CashPlaces),
		"payouts", len(result.Transactions),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func creditFor(tournamentID string, p Payout) domain.CreditParams {
	meta, _ := json.Marshal(map[string]interface{}{
		"tournament_id": tournamentID,
		"team_id":       p.TeamID,
		"position":      p.Position,
	})
	return domain.CreditParams{
		UserID:        p.UserID,
		Currency:      domain.CurrencyCash,
		Amount:        p.Amount,
		Kind:          domain.KindTournamentWin,
		Description:   fmt.Sprintf("Tournament %s prize, position %d", tournamentID, p.Position),
		ReferenceID:   domain.PayoutReference(tournamentID, p.Position, p.UserID),
		ReferenceType: domain.RefPrizePayout,
		Metadata:      meta,
	}
}

// PlanPayouts computes member payouts in ranking order. The team prize is the
// pool share floored to cents. It is split in whole cents over the members
// sorted by id, and the lowest ids receive the leftover cents, so a member's
// share depends only on the member set and shares always sum to the team prize
// exactly. Members whose share rounds to zero are not paid.
func PlanPayouts(pool *domain.PrizePool, rankings []domain.Ranking) ([]Payout, []domain.SkippedRanking) {
	var payouts []Payout
	var skipped []domain.SkippedRanking
	positions := make(map[int]bool, len(rankings))
	teams := make(map[string]bool, len(rankings))

	skip := func(r domain.Ranking, reason string) {
		skipped = append(skipped, domain.SkippedRanking{TeamID: r.TeamID, Position: r.Position, Reason: reason})
	}

	for _, r := range rankings {
		if err := r.Validate(); err != nil {
			skip(r, fmt.Sprintf("%s: %v", SkipInvalid, err))
			continue
		}
		if teams[r.TeamID] {
			skip(r, SkipDuplicateTeam)
			continue
		}
		if positions[r.Position] {
			skip(r, SkipDuplicatePosition)
			continue
		}
		teams[r.TeamID] = true
		positions[r.Position] = true

		teamPrize := pool.TotalPool.Mul(pool.Fraction(r.Position)).RoundFloor(domain.CashPlaces)
		if !teamPrize.IsPositive() {
			skip(r, SkipNoPrize)
			continue
		}

		members := uniqueMembers(r.MemberIDs)
		for i, share := range splitCents(teamPrize, len(members)) {
			if !share.IsPositive() {
				continue
			}
			payouts = append(payouts, Payout{
				TeamID:   r.TeamID,
				Position: r.Position,
				UserID:   members[i],
				Amount:   share,
			})
		}
	}
	return payouts, skipped
}

// splitCents divides amount into n shares of whole cents.
func splitCents(amount decimal.Decimal, n int) []decimal.Decimal {
	cents := amount.Shift(domain.CashPlaces).IntPart()
	base := cents / int64(n)
	rem := cents % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		c := base
		if int64(i) < rem {
			c++
		}
		shares[i] = decimal.New(c, -domain.CashPlaces)
	}
	return shares
}

func uniqueMembers(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func storeError(op string, err error) error {
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrPersistence(op, err)
}
