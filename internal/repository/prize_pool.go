package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/infra"
)

type prizePoolRepo struct{}

// NewPrizePoolRepository returns a pgx-backed PrizePoolRepository.
func NewPrizePoolRepository() PrizePoolRepository {
	return &prizePoolRepo{}
}

func (r *prizePoolRepo) Create(ctx context.Context, db DBTX, pool *domain.PrizePool) error {
	dist, err := json.Marshal(pool.Distribution)
	if err != nil {
		return fmt.Errorf("marshal distribution: %w", err)
	}
	err = db.QueryRow(ctx, `
		INSERT INTO prize_pools (tournament_id, total_pool, distribution)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		pool.TournamentID, infra.DecimalToNumeric(pool.TotalPool), dist,
	).Scan(&pool.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prize pool: %w", err)
	}
	return nil
}

func (r *prizePoolRepo) FindByTournament(ctx context.Context, db DBTX, tournamentID string) (*domain.PrizePool, error) {
	var p domain.PrizePool
	var totalNum pgtype.Numeric
	var dist []byte
	err := db.QueryRow(ctx, `
		SELECT tournament_id, total_pool, distribution, paid_out, paid_at, created_at
		FROM prize_pools WHERE tournament_id = $1`, tournamentID,
	).Scan(&p.TournamentID, &totalNum, &dist, &p.PaidOut, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan prize pool: %w", err)
	}

	p.TotalPool, err = infra.NumericToDecimal(totalNum)
	if err != nil {
		return nil, fmt.Errorf("convert total_pool: %w", err)
	}
	if err := json.Unmarshal(dist, &p.Distribution); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	return &p, nil
}

func (r *prizePoolRepo) MarkPaidOut(ctx context.Context, db DBTX, tournamentID string, paidAt time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE prize_pools SET paid_out = true, paid_at = $2
		WHERE tournament_id = $1 AND paid_out = false`, tournamentID, paidAt)
	if err != nil {
		return false, fmt.Errorf("mark prize pool paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
