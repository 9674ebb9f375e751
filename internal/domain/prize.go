package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PrizePool represents a prize_pools row: one pool per tournament.
// Distribution maps a finishing position to its fraction of TotalPool.
type PrizePool struct {
	TournamentID string                  `json:"tournament_id"`
	TotalPool    decimal.Decimal         `json:"total_pool"`
	Distribution map[int]decimal.Decimal `json:"distribution"`
	PaidOut      bool                    `json:"paid_out"`
	PaidAt       *time.Time              `json:"paid_at,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Validate checks the pool amount and that listed fractions are in [0,1] and sum to at most 1.
func (p *PrizePool) Validate() error {
	if p.TournamentID == "" {
		return fmt.Errorf("tournament id is required")
	}
	if p.TotalPool.IsNegative() {
		return fmt.Errorf("total pool must not be negative, got %s", p.TotalPool.String())
	}
	if !p.TotalPool.Equal(p.TotalPool.Truncate(CashPlaces)) {
		return fmt.Errorf("total pool supports at most %d decimal places", CashPlaces)
	}
	sum := decimal.Zero
	for pos, frac := range p.Distribution {
		if pos < 1 {
			return fmt.Errorf("position must be >= 1, got %d", pos)
		}
		if frac.IsNegative() || frac.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("fraction for position %d must be within [0,1], got %s", pos, frac.String())
		}
		sum = sum.Add(frac)
	}
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("distribution fractions sum to %s, must not exceed 1", sum.String())
	}
	return nil
}

// Fraction returns the share for position; unlisted positions receive nothing.
func (p *PrizePool) Fraction(position int) decimal.Decimal {
	frac, ok := p.Distribution[position]
	if !ok {
		return decimal.Zero
	}
	return frac
}

// Ranking is one team's final standing in a tournament.
type Ranking struct {
	TeamID    string   `json:"team_id"`
	Position  int      `json:"position"`
	MemberIDs []string `json:"member_ids"`
}

// Validate reports why a ranking entry cannot be paid, or nil.
func (r Ranking) Validate() error {
	if r.TeamID == "" {
		return fmt.Errorf("team id is required")
	}
	if r.Position < 1 {
		return fmt.Errorf("position must be >= 1, got %d", r.Position)
	}
	for _, m := range r.MemberIDs {
		if m != "" {
			return nil
		}
	}
	return fmt.Errorf("at least one member id is required")
}

// PayoutReference is the reference id of one member's payout for a position.
func PayoutReference(tournamentID string, position int, userID string) string {
	return fmt.Sprintf("%s:%d:%s", tournamentID, position, userID)
}

// SkippedRanking records a ranking entry that produced no payouts.
type SkippedRanking struct {
	TeamID   string `json:"team_id"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// FailedPayout records a member credit that failed during distribution.
type FailedPayout struct {
	TeamID   string          `json:"team_id"`
	Position int             `json:"position"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Code     string          `json:"code"`
	Error    string          `json:"error"`
}

// DistributionResult is the outcome of a prize distribution run. Transactions
// includes payouts recorded by earlier partial runs of the same pool.
type DistributionResult struct {
	TournamentID     string           `json:"tournament_id"`
	Transactions     []Transaction    `json:"transactions"`
	TotalDistributed decimal.Decimal  `json:"total_distributed"`
	Undistributed    decimal.Decimal  `json:"undistributed"`
	Skipped          []SkippedRanking `json:"skipped,omitempty"`
	Failed           []FailedPayout   `json:"failed,omitempty"`
	PaidOut          bool             `json:"paid_out"`
}
