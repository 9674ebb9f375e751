package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewTransactionPostedEvent creates the standard wallet event for a ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	payload, _ := json.Marshal(tx)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   tx.UserID,
		EventType:     EventTransactionPosted,
		PartitionKey:  tx.UserID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewPrizePoolPaidOutEvent is emitted once, when a pool's paid_out flag flips.
func NewPrizePoolPaidOutEvent(tournamentID string, total decimal.Decimal, payouts int, paidAt time.Time) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"tournament_id":     tournamentID,
		"total_distributed": total.StringFixed(CashPlaces),
		"payouts":           payouts,
		"paid_at":           paidAt,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePrizePool,
		AggregateID:   tournamentID,
		EventType:     EventPrizePoolPaidOut,
		PartitionKey:  tournamentID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
