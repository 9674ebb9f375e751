package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
)

// BalanceProjection represents a cached wallet balance.
type BalanceProjection struct {
	UserID      string          `json:"user_id"`
	QPBalance   int64           `json:"qp_balance"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DefaultBalanceTTL bounds how long a projection can outlive a missed refresh.
const DefaultBalanceTTL = 5 * time.Minute

func balanceKey(userID string) string {
	return fmt.Sprintf("projection:balance:%s", userID)
}

// FromWallet builds the projection for a committed wallet row.
func FromWallet(w *domain.Wallet) BalanceProjection {
	return BalanceProjection{
		UserID:      w.UserID,
		QPBalance:   w.QPBalance,
		CashBalance: w.CashBalance,
		UpdatedAt:   w.UpdatedAt,
	}
}

// UpdateBalance caches p unless the cache already holds the same or a newer
// wallet version. Wallet updated_at strictly increases, so it orders versions.
func UpdateBalance(ctx context.Context, store Store, p BalanceProjection, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	return store.Update(ctx, balanceKey(p.UserID), ttl, func(current []byte) ([]byte, bool) {
		if current != nil {
			var cached BalanceProjection
			if json.Unmarshal(current, &cached) == nil && !cached.UpdatedAt.Before(p.UpdatedAt) {
				return nil, false
			}
		}
		return data, true
	})
}

// GetBalance retrieves a cached wallet balance projection.
func GetBalance(ctx context.Context, store Store, userID string) (*BalanceProjection, error) {
	var p BalanceProjection
	if err := GetJSON(ctx, store, balanceKey(userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InvalidateBalance removes a user's cached balance.
func InvalidateBalance(ctx context.Context, store Store, userID string) error {
	return store.Delete(ctx, balanceKey(userID))
}
