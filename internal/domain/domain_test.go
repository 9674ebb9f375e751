package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateCurrency(t *testing.T) {
	tests := []struct {
		name     string
		currency Currency
		wantErr  bool
	}{
		{"QP", CurrencyQP, false},
		{"cash", CurrencyCash, false},
		{"lowercase", "qp", true},
		{"fiat code", "EUR", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurrency(tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid currency")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name     string
		currency Currency
		amount   string
		wantErr  string
	}{
		{"whole QP", CurrencyQP, "500", ""},
		{"fractional QP", CurrencyQP, "1.5", "whole number"},
		{"zero QP", CurrencyQP, "0", "amount must be positive"},
		{"negative QP", CurrencyQP, "-10", "amount must be positive"},
		{"cash cents", CurrencyCash, "300.25", ""},
		{"cash whole", CurrencyCash, "400", ""},
		{"cash sub-cent", CurrencyCash, "0.001", "decimal places"},
		{"cash negative", CurrencyCash, "-0.01", "amount must be positive"},
		{"unknown currency", "GOLD", "1", "invalid currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.currency, decimal.RequireFromString(tt.amount))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateUserID(t *testing.T) {
	require.NoError(t, ValidateUserID("u1"))
	require.Error(t, ValidateUserID(""))
}

func TestValidateKind(t *testing.T) {
	for _, k := range []TransactionKind{KindPurchase, KindTournamentWin, KindWithdrawal, KindAdminAdjustment, KindRefund} {
		require.NoError(t, ValidateKind(k), k)
	}
	require.Error(t, ValidateKind("bet"))
}

func TestValidateReference(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		refType ReferenceType
		wantErr bool
	}{
		{"none", "", "", false},
		{"both", "evt_1", RefPaymentEvent, false},
		{"id only", "evt_1", "", true},
		{"type only", "", RefPrizePayout, true},
		{"unknown type", "x", "invoice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReference(tt.id, tt.refType)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrNotFound("wallet", "u1")
		assert.Equal(t, "NOT_FOUND: wallet u1 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrPersistence("credit", cause)
		assert.Contains(t, err.Error(), "PERSISTENCE_FAILURE")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrInternal("wrapped", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorCode(t *testing.T) {
	t.Run("direct AppError", func(t *testing.T) {
		assert.Equal(t, CodeInsufficientFunds, ErrorCode(ErrInsufficientFunds(CurrencyCash)))
	})

	t.Run("wrapped AppError keeps its code", func(t *testing.T) {
		err := fmt.Errorf("debit: %w", ErrInsufficientFunds(CurrencyQP))
		assert.Equal(t, CodeInsufficientFunds, ErrorCode(err))
		assert.True(t, IsCode(err, CodeInsufficientFunds))
	})

	t.Run("plain error is internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
	})

	t.Run("nil is no code", func(t *testing.T) {
		assert.False(t, IsCode(nil, CodeInternal))
	})
}

func TestErrorFactories(t *testing.T) {
	key := IdempotencyKey{ReferenceID: "evt_1", ReferenceType: RefPaymentEvent, Kind: KindPurchase}
	tests := []struct {
		name          string
		err           *AppError
		wantCode      string
		wantStatus    int
		wantRetryable bool
	}{
		{"ErrNotFound", ErrNotFound("wallet", "123"), CodeNotFound, 404, false},
		{"ErrConflict", ErrConflict("already exists"), CodeConflict, 409, false},
		{"ErrValidation", ErrValidation("bad input"), CodeValidation, 400, false},
		{"ErrUnauthorized", ErrUnauthorized("no token"), CodeUnauthorized, 401, false},
		{"ErrForbidden", ErrForbidden("not allowed"), CodeForbidden, 403, false},
		{"ErrInsufficientFunds", ErrInsufficientFunds(CurrencyCash), CodeInsufficientFunds, 422, false},
		{"ErrInvalidSignature", ErrInvalidSignature(nil), CodeInvalidSignature, 400, false},
		{"ErrDuplicateReference", ErrDuplicateReference(key), CodeDuplicateReference, 409, false},
		{"ErrPoolNotFound", ErrPoolNotFound("t1"), CodePoolNotFound, 404, false},
		{"ErrAlreadyPaidOut", ErrAlreadyPaidOut("t1"), CodeAlreadyPaidOut, 409, false},
		{"ErrPersistence", ErrPersistence("credit", nil), CodePersistence, 503, true},
		{"ErrRateLimited", ErrRateLimited("slow down"), CodeRateLimited, 429, true},
		{"ErrInternal", ErrInternal("oops", nil), CodeInternal, 500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.Equal(t, tt.wantRetryable, tt.err.Retryable)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

// --- BalanceDelta Tests ---

func TestNewBalanceDelta(t *testing.T) {
	t.Run("QP credit feeds purchased total", func(t *testing.T) {
		d := NewBalanceDelta(CurrencyQP, decimal.NewFromInt(500), KindPurchase)
		assert.Equal(t, int64(500), d.QP)
		assert.Equal(t, int64(500), d.TotalQPPurchased)
		assert.False(t, d.HasCashDelta())
	})

	t.Run("QP debit leaves purchased total", func(t *testing.T) {
		d := NewBalanceDelta(CurrencyQP, decimal.NewFromInt(-200), KindAdminAdjustment)
		assert.Equal(t, int64(-200), d.QP)
		assert.False(t, d.HasQPPurchasedDelta())
	})

	t.Run("cash credit feeds earned total", func(t *testing.T) {
		d := NewBalanceDelta(CurrencyCash, decimal.RequireFromString("300.00"), KindTournamentWin)
		assert.True(t, d.Cash.Equal(decimal.RequireFromString("300")))
		assert.True(t, d.TotalCashEarned.Equal(decimal.RequireFromString("300")))
		assert.False(t, d.HasCashWithdrawnDelta())
		assert.False(t, d.HasQPDelta())
	})

	t.Run("cash withdrawal feeds withdrawn total", func(t *testing.T) {
		d := NewBalanceDelta(CurrencyCash, decimal.RequireFromString("-25.50"), KindWithdrawal)
		assert.True(t, d.HasCashDelta())
		assert.False(t, d.HasCashEarnedDelta())
		assert.True(t, d.TotalCashWithdrawn.Equal(decimal.RequireFromString("25.50")))
	})

	t.Run("cash adjustment debit is not a withdrawal", func(t *testing.T) {
		d := NewBalanceDelta(CurrencyCash, decimal.RequireFromString("-5"), KindAdminAdjustment)
		assert.False(t, d.HasCashWithdrawnDelta())
	})
}

func TestBalanceDelta_Apply(t *testing.T) {
	w := *NewWallet("u1", time.Now())
	w = NewBalanceDelta(CurrencyQP, decimal.NewFromInt(100), KindPurchase).Apply(w)
	w = NewBalanceDelta(CurrencyCash, decimal.RequireFromString("10.10"), KindTournamentWin).Apply(w)
	w = NewBalanceDelta(CurrencyCash, decimal.RequireFromString("-0.10"), KindWithdrawal).Apply(w)

	assert.Equal(t, int64(100), w.QPBalance)
	assert.Equal(t, int64(100), w.TotalQPPurchased)
	assert.Equal(t, "10.00", w.CashBalance.StringFixed(2))
	assert.Equal(t, "10.10", w.TotalCashEarned.StringFixed(2))
	assert.Equal(t, "0.10", w.TotalCashWithdrawn.StringFixed(2))
	assert.True(t, w.Balance(CurrencyQP).Equal(decimal.NewFromInt(100)))
}

// --- PrizePool / Ranking Tests ---

func TestPrizePool_Validate(t *testing.T) {
	valid := func() *PrizePool {
		return &PrizePool{
			TournamentID: "t1",
			TotalPool:    decimal.NewFromInt(1000),
			Distribution: map[int]decimal.Decimal{
				1: decimal.RequireFromString("0.6"),
				2: decimal.RequireFromString("0.4"),
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("fractions above one", func(t *testing.T) {
		p := valid()
		p.Distribution[3] = decimal.RequireFromString("0.1")
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not exceed 1")
	})

	t.Run("negative fraction", func(t *testing.T) {
		p := valid()
		p.Distribution[2] = decimal.RequireFromString("-0.1")
		require.Error(t, p.Validate())
	})

	t.Run("position zero", func(t *testing.T) {
		p := valid()
		p.Distribution[0] = decimal.Zero
		require.Error(t, p.Validate())
	})

	t.Run("sub-cent pool", func(t *testing.T) {
		p := valid()
		p.TotalPool = decimal.RequireFromString("10.005")
		require.Error(t, p.Validate())
	})

	t.Run("missing tournament", func(t *testing.T) {
		p := valid()
		p.TournamentID = ""
		require.Error(t, p.Validate())
	})

	t.Run("unlisted position has zero fraction", func(t *testing.T) {
		assert.True(t, valid().Fraction(7).IsZero())
	})
}

func TestRanking_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ranking Ranking
		wantErr bool
	}{
		{"valid", Ranking{TeamID: "A", Position: 1, MemberIDs: []string{"u1"}}, false},
		{"missing team", Ranking{Position: 1, MemberIDs: []string{"u1"}}, true},
		{"missing position", Ranking{TeamID: "A", MemberIDs: []string{"u1"}}, true},
		{"no members", Ranking{TeamID: "A", Position: 1}, true},
		{"only blank members", Ranking{TeamID: "A", Position: 1, MemberIDs: []string{""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ranking.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPayoutReference(t *testing.T) {
	assert.Equal(t, "t-42:1:u7", PayoutReference("t-42", 1, "u7"))
}

// --- PaymentEvent Tests ---

func TestPaymentEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   PaymentEvent
		wantErr string
	}{
		{"valid", PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: 500}, ""},
		{"valid with bonus", PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: 500, BonusQP: 50}, ""},
		{"missing event id", PaymentEvent{UserID: "u1", QPAmount: 500}, "event id"},
		{"missing user", PaymentEvent{EventID: "evt_1", QPAmount: 500}, "user id"},
		{"zero amount", PaymentEvent{EventID: "evt_1", UserID: "u1"}, "qp amount"},
		{"negative bonus", PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: 5, BonusQP: -1}, "bonus qp"},
		{"largest amount", PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: math.MaxInt64}, ""},
		{"total overflows", PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: math.MaxInt64, BonusQP: 1}, "overflows"},
		{"bonus overflows", PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: 2, BonusQP: math.MaxInt64 - 1}, "overflows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Equal(t, int64(550), PaymentEvent{QPAmount: 500, BonusQP: 50}.TotalQP())
}

// --- Transaction Tests ---

func TestTransaction_Key(t *testing.T) {
	t.Run("no reference", func(t *testing.T) {
		tx := &Transaction{UserID: "u1", Kind: KindAdminAdjustment}
		_, ok := tx.Key()
		assert.False(t, ok)
	})

	t.Run("with reference", func(t *testing.T) {
		ref := "evt_1"
		refType := RefPaymentEvent
		tx := &Transaction{UserID: "u1", Kind: KindPurchase, ReferenceID: &ref, ReferenceType: &refType}
		key, ok := tx.Key()
		require.True(t, ok)
		assert.Equal(t, IdempotencyKey{ReferenceID: "evt_1", ReferenceType: RefPaymentEvent, Kind: KindPurchase}, key)
	})
}

func TestTransactionQuery_NormalizedLimit(t *testing.T) {
	assert.Equal(t, 20, TransactionQuery{}.NormalizedLimit())
	assert.Equal(t, 20, TransactionQuery{Limit: 500}.NormalizedLimit())
	assert.Equal(t, 5, TransactionQuery{Limit: 5}.NormalizedLimit())
}

// --- Event Factory Tests ---

func TestNewTransactionPostedEvent(t *testing.T) {
	tx := &Transaction{
		ID:       uuid.New(),
		UserID:   "u1",
		Currency: CurrencyQP,
		Kind:     KindPurchase,
		Amount:   decimal.NewFromInt(500),
	}

	event := NewTransactionPostedEvent(tx)

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, AggregateWallet, event.AggregateType)
	assert.Equal(t, "u1", event.AggregateID)
	assert.Equal(t, EventTransactionPosted, event.EventType)
	assert.Equal(t, "u1", event.PartitionKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "500", payload["amount"])
	assert.Equal(t, "purchase", payload["kind"])
}

func TestNewPrizePoolPaidOutEvent(t *testing.T) {
	event := NewPrizePoolPaidOutEvent("t1", decimal.NewFromInt(1000), 3, time.Now())

	assert.Equal(t, AggregatePrizePool, event.AggregateType)
	assert.Equal(t, EventPrizePoolPaidOut, event.EventType)
	assert.Equal(t, "t1", event.PartitionKey)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "1000.00", payload["total_distributed"])
	assert.Equal(t, float64(3), payload["payouts"])
}
