package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/ledger"
	"github.com/tourneyhub/economy/internal/provider"
	"github.com/tourneyhub/economy/internal/repository/memory"
)

type paymentFixture struct {
	store     *memory.Store
	engine    *ledger.Engine
	stripe    *provider.StripeProvider
	processor *PaymentProcessor
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	engine := ledger.NewEngine(store, nil, logger)
	stripe := provider.NewStripeProvider("whsec_test")
	return &paymentFixture{
		store:     store,
		engine:    engine,
		stripe:    stripe,
		processor: NewPaymentProcessor(stripe, engine, logger),
	}
}

func (f *paymentFixture) qp(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := f.engine.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.QPBalance
}

func webhookBody(id, eventType string, metadata map[string]string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "cs_" + id,
				"metadata": metadata,
			},
		},
	})
	return body
}

func TestHandle_CreditsOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ev := domain.PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: 500}

	first, err := f.processor.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(500), first.Credited)
	require.NotNil(t, first.TransactionID)

	second, err := f.processor.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, *first.TransactionID, *second.TransactionID)

	assert.Equal(t, int64(500), f.qp(t, "u1"))
	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.KindPurchase, txs[0].Kind)
	assert.Equal(t, "evt_1", *txs[0].ReferenceID)
	assert.Equal(t, domain.RefPaymentEvent, *txs[0].ReferenceType)
}

func TestHandle_EventIDUniqueAcrossUsers(t *testing.T) {
	f := newPaymentFixture(t)

	first, err := f.processor.Handle(context.Background(), domain.PaymentEvent{EventID: "evt_1", UserID: "u1", QPAmount: 500})
	require.NoError(t, err)

	second, err := f.processor.Handle(context.Background(), domain.PaymentEvent{EventID: "evt_1", UserID: "u2", QPAmount: 500})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, *first.TransactionID, *second.TransactionID)

	assert.Equal(t, int64(500), f.qp(t, "u1"))
	assert.Zero(t, f.qp(t, "u2"))
	require.Len(t, f.store.Transactions(), 1)
	assert.Equal(t, "u1", f.store.Transactions()[0].UserID)
}

func TestHandle_ConcurrentEventIDAcrossUsers(t *testing.T) {
	f := newPaymentFixture(t)
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.processor.Handle(context.Background(), domain.PaymentEvent{EventID: "evt_shared", UserID: userID, QPAmount: 100})
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	var total int64
	for _, u := range users {
		total += f.qp(t, u)
	}
	assert.Equal(t, int64(100), total)
	assert.Equal(t, int64(100), f.qp(t, txs[0].UserID))
}

func TestHandle_BonusFoldedIntoSingleEntry(t *testing.T) {
	f := newPaymentFixture(t)

	res, err := f.processor.Handle(context.Background(), domain.PaymentEvent{EventID: "evt_2", UserID: "u1", QPAmount: 1000, BonusQP: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(1100), res.Credited)
	assert.Equal(t, int64(1100), f.qp(t, "u1"))
	assert.Len(t, f.store.Transactions(), 1)
}

func TestHandle_InvalidEvent(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.processor.Handle(context.Background(), domain.PaymentEvent{EventID: "evt_3", UserID: "u1", QPAmount: 0})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
	assert.Empty(t, f.store.Transactions())
}

func TestHandle_ConcurrentRedelivery(t *testing.T) {
	f := newPaymentFixture(t)
	ev := domain.PaymentEvent{EventID: "evt_c", UserID: "u1", QPAmount: 250}

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.processor.Handle(context.Background(), ev)
			if err != nil {
				return
			}
			mu.Lock()
			if !res.Duplicate {
				fresh++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(250), f.qp(t, "u1"))
}

func TestHandle_PersistenceFailureIsRetryable(t *testing.T) {
	f := newPaymentFixture(t)
	ev := domain.PaymentEvent{EventID: "evt_p", UserID: "u1", QPAmount: 100}

	f.store.SetFault(func(op, _ string) error {
		if op == memory.OpCommit {
			return errors.New("disk full")
		}
		return nil
	})
	_, err := f.processor.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodePersistence))
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.True(t, appErr.Retryable)
	assert.Empty(t, f.store.Transactions())

	f.store.SetFault(nil)
	res, err := f.processor.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(100), f.qp(t, "u1"))
}

func TestHandleWebhook_ProcessesSignedDelivery(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody("evt_1", provider.EventCheckoutCompleted, map[string]string{"user_id": "u1", "qp_amount": "500"})
	header := f.stripe.SignatureHeader(body, time.Now())

	for i := 0; i < 2; i++ {
		res, err := f.processor.HandleWebhook(context.Background(), body, header)
		require.NoError(t, err)
		assert.Equal(t, i == 1, res.Duplicate)
	}
	assert.Equal(t, int64(500), f.qp(t, "u1"))
	assert.Len(t, f.store.Transactions(), 1)
	assert.Len(t, f.store.Outbox(), 1)
}

func TestHandleWebhook_InvalidSignatureHasNoEffect(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody("evt_1", provider.EventCheckoutCompleted, map[string]string{"user_id": "u1", "qp_amount": "500"})
	header := provider.NewStripeProvider("whsec_forged").SignatureHeader(body, time.Now())

	_, err := f.processor.HandleWebhook(context.Background(), body, header)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidSignature))
	assert.Empty(t, f.store.Transactions())
	assert.Empty(t, f.store.Outbox())
	assert.Equal(t, int64(0), f.qp(t, "u1"))
}

func TestHandleWebhook_IgnoresOtherEventTypes(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody("evt_9", "payment_intent.created", nil)

	res, err := f.processor.HandleWebhook(context.Background(), body, f.stripe.SignatureHeader(body, time.Now()))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Nil(t, res.TransactionID)
	assert.Empty(t, f.store.Transactions())
}

func TestHandleWebhook_MalformedPurchase(t *testing.T) {
	f := newPaymentFixture(t)
	body := webhookBody("evt_m", provider.EventCheckoutCompleted, map[string]string{"user_id": "u1"})

	_, err := f.processor.HandleWebhook(context.Background(), body, f.stripe.SignatureHeader(body, time.Now()))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
	assert.Empty(t, f.store.Transactions())
}
