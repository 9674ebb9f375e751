package infra

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyhub/economy/internal/domain"
)

type fakeSource struct {
	events    []domain.OutboxDraft
	published []int64
}

func (f *fakeSource) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxDraft, error) {
	var out []domain.OutboxDraft
	for _, e := range f.events {
		if contains(f.published, e.SeqID) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, seqIDs []int64) error {
	f.published = append(f.published, seqIDs...)
	return nil
}

type fakePublisher struct {
	failOn map[string]bool
	topics []string
	keys   []string
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, _ []byte) error {
	if f.failOn[string(key)] {
		return errors.New("broker unavailable")
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, string(key))
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func draft(seq int64, key string) domain.OutboxDraft {
	return domain.OutboxDraft{
		SeqID:        seq,
		EventID:      uuid.New(),
		EventType:    domain.EventTransactionPosted,
		PartitionKey: key,
		Payload:      []byte(`{}`),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxPoller_PublishesInOrder(t *testing.T) {
	src := &fakeSource{events: []domain.OutboxDraft{draft(1, "u1"), draft(2, "u2"), draft(3, "u1")}}
	pub := &fakePublisher{}
	p := NewOutboxPoller(src, pub, 0, 10, discardLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"u1", "u2", "u1"}, pub.keys)
	assert.Equal(t, string(domain.EventTransactionPosted), pub.topics[0])
	assert.Equal(t, []int64{1, 2, 3}, src.published)

	n, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxPoller_StopsAtFirstFailure(t *testing.T) {
	src := &fakeSource{events: []domain.OutboxDraft{draft(1, "u1"), draft(2, "bad"), draft(3, "u1")}}
	pub := &fakePublisher{failOn: map[string]bool{"bad": true}}
	p := NewOutboxPoller(src, pub, 0, 10, discardLogger())

	n, err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, src.published)

	// Broker recovers; the remaining events go out in order.
	pub.failOn = nil
	n, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2, 3}, src.published)
}

func TestOutboxPoller_RespectsBatchSize(t *testing.T) {
	src := &fakeSource{events: []domain.OutboxDraft{draft(1, "a"), draft(2, "b"), draft(3, "c")}}
	p := NewOutboxPoller(src, &fakePublisher{}, 0, 2, discardLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOutboxPoller_OpensCircuitOnRepeatedFailures(t *testing.T) {
	src := &fakeSource{events: []domain.OutboxDraft{draft(1, "bad")}}
	pub := &fakePublisher{failOn: map[string]bool{"bad": true}}
	p := NewOutboxPoller(src, pub, 0, 10, discardLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := p.PollOnce(ctx)
		require.Error(t, err)
	}

	// Circuit is open: the poll is skipped without touching the broker.
	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			JWTSecret:           "0123456789abcdef0123456789abcdef",
			StripeWebhookSecret: "whsec_test",
			OutboxBatchSize:     100,
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.JWTSecret = "change-me-in-production"
	assert.Error(t, c.Validate())

	c = base()
	c.JWTSecret = "short"
	assert.Error(t, c.Validate())

	c = base()
	c.StripeWebhookSecret = ""
	assert.Error(t, c.Validate())

	c = base()
	c.JWTSecret = "short"
	c.AllowInsecureDefaults = true
	assert.NoError(t, c.Validate())

	c = base()
	c.OutboxBatchSize = 0
	assert.Error(t, c.Validate())

	c = base()
	c.StoreDriver = StoreDriverMemory
	assert.Error(t, c.Validate())
	c.AllowInsecureDefaults = true
	assert.NoError(t, c.Validate())

	c = base()
	c.StoreDriver = "sqlite"
	assert.Error(t, c.Validate())
}

func TestConfig_DSN(t *testing.T) {
	c := &Config{PGUser: "u", PGPassword: "p", PGHost: "h", PGPort: 5432, PGDatabase: "d"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}
