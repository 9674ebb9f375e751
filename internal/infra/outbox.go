package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/guard"
)

const brokerCircuit = "broker"

// OutboxSource reads committed outbox rows in insertion order.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxDraft, error)
	MarkPublished(ctx context.Context, seqIDs []int64) error
}

// Publisher delivers one message to a topic. KafkaProducer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	source    OutboxSource
	producer  Publisher
	logger    *slog.Logger
	breaker   *guard.CircuitBreaker
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(source OutboxSource, producer Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		source:    source,
		producer:  producer,
		breaker:   guard.NewCircuitBreaker(5, 30*time.Second),
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// PollOnce publishes one batch and returns how many events were delivered.
// Publishing stops at the first failure so later events for the same key are
// never delivered ahead of an earlier one; the failed event is retried next poll.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	if res := p.breaker.Check(ctx, brokerCircuit); !res.Allowed {
		p.logger.Debug("outbox poll skipped", "reason", res.Reason)
		return 0, nil
	}

	events, err := p.source.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(events))
	var publishErr error
	for _, e := range events {
		msg, err := json.Marshal(e)
		if err != nil {
			publishErr = fmt.Errorf("marshal event %s: %w", e.EventID, err)
			break
		}
		if err := p.producer.Publish(ctx, string(e.EventType), []byte(e.PartitionKey), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "event_type", e.EventType, "error", err)
			p.breaker.RecordFailure(brokerCircuit)
			publishErr = fmt.Errorf("publish event %s: %w", e.EventID, err)
			break
		}
		p.breaker.RecordSuccess(brokerCircuit)
		published = append(published, e.SeqID)
	}

	if len(published) > 0 {
		if err := p.source.MarkPublished(ctx, published); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}

	p.logger.Debug("outbox poll complete", "published", len(published), "fetched", len(events))
	return len(published), publishErr
}
