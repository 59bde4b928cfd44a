package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/kafka"
)

type outboxStore interface {
	ClaimPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	Park(ctx context.Context, id, reason string, at time.Time) error
}

type publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// OutboxRelayConfig tunes the polling loop.
type OutboxRelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts parks a row once it has failed this many times; later rows then proceed.
	MaxAttempts int
}

// OutboxRelay publishes committed outbox rows to the event bus in creation order.
type OutboxRelay struct {
	store     outboxStore
	publisher publisher
	tx        txRunner
	cfg       OutboxRelayConfig
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewOutboxRelay constructs the relay.
func NewOutboxRelay(store outboxStore, pub publisher, tx txRunner, cfg OutboxRelayConfig, metrics *MetricsService, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &OutboxRelay{store: store, publisher: pub, tx: tx, cfg: cfg, metrics: metrics, logger: logger, now: time.Now}
}

// Run flushes on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	r.logger.Info("outbox relay started", zap.Duration("interval", r.cfg.PollInterval), zap.Int("batch", r.cfg.BatchSize))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and returns how many rows were published. Rows stay locked for the
// duration of the batch; the first publish failure stops the batch so per-key order is kept, unless
// that row has used up its attempts, in which case it is parked and the batch goes on.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	var claimed, published, failed int
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		batch, err := r.store.ClaimPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		claimed = len(batch)
		for _, msg := range batch {
			if err := r.publisher.Publish(ctx, toKafkaMessage(msg)); err != nil {
				failed++
				attempts := msg.Attempts + 1
				fields := []zap.Field{
					zap.String("outbox_id", msg.ID),
					zap.String("aggregate_id", msg.AggregateID),
					zap.String("topic", msg.Topic),
					zap.Int("attempts", attempts),
					zap.Error(err),
				}
				if attempts >= r.cfg.MaxAttempts {
					r.logger.Error("outbox row parked", fields...)
					if err := r.store.Park(ctx, msg.ID, err.Error(), r.now().UTC()); err != nil {
						return err
					}
					continue
				}
				r.logger.Warn("outbox publish failed", fields...)
				return r.store.MarkFailed(ctx, msg.ID, err.Error())
			}
			if err := r.store.MarkPublished(ctx, msg.ID, r.now().UTC()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	r.metrics.RecordOutbox(claimed, published, failed)
	if err != nil {
		return 0, err
	}
	return published, nil
}

func toKafkaMessage(msg models.OutboxMessage) kafka.Message {
	headers := map[string]string{
		"event-type":     msg.EventType,
		"aggregate-type": msg.AggregateType,
		"outbox-id":      msg.ID,
	}
	if msg.CorrelationID != nil {
		headers["correlation-id"] = *msg.CorrelationID
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.MessageKey,
		Value:   msg.Payload,
		Headers: headers,
	}
}
