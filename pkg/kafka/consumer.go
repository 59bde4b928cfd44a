package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/pkg/config"
)

// Handler processes one consumed message.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts plain functions.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Consumer polls a consumer group and commits after every processed batch.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *zap.Logger
}

// NewConsumer joins cfg.ConsumerGroup on the given topics with manual commits.
func NewConsumer(cfg config.KafkaConfig, topics []string, handler Handler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics to consume")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run consumes until ctx is cancelled. Handler errors are logged and the offset is committed
// anyway so that one bad record cannot stall the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Warn("kafka fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := fromRecord(rec)
			if err := c.handler.Handle(ctx, msg); err != nil {
				c.logger.Error("dropping message after handler failure",
					zap.String("topic", msg.Topic), zap.String("key", msg.Key), zap.Int64("offset", msg.Offset), zap.Error(err))
			}
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
