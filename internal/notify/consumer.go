package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// Consumer reads OrderCreated events from Kafka and passes them to a
// Handler. A failing handler is retried with exponential backoff; once the
// attempts are used up the notification is logged and dropped. Every
// message is committed before the next one is fetched.
type Consumer struct {
	r messageReader
	h Handler

	attempts int
	backoff  time.Duration
}

// NewConsumer creates a consumer group reader for cfg.Topic.
func NewConsumer(cfg KafkaConfig, h Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 1e6,
	})
	return newConsumer(r, h)
}

func newConsumer(r messageReader, h Handler) *Consumer {
	return &Consumer{r: r, h: h, attempts: defaultAttempts, backoff: defaultBackoff}
}

// Run processes messages until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		ev, err := unmarshalOrderCreated(m.Value)
		if err != nil {
			lg.Warn("Skipping malformed message",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		} else if err := c.handle(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			lg.Error("Order notification dropped",
				zap.Int64("order_id", ev.OrderID),
				zap.Int("attempts", c.attempts),
				zap.Error(err),
			)
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, ev OrderCreated) error {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.h.HandleOrderCreated(ctx, ev)
		if err == nil {
			return nil
		}
		if attempt >= c.attempts {
			return err
		}
		zctx.From(ctx).Warn("Retrying order notification",
			zap.Int64("order_id", ev.OrderID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.r.Close()
}
