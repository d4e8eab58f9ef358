package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/order"
)

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Dispatcher = (*KafkaDispatcher)(nil)

// KafkaDispatcher publishes OrderCreated events. The writer runs in async
// mode, so OrderCreated returns once the message is buffered and delivery
// errors are only logged.
type KafkaDispatcher struct {
	w   messageWriter
	now func() time.Time
}

// NewKafkaDispatcher creates a dispatcher with an async kafka.Writer.
func NewKafkaDispatcher(cfg KafkaConfig, lg *zap.Logger) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				lg.Error("Order notification delivery failed",
					zap.Int("messages", len(messages)),
					zap.Error(err),
				)
			}
		},
	}
	return newKafkaDispatcher(w)
}

func newKafkaDispatcher(w messageWriter) *KafkaDispatcher {
	return &KafkaDispatcher{w: w, now: time.Now}
}

// OrderCreated buffers the event for publishing.
func (d *KafkaDispatcher) OrderCreated(ctx context.Context, orderID int64) error {
	ev := OrderCreated{OrderID: orderID, PlacedAt: d.now()}
	msg := kafka.Message{
		Key:   orderKey(orderID),
		Value: ev.marshal(),
	}
	if err := d.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish order %d", orderID)
	}
	return nil
}

// Close flushes buffered messages.
func (d *KafkaDispatcher) Close() error {
	return d.w.Close()
}
