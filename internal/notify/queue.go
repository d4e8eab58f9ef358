package notify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/order"
)

// ErrQueueFull is returned when the in-process queue cannot take more work.
var ErrQueueFull = errors.New("notification queue full")

var _ order.Dispatcher = (*Queue)(nil)

// Queue is an in-process dispatcher for deployments without Kafka. Jobs are
// buffered in a channel and handled by Run.
type Queue struct {
	jobs    chan int64
	handler Handler
}

// NewQueue creates a queue holding up to size pending jobs.
func NewQueue(size int, h Handler) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{jobs: make(chan int64, size), handler: h}
}

// OrderCreated enqueues the job without blocking.
func (q *Queue) OrderCreated(_ context.Context, orderID int64) error {
	select {
	case q.jobs <- orderID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run handles jobs until ctx is done. Handler errors are logged.
func (q *Queue) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-q.jobs:
			if err := q.handler.HandleOrderCreated(ctx, OrderCreated{OrderID: id}); err != nil {
				lg.Error("Order notification failed", zap.Int64("order_id", id), zap.Error(err))
			}
		}
	}
}
