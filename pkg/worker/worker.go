package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/repo"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Worker copies the notification stream into the audit tables.
type Worker struct {
	order      repo.IOrder
	orderEvent repo.IOrderEvent
	logger     *logging.Logger
	batchSize  int
}

func NewWorker(r repo.IRepo, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		order:      r.Order(),
		orderEvent: r.OrderEvent(),
		logger:     logger.Named("worker"),
		batchSize:  10,
	}
}

// StartConsumer pulls from a durable JetStream consumer until ctx is done.
// Each fetched batch is stored as a unit: acked once stored, nacked for
// redelivery when storage fails.
func (w *Worker) StartConsumer(ctx context.Context, js nats.JetStreamContext, subject, durable string) error {
	sub, err := js.PullSubscribe(subject, durable)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe() // nolint

	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		msgs, err := sub.Fetch(w.batchSize, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
				w.logger.Warn(ctx, "fetch failed", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}

		batch := make([][]byte, 0, len(msgs))
		for _, msg := range msgs {
			batch = append(batch, msg.Data)
		}
		if err := w.storeBatch(ctx, batch); err != nil {
			w.logger.Error(ctx, "store failed", zap.Int("batch", len(msgs)), zap.Error(err))
			for _, msg := range msgs {
				_ = msg.Nak()
			}
			continue
		}
		for _, msg := range msgs {
			_ = msg.Ack()
		}
	}
	return ctx.Err()
}

// storeBatch inserts the audit rows of a batch in one statement, then
// upserts each order. Payloads that cannot be decoded are logged and skipped
// since redelivery would not fix them.
func (w *Worker) storeBatch(ctx context.Context, batch [][]byte) error {
	events := make([]*repo.OrderEventRecord, 0, len(batch))
	orders := make([]*repo.OrderRecord, 0, len(batch))
	for _, data := range batch {
		n, err := notify.Decode(data)
		if err != nil {
			w.logger.Warn(ctx, "dropping undecodable notification", zap.Error(err))
			continue
		}
		m := notify.ToMessage(n)
		events = append(events, repo.NewOrderEventRecord(m))
		orders = append(orders, repo.NewOrderRecord(m))
	}

	if _, err := w.orderEvent.BulkCreate(ctx, events); err != nil {
		return fmt.Errorf("insert %d events: %w", len(events), err)
	}
	for _, o := range orders {
		if err := w.order.Upsert(ctx, o); err != nil {
			return fmt.Errorf("upsert order %s: %w", o.Hash, err)
		}
	}
	return nil
}
