package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"go.uber.org/zap"
)

// Sink receives every notification in commit order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n notify.Notification) error
}

type Config struct {
	Retries   uint64
	RetryWait time.Duration
	// BacklogWarn is the number of undelivered notifications past which the
	// runner warns that its sinks are falling behind.
	BacklogWarn int
}

// Runner subscribes to the broker and hands each notification to every sink
// in turn. A failing sink is retried a few times and then skipped for that
// notification; it never holds up the book. The subscription is unbounded so
// slow sinks grow a backlog rather than lose notifications.
type Runner struct {
	broker *notify.Broker
	sinks  []Sink
	cfg    Config
	logger *logging.Logger
}

func NewRunner(broker *notify.Broker, cfg Config, logger *logging.Logger, sinks ...Sink) *Runner {
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 100 * time.Millisecond
	}
	if cfg.BacklogWarn <= 0 {
		cfg.BacklogWarn = 10000
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		broker: broker,
		sinks:  sinks,
		cfg:    cfg,
		logger: logger.Named("fanout"),
	}
}

// Run delivers until ctx is done or the broker is closed. Notifications
// already queued when the broker closes are still delivered.
func (r *Runner) Run(ctx context.Context) error {
	sub, err := r.broker.SubscribeUnbounded(ctx)
	if errors.Is(err, notify.ErrBrokerClosed) {
		return nil
	}
	if err != nil {
		return err
	}
	defer r.broker.Unsubscribe(sub.ID())

	behind := false
	for {
		n, err := sub.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, notify.ErrUnsubscribed):
			return nil
		case err != nil:
			return err
		}

		backlog := sub.Len()
		if !behind && backlog >= r.cfg.BacklogWarn {
			r.logger.Warn(ctx, "fan-out is falling behind", zap.Int("backlog", backlog))
		}
		behind = backlog >= r.cfg.BacklogWarn

		r.dispatch(ctx, n)
	}
}

func (r *Runner) dispatch(ctx context.Context, n notify.Notification) {
	for _, s := range r.sinks {
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryWait), r.cfg.Retries), ctx)
		err := backoff.Retry(func() error { return s.Deliver(ctx, n) }, bo)
		if err != nil && ctx.Err() == nil {
			r.logger.Error(ctx, "sink delivery failed",
				zap.String("sink", s.Name()),
				zap.Uint64("seq", n.Sequence()),
				zap.String("order_hash", n.Snapshot().Hash),
				zap.Error(err))
		}
	}
}
