package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gammazero/deque"
	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"go.uber.org/zap"
)

var (
	ErrSourceUnavailable  = errors.New("log source unavailable")
	errSubscriptionClosed = errors.New("subscription closed")
)

type Config struct {
	StartBlock           uint64
	BatchBlocks          uint64
	MaxReconnectAttempts uint64
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchBlocks == 0 {
		c.BatchBlocks = 1000
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Synchronizer turns a LogSource into an ordered stream of canonical events:
// a historical backfill up to the head followed by the live feed.
type Synchronizer struct {
	source LogSource
	store  *orderbook.Store
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

func New(source LogSource, store *orderbook.Store, cfg Config, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synchronizer{
		source: source,
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger.Named("synchronizer"),
		now:    time.Now,
	}
}

// Run feeds out until ctx is done or the source stays unreachable for
// MaxReconnectAttempts consecutive attempts, in which case the book is marked
// stale and ErrSourceUnavailable is returned. out is closed on return.
func (s *Synchronizer) Run(ctx context.Context, out chan<- chainevent.Event) error {
	defer close(out)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.cfg.InitialBackoff
	exp.MaxInterval = s.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, s.cfg.MaxReconnectAttempts), ctx)

	from := s.cfg.StartBlock
	err := backoff.RetryNotify(func() error {
		err := s.session(ctx, from, out, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		from = s.resumeBlock()
		return err
	}, bo, func(err error, wait time.Duration) {
		s.logger.Warn(ctx, "log source failed, reconnecting",
			zap.Error(err), zap.Duration("wait", wait), zap.Uint64("from_block", from))
	})

	if ctx.Err() != nil {
		s.store.SetSyncState(orderbook.SyncStateIdle)
		return ctx.Err()
	}

	s.store.MarkStale(err.Error())
	s.logger.Error(ctx, "log source unavailable, giving up", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}

// resumeBlock restarts from the block of the last processed event. That
// block is replayed in full and the engine drops what it already has.
func (s *Synchronizer) resumeBlock() uint64 {
	last := s.store.Freshness().LastProcessed
	if last.IsZero() || last.BlockNumber < s.cfg.StartBlock {
		return s.cfg.StartBlock
	}
	return last.BlockNumber
}

// session runs one subscription from bootstrap to failure.
func (s *Synchronizer) session(ctx context.Context, from uint64, out chan<- chainevent.Event, bo backoff.BackOff) error {
	s.store.SetSyncState(orderbook.SyncStateBootstrapping)

	sub, err := s.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	cutoff, err := s.source.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	s.logger.Info(ctx, "backfill started", zap.Uint64("from_block", from), zap.Uint64("to_block", cutoff))

	var pending deque.Deque[chainevent.RawLog]
	for lo := from; lo <= cutoff; lo += s.cfg.BatchBlocks {
		hi := min(lo+s.cfg.BatchBlocks-1, cutoff)

		logs, err := s.source.HistoricalLogs(ctx, lo, hi)
		if err != nil {
			return fmt.Errorf("historical logs [%d, %d]: %w", lo, hi, err)
		}
		if err := s.forward(ctx, out, logs); err != nil {
			return err
		}
		if err := collect(sub, &pending); err != nil {
			return err
		}
	}

	// live logs that arrived during the backfill
	var tail []chainevent.RawLog
	for pending.Len() > 0 {
		l := pending.PopFront()
		if l.BlockNumber >= cutoff {
			tail = append(tail, l)
		}
	}
	if err := s.forward(ctx, out, tail); err != nil {
		return err
	}

	s.store.SetSyncState(orderbook.SyncStateLive)
	bo.Reset()
	s.logger.Info(ctx, "live", zap.Uint64("cutoff_block", cutoff))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription: %w", err)
		case l, ok := <-sub.Logs():
			if !ok {
				return errSubscriptionClosed
			}
			if err := s.forwardOne(ctx, out, l); err != nil {
				return err
			}
		}
	}
}

// forward normalizes logs, drops the bad ones and sends the rest in
// chain position order.
func (s *Synchronizer) forward(ctx context.Context, out chan<- chainevent.Event, logs []chainevent.RawLog) error {
	events := make([]chainevent.Event, 0, len(logs))
	for _, l := range logs {
		if ev, ok := s.normalize(ctx, l); ok {
			events = append(events, ev)
		}
	}
	chainevent.SortByPosition(events)

	for _, ev := range events {
		if err := send(ctx, out, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) forwardOne(ctx context.Context, out chan<- chainevent.Event, l chainevent.RawLog) error {
	ev, ok := s.normalize(ctx, l)
	if !ok {
		return nil
	}
	return send(ctx, out, ev)
}

func (s *Synchronizer) normalize(ctx context.Context, l chainevent.RawLog) (chainevent.Event, bool) {
	ev, err := chainevent.Normalize(l, s.now())
	switch {
	case err == nil:
		return ev, true
	case errors.Is(err, chainevent.ErrIgnoredEvent):
		s.logger.Debug(ctx, "log ignored", zap.String("event", l.Event), zap.Stringer("position", l.Position()))
	default:
		s.logger.Warn(ctx, "malformed log dropped", zap.Error(err), zap.String("tx_hash", l.TxHash))
	}
	return chainevent.Event{}, false
}

func send(ctx context.Context, out chan<- chainevent.Event, ev chainevent.Event) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collect moves whatever the subscription has delivered so far into pending
// without blocking.
func collect(sub LogSubscription, pending *deque.Deque[chainevent.RawLog]) error {
	for {
		select {
		case err := <-sub.Err():
			return fmt.Errorf("subscription: %w", err)
		case l, ok := <-sub.Logs():
			if !ok {
				return errSubscriptionClosed
			}
			pending.PushBack(l)
		default:
			return nil
		}
	}
}
