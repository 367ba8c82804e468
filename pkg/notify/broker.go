package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/joripage/orderbook-sync/pkg/logging"
	"go.uber.org/zap"
)

var ErrBrokerClosed = errors.New("broker closed")

const defaultCapacity = 1024

// Broker fans notifications out to subscribers. Publish never blocks on a
// slow subscriber: a bounded one whose buffer is full is dropped with
// ErrOutOfCapacity, an unbounded one queues without limit.
type Broker struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	capacity int
	closed   bool
	logger   *logging.Logger
}

func NewBroker(capacity int, logger *logging.Logger) *Broker {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broker{
		subs:     make(map[string]*Subscription),
		capacity: capacity,
		logger:   logger,
	}
}

// Subscribe registers a bounded subscriber. It is removed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context) (*Subscription, error) {
	return b.subscribe(ctx, newSubscription(b.capacity))
}

// SubscribeUnbounded registers a subscriber that is never dropped for
// falling behind. Its backlog is only bounded by memory, so it is meant for
// in-process consumers that must see every notification.
func (b *Broker) SubscribeUnbounded(ctx context.Context) (*Subscription, error) {
	return b.subscribe(ctx, newUnboundedSubscription())
}

func (b *Broker) subscribe(ctx context.Context, sub *Subscription) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	b.subs[sub.id] = sub

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(sub.id)
		case <-sub.canceled:
		}
	}()

	return sub, nil
}

func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		sub.cancel(ErrUnsubscribed)
	}
}

// Publish hands n to every subscriber. Callers publish from a single
// goroutine so subscribers observe commit order.
func (b *Broker) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if sub.offer(n) {
			continue
		}
		delete(b.subs, id)
		sub.cancel(ErrOutOfCapacity)
		b.logger.Warn(context.Background(), "dropping slow subscriber",
			zap.String("subscription_id", id),
			zap.Uint64("seq", n.Sequence()))
	}
}

func (b *Broker) NumSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close cancels every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.cancel(ErrUnsubscribed)
	}
}
