package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/joripage/orderbook-sync/pkg/notify"
)

type InMemoryEventStore struct {
	mu         sync.RWMutex
	orders     map[string][]notify.Message
	terminalAt map[string]time.Time // hash -> commit time of the terminal notification
	retention  time.Duration
}

// NewInMemoryEventStore keeps an order's history until retention has passed
// since it became terminal. retention <= 0 keeps everything.
func NewInMemoryEventStore(retention time.Duration) *InMemoryEventStore {
	return &InMemoryEventStore{
		orders:     make(map[string][]notify.Message),
		terminalAt: make(map[string]time.Time),
		retention:  retention,
	}
}

func (s *InMemoryEventStore) AddEvent(n notify.Notification) {
	m := notify.ToMessage(n)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[m.Order.Hash] = append(s.orders[m.Order.Hash], m)
	if m.Order.Status.IsTerminal() {
		if _, ok := s.terminalAt[m.Order.Hash]; !ok {
			s.terminalAt[m.Order.Hash] = m.At
		}
	}
}

// History returns the recorded notifications of hash, oldest first.
func (s *InMemoryEventStore) History(hash string) []notify.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]notify.Message(nil), s.orders[hash]...)
}

func (s *InMemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}

// Cleanup drops the history of orders terminal for longer than the
// retention and returns how many were dropped.
func (s *InMemoryEventStore) Cleanup(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, at := range s.terminalAt {
		if now.Sub(at) >= s.retention {
			delete(s.orders, hash)
			delete(s.terminalAt, hash)
			n++
		}
	}
	return n
}

func (s *InMemoryEventStore) StartCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup(time.Now())
		case <-ctx.Done():
			return
		}
	}
}
