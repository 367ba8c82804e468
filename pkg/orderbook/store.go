package orderbook

import (
	"sync"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
)

type SyncState string

const (
	SyncStateIdle          SyncState = "IDLE"
	SyncStateBootstrapping SyncState = "BOOTSTRAPPING"
	SyncStateLive          SyncState = "LIVE"
)

// Freshness tells readers how current the book is.
type Freshness struct {
	LastApplied   chainevent.Position `json:"last_applied"`
	LastProcessed chainevent.Position `json:"last_processed"`
	AppliedAt     time.Time           `json:"applied_at"`
	BlockTime     time.Time           `json:"block_time"`
	SyncState     SyncState           `json:"sync_state"`
	Stale         bool                `json:"stale"`
	StaleReason   string              `json:"stale_reason,omitempty"`
}

// Lag is the wall clock time since the last applied event.
func (f Freshness) Lag(now time.Time) time.Duration {
	if f.AppliedAt.IsZero() {
		return 0
	}
	return now.Sub(f.AppliedAt)
}

// Store is the order book aggregate: orders by hash, the price index and the
// freshness watermark. Reads take the shared lock and return copies; all
// mutation goes through Write.
type Store struct {
	mu        sync.RWMutex
	orders    map[string]*Order
	index     *priceIndex
	freshness Freshness
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[string]*Order),
		index:     newPriceIndex(),
		freshness: Freshness{SyncState: SyncStateIdle},
	}
}

func (s *Store) Get(hash string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[hash]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}

// List returns a snapshot of active orders on one side of pair, best price
// first. SideAny returns asks followed by bids. limit <= 0 means no limit and
// applies per side.
func (s *Store) List(pair AssetPair, side Side, limit int) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Order
	if side == SideAny || side == SideAsk {
		out = s.collect(out, bookKey{maker: pair.Base, taker: pair.Quote}, limit)
	}
	if side == SideAny || side == SideBid {
		out = s.collect(out, bookKey{maker: pair.Quote, taker: pair.Base}, limit)
	}
	return out
}

func (s *Store) collect(out []Order, key bookKey, limit int) []Order {
	n := 0
	s.index.walk(key, func(hash string) bool {
		if limit > 0 && n >= limit {
			return false
		}
		out = append(out, *s.orders[hash])
		n++
		return true
	})
	return out
}

// Depth counts the active orders on one side of pair.
func (s *Store) Depth(pair AssetPair, side Side) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch side {
	case SideAsk:
		return s.index.depth(bookKey{maker: pair.Base, taker: pair.Quote})
	case SideBid:
		return s.index.depth(bookKey{maker: pair.Quote, taker: pair.Base})
	default:
		return s.index.depth(bookKey{maker: pair.Base, taker: pair.Quote}) +
			s.index.depth(bookKey{maker: pair.Quote, taker: pair.Base})
	}
}

func (s *Store) Freshness() Freshness {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.freshness
}

func (s *Store) SetSyncState(state SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.freshness.SyncState = state
	if state == SyncStateLive {
		s.freshness.Stale = false
		s.freshness.StaleReason = ""
	}
}

// MarkStale flags the book as no longer following the chain.
func (s *Store) MarkStale(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.freshness.Stale = true
	s.freshness.StaleReason = reason
}

// Write runs fn holding the exclusive lock, so no reader observes a state in
// which fn has only partly run.
func (s *Store) Write(fn func(w *Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&Writer{s: s})
}

// Writer is the mutation handle passed to Write. It must not escape fn.
type Writer struct {
	s *Store
}

func (w *Writer) Get(hash string) (Order, bool) {
	o, ok := w.s.orders[hash]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Put stores o and keeps the price index in step with it. An order that stays
// at the same price level keeps its place in the level.
func (w *Writer) Put(o Order) {
	stored := o
	w.s.orders[o.Hash] = &stored

	ix := w.s.index
	switch {
	case !stored.IsActive():
		ix.remove(stored.Hash)
	case ix.sameSlot(&stored):
	default:
		ix.remove(stored.Hash)
		ix.add(&stored)
	}
}

// MarkProcessed records that the event at pos was consumed, whatever its
// outcome.
func (w *Writer) MarkProcessed(pos chainevent.Position) {
	w.s.freshness.LastProcessed = chainevent.Max(w.s.freshness.LastProcessed, pos)
}

// MarkApplied records a successfully applied event.
func (w *Writer) MarkApplied(pos chainevent.Position, blockTime, at time.Time) {
	f := &w.s.freshness
	f.LastApplied = chainevent.Max(f.LastApplied, pos)
	f.LastProcessed = chainevent.Max(f.LastProcessed, pos)
	f.AppliedAt = at
	if blockTime.After(f.BlockTime) {
		f.BlockTime = blockTime
	}
}
