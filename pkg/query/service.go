package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joripage/orderbook-sync/pkg/eventstore"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
)

type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// Status is the freshness of the book as reported to consumers.
type Status struct {
	orderbook.Freshness
	Lag   time.Duration `json:"lag"`
	Depth int           `json:"depth"`
}

// Service is the read side of the book. It never mutates the store.
type Service struct {
	store   *orderbook.Store
	broker  *notify.Broker
	journal eventstore.EventStore
	cfg     Config
	now     func() time.Time
}

func NewService(store *orderbook.Store, broker *notify.Broker, journal eventstore.EventStore, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &Service{
		store:   store,
		broker:  broker,
		journal: journal,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *Service) GetOrder(hash string) (orderbook.Order, error) {
	o, ok := s.store.Get(strings.ToLower(hash))
	if !ok {
		return orderbook.Order{}, fmt.Errorf("%w: %s", orderbook.ErrOrderNotFound, hash)
	}
	return o, nil
}

// ListOrders returns open and partially filled orders of pair, best price
// first. SideAny lists asks then bids. limit applies per side; limit <= 0
// takes the configured default.
func (s *Service) ListOrders(pair orderbook.AssetPair, side orderbook.Side, limit int) []orderbook.Order {
	switch {
	case limit <= 0:
		limit = s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		limit = s.cfg.MaxLimit
	}
	pair = orderbook.AssetPair{Base: strings.ToLower(pair.Base), Quote: strings.ToLower(pair.Quote)}
	return s.store.List(pair, side, limit)
}

// Subscribe delivers every notification committed after the call. The
// subscription ends when ctx is done or the subscriber falls behind.
func (s *Service) Subscribe(ctx context.Context) (*notify.Subscription, error) {
	return s.broker.Subscribe(ctx)
}

func (s *Service) Freshness() Status {
	f := s.store.Freshness()
	return Status{
		Freshness: f,
		Lag:       f.Lag(s.now()),
		Depth:     s.store.Len(),
	}
}

// OrderHistory returns the notifications recorded for hash, oldest first.
func (s *Service) OrderHistory(hash string) ([]notify.Message, error) {
	hash = strings.ToLower(hash)
	if s.journal != nil {
		if h := s.journal.History(hash); len(h) > 0 {
			return h, nil
		}
	}
	if _, ok := s.store.Get(hash); !ok {
		return nil, fmt.Errorf("%w: %s", orderbook.ErrOrderNotFound, hash)
	}
	return nil, nil
}
