package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/eventstore"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/joripage/orderbook-sync/pkg/reconcile"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	zrx  = "0xe41d2489571d322189246dafa5ebde1f4699f498"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

type fixture struct {
	engine  *reconcile.Engine
	journal *eventstore.InMemoryEventStore
	svc     *Service
}

// journalPublisher stands in for the fan-out runner: broker first, then the
// journal.
type journalPublisher struct {
	broker  *notify.Broker
	journal *eventstore.InMemoryEventStore
}

func (p journalPublisher) Publish(n notify.Notification) {
	p.broker.Publish(n)
	p.journal.AddEvent(n)
}

func newFixture(cfg Config) *fixture {
	store := orderbook.NewStore()
	broker := notify.NewBroker(16, nil)
	journal := eventstore.NewInMemoryEventStore(time.Hour)
	return &fixture{
		engine:  reconcile.NewEngine(store, journalPublisher{broker, journal}, nil),
		journal: journal,
		svc:     NewService(store, broker, journal, cfg),
	}
}

func hashN(n int) string { return fmt.Sprintf("0x%064x", n) }

func (f *fixture) register(t *testing.T, n int, makerAsset, takerAsset string, makerAmt, takerAmt int64) string {
	t.Helper()
	h := hashN(n)
	_, err := f.engine.RegisterOrderTerms(h, orderbook.Terms{
		Maker:       "0xmaker",
		MakerAsset:  makerAsset,
		TakerAsset:  takerAsset,
		MakerAmount: decimal.NewFromInt(makerAmt),
		TakerAmount: decimal.NewFromInt(takerAmt),
	})
	require.NoError(t, err)
	return h
}

func TestGetOrder(t *testing.T) {
	f := newFixture(Config{})
	h := f.register(t, 1, zrx, weth, 100, 10)

	o, err := f.svc.GetOrder(h)
	require.NoError(t, err)
	assert.Equal(t, orderbook.StatusOpen, o.Status)

	_, err = f.svc.GetOrder(hashN(2))
	assert.ErrorIs(t, err, orderbook.ErrOrderNotFound)
}

func TestListOrdersBothSides(t *testing.T) {
	f := newFixture(Config{DefaultLimit: 2, MaxLimit: 3})
	pair := orderbook.AssetPair{Base: zrx, Quote: weth}

	// asks sell ZRX for WETH, cheapest first
	a1 := f.register(t, 1, zrx, weth, 100, 12)
	a2 := f.register(t, 2, zrx, weth, 100, 10)
	a3 := f.register(t, 3, zrx, weth, 100, 11)
	// bids sell WETH for ZRX, highest ZRX price first
	b1 := f.register(t, 4, weth, zrx, 10, 100)
	b2 := f.register(t, 5, weth, zrx, 12, 100)

	hashes := func(orders []orderbook.Order) []string {
		var out []string
		for _, o := range orders {
			out = append(out, o.Hash)
		}
		return out
	}

	assert.Equal(t, []string{a2, a3}, hashes(f.svc.ListOrders(pair, orderbook.SideAsk, 0)))
	assert.Equal(t, []string{a2, a3, a1}, hashes(f.svc.ListOrders(pair, orderbook.SideAsk, 50)))
	assert.Equal(t, []string{b2, b1}, hashes(f.svc.ListOrders(pair, orderbook.SideBid, 0)))
	assert.Equal(t, []string{a2, b2}, hashes(f.svc.ListOrders(pair, orderbook.SideAny, 1)))

	upper := orderbook.AssetPair{Base: "0xE41D2489571D322189246DAFA5EBDE1F4699F498", Quote: weth}
	assert.Len(t, f.svc.ListOrders(upper, orderbook.SideAsk, 0), 2)
}

func TestListOrdersReturnsCopies(t *testing.T) {
	f := newFixture(Config{})
	f.register(t, 1, zrx, weth, 100, 10)
	pair := orderbook.AssetPair{Base: zrx, Quote: weth}

	got := f.svc.ListOrders(pair, orderbook.SideAsk, 0)
	require.Len(t, got, 1)
	got[0].Status = orderbook.StatusCancelled

	assert.Equal(t, orderbook.StatusOpen, f.svc.ListOrders(pair, orderbook.SideAsk, 0)[0].Status)
}

func TestSubscribeSeesLaterNotifications(t *testing.T) {
	f := newFixture(Config{})
	h := f.register(t, 1, zrx, weth, 100, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.svc.Subscribe(ctx)
	require.NoError(t, err)

	_, err = f.engine.Apply(chainevent.Event{
		Kind:      chainevent.KindFill,
		OrderHash: h,
		Position:  chainevent.Position{BlockNumber: 3},
		Fill:      &chainevent.Fill{MakerDelta: decimal.NewFromInt(40), TakerDelta: decimal.NewFromInt(4)},
	})
	require.NoError(t, err)

	n, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.KindOrderUpdated, n.Kind())
	assert.Equal(t, uint64(2), n.Sequence())
	assert.Equal(t, orderbook.StatusPartiallyFilled, n.Snapshot().Status)
	assert.Empty(t, sub.Out())
}

func TestFreshnessAndHistory(t *testing.T) {
	f := newFixture(Config{})
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	h := f.register(t, 1, zrx, weth, 100, 10)
	_, err := f.engine.Apply(chainevent.Event{
		Kind:      chainevent.KindCancel,
		OrderHash: h,
		Position:  chainevent.Position{BlockNumber: 7, TxIndex: 1},
	})
	require.NoError(t, err)

	st := f.svc.Freshness()
	assert.Equal(t, chainevent.Position{BlockNumber: 7, TxIndex: 1}, st.LastApplied)
	assert.Equal(t, 1, st.Depth)
	assert.False(t, st.Stale)
	assert.Positive(t, st.Lag)

	history, err := f.svc.OrderHistory(h)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, notify.KindOrderAdded, history[0].Type)
	assert.Equal(t, orderbook.StatusCancelled, history[1].Order.Status)

	_, err = f.svc.OrderHistory(hashN(9))
	assert.ErrorIs(t, err, orderbook.ErrOrderNotFound)
}
