package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/joripage/orderbook-sync/pkg/reconcile"
	"github.com/joripage/orderbook-sync/pkg/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	events    map[string]*repo.OrderEventRecord
	orders    map[string]*repo.OrderRecord
	upsertErr error
	bulkCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{
		events: make(map[string]*repo.OrderEventRecord),
		orders: make(map[string]*repo.OrderRecord),
	}
}

func (m *memRepo) Order() repo.IOrder           { return m }
func (m *memRepo) OrderEvent() repo.IOrderEvent { return m }

func (m *memRepo) Upsert(_ context.Context, r *repo.OrderRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if cur, ok := m.orders[r.Hash]; ok && !r.Supersedes(cur) {
		return nil
	}
	m.orders[r.Hash] = r
	return nil
}

func (m *memRepo) BulkCreate(_ context.Context, rs []*repo.OrderEventRecord) ([]*repo.OrderEventRecord, error) {
	m.bulkCalls++
	for _, r := range rs {
		if _, ok := m.events[r.EventID]; !ok {
			m.events[r.EventID] = r
		}
	}
	return rs, nil
}

func (m *memRepo) eventsFor(hash string) []*repo.OrderEventRecord {
	var out []*repo.OrderEventRecord
	for _, r := range m.events {
		if r.OrderHash == hash {
			out = append(out, r)
		}
	}
	return out
}

type collector struct {
	mu   sync.Mutex
	data [][]byte
	t    *testing.T
}

func (c *collector) Publish(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, encode(c.t, n))
}

func (c *collector) drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.data
	c.data = nil
	return out
}

func encode(t *testing.T, n notify.Notification) []byte {
	t.Helper()
	data, err := notify.Encode(n)
	require.NoError(t, err)
	return data
}

func hashN(n int) string { return fmt.Sprintf("0x%064x", n) }

func terms(maker int64) orderbook.Terms {
	return orderbook.Terms{
		Maker:       "0x00000000000000000000000000000000000000aa",
		Taker:       orderbook.OpenTaker,
		MakerAsset:  "0xe41d2489571d322189246dafa5ebde1f4699f498",
		TakerAsset:  "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		MakerAmount: decimal.NewFromInt(maker),
		TakerAmount: decimal.NewFromInt(maker / 10),
		Expiration:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fill(hash string, block uint64, delta int64) chainevent.Event {
	return chainevent.Event{
		Kind:      chainevent.KindFill,
		OrderHash: hash,
		Position:  chainevent.Position{BlockNumber: block},
		Fill:      &chainevent.Fill{MakerDelta: decimal.NewFromInt(delta), TakerDelta: decimal.NewFromInt(delta / 10)},
	}
}

func TestStoreBatchIsIdempotent(t *testing.T) {
	mem := newMemRepo()
	w := NewWorker(mem, nil)
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	h := hashN(1)

	added := encode(t, notify.OrderAdded{Seq: 1, Order: orderbook.Order{Hash: h, Status: orderbook.StatusOpen}, At: at})
	filled := encode(t, notify.OrderUpdated{
		Seq: 2,
		Order: orderbook.Order{
			Hash:         h,
			Status:       orderbook.StatusFilled,
			Watermark:    chainevent.Position{BlockNumber: 3},
			HasWatermark: true,
		},
		Previous: orderbook.StatusOpen,
		At:       at,
	})

	require.NoError(t, w.storeBatch(ctx, [][]byte{added, filled}))
	require.NoError(t, w.storeBatch(ctx, [][]byte{added})) // redelivered

	assert.Len(t, mem.events, 2)
	assert.Equal(t, 2, mem.bulkCalls)
	assert.Equal(t, "FILLED", mem.orders[h].Status)
	assert.Equal(t, uint64(3), mem.orders[h].WatermarkBlock)
}

func TestStoreBatchAfterRestart(t *testing.T) {
	mem := newMemRepo()
	w := NewWorker(mem, nil)
	ctx := context.Background()
	h := hashN(1)

	// first run: plenty of unrelated traffic pushes the sequence up
	first := &collector{t: t}
	e1 := reconcile.NewEngine(orderbook.NewStore(), first, nil)
	for i := 100; i < 150; i++ {
		_, err := e1.RegisterOrderTerms(hashN(i), terms(10))
		require.NoError(t, err)
	}
	_, err := e1.RegisterOrderTerms(h, terms(100))
	require.NoError(t, err)
	_, err = e1.Apply(fill(h, 10, 40))
	require.NoError(t, err)
	require.NoError(t, w.storeBatch(ctx, first.drain()))
	require.Equal(t, "PARTIALLY_FILLED", mem.orders[h].Status)
	eventsBefore := len(mem.events)

	// restart: the sequence starts over and the backfill replays block 10
	second := &collector{t: t}
	e2 := reconcile.NewEngine(orderbook.NewStore(), second, nil)
	_, err = e2.RegisterOrderTerms(h, terms(100))
	require.NoError(t, err)
	_, err = e2.Apply(fill(h, 10, 40))
	require.NoError(t, err)
	require.NoError(t, w.storeBatch(ctx, second.drain()))

	assert.Len(t, mem.events, eventsBefore, "replayed transitions keep their ids")
	assert.Equal(t, "PARTIALLY_FILLED", mem.orders[h].Status)

	_, err = e2.Apply(fill(h, 11, 60))
	require.NoError(t, err)
	require.NoError(t, w.storeBatch(ctx, second.drain()))

	got := mem.orders[h]
	assert.Equal(t, "FILLED", got.Status)
	assert.True(t, got.FilledAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, uint64(11), got.WatermarkBlock)
	assert.Len(t, mem.eventsFor(h), 3)
}

func TestStoreBatchErrors(t *testing.T) {
	mem := newMemRepo()
	w := NewWorker(mem, nil)
	ctx := context.Background()

	good := encode(t, notify.OrderAdded{Seq: 1, Order: orderbook.Order{Hash: hashN(2), Status: orderbook.StatusOpen}})
	require.NoError(t, w.storeBatch(ctx, [][]byte{[]byte(`{"type":"Nope"}`), good}))
	assert.Len(t, mem.events, 1)
	assert.Contains(t, mem.orders, hashN(2))

	mem.upsertErr = errors.New("db down")
	err := w.storeBatch(ctx, [][]byte{encode(t, notify.OrderAdded{Seq: 1, Order: orderbook.Order{Hash: hashN(3)}})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
