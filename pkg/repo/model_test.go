package repo

import (
	"testing"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordsFromMessage(t *testing.T) {
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m := notify.ToMessage(notify.OrderUpdated{
		Seq: 12,
		Order: orderbook.Order{
			Hash: "0xabc",
			Terms: orderbook.Terms{
				Maker:       "0xmaker",
				MakerAsset:  "0xzrx",
				TakerAsset:  "0xweth",
				MakerAmount: decimal.NewFromInt(100),
				TakerAmount: decimal.NewFromInt(10),
			},
			FilledAmount:      decimal.NewFromInt(40),
			FilledTakerAmount: decimal.NewFromInt(4),
			Status:            orderbook.StatusPartiallyFilled,
			Watermark:         chainevent.Position{BlockNumber: 9, TxIndex: 2, LogIndex: 1},
			HasWatermark:      true,
		},
		Previous: orderbook.StatusOpen,
		At:       at,
	})

	ev := NewOrderEventRecord(m)
	assert.Equal(t, m.EventID(), ev.EventID)
	assert.Equal(t, "OrderUpdated", ev.Type)
	assert.Equal(t, "PARTIALLY_FILLED", ev.Status)
	assert.Equal(t, "OPEN", ev.PreviousStatus)
	assert.Equal(t, uint64(9), ev.BlockNumber)
	assert.Equal(t, uint64(2), ev.TxIndex)
	assert.True(t, ev.FilledAmount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "order_events", ev.TableName())

	o := NewOrderRecord(m)
	assert.Equal(t, "0xabc", o.Hash)
	assert.Equal(t, chainevent.Position{BlockNumber: 9, TxIndex: 2, LogIndex: 1}, o.Watermark())
	assert.True(t, o.MakerAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, at, o.UpdatedAt)
	assert.Equal(t, "orders", o.TableName())
}

func TestOrderRecordSupersedes(t *testing.T) {
	rec := func(block, log uint64, pending bool) *OrderRecord {
		return &OrderRecord{Hash: "0xabc", WatermarkBlock: block, WatermarkLog: log, TermsPending: pending}
	}

	cases := []struct {
		name     string
		next     *OrderRecord
		cur      *OrderRecord
		expected bool
	}{
		{"later block", rec(10, 0, false), rec(9, 5, false), true},
		{"later log", rec(9, 6, false), rec(9, 5, false), true},
		{"same position", rec(9, 5, false), rec(9, 5, false), false},
		{"earlier position", rec(8, 0, false), rec(9, 5, false), false},
		{"terms registered at same position", rec(9, 5, false), rec(9, 5, true), true},
		{"terms pending does not undo registration", rec(9, 5, true), rec(9, 5, false), false},
		{"registered before any chain event", rec(0, 0, false), rec(0, 0, true), true},
		{"earlier position with terms", rec(8, 0, false), rec(9, 5, true), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.next.Supersedes(tc.cur))
		})
	}
}
