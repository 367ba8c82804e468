package repo

import (
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/shopspring/decimal"
)

// OrderEventRecord is one row of the order_events audit trail.
type OrderEventRecord struct {
	EventID           string          `gorm:"column:event_id;primaryKey"`
	Seq               uint64          `gorm:"column:seq"`
	OrderHash         string          `gorm:"column:order_hash"`
	Type              string          `gorm:"column:type"`
	Status            string          `gorm:"column:status"`
	PreviousStatus    string          `gorm:"column:previous_status"`
	FilledAmount      decimal.Decimal `gorm:"column:filled_amount;type:numeric"`
	FilledTakerAmount decimal.Decimal `gorm:"column:filled_taker_amount;type:numeric"`
	Suspect           bool            `gorm:"column:suspect"`
	BlockNumber       uint64          `gorm:"column:block_number"`
	TxIndex           uint64          `gorm:"column:tx_index"`
	LogIndex          uint64          `gorm:"column:log_index"`
	CommittedAt       time.Time       `gorm:"column:committed_at"`
}

func (OrderEventRecord) TableName() string { return "order_events" }

func NewOrderEventRecord(m notify.Message) *OrderEventRecord {
	return &OrderEventRecord{
		EventID:           m.EventID(),
		Seq:               m.Seq,
		OrderHash:         m.Order.Hash,
		Type:              string(m.Type),
		Status:            string(m.Order.Status),
		PreviousStatus:    string(m.PreviousStatus),
		FilledAmount:      m.Order.FilledAmount,
		FilledTakerAmount: m.Order.FilledTakerAmount,
		Suspect:           m.Order.Suspect,
		BlockNumber:       m.Order.Watermark.BlockNumber,
		TxIndex:           m.Order.Watermark.TxIndex,
		LogIndex:          m.Order.Watermark.LogIndex,
		CommittedAt:       m.At,
	}
}

// OrderRecord is the latest known state of an order.
type OrderRecord struct {
	Hash         string          `gorm:"column:hash;primaryKey"`
	Maker        string          `gorm:"column:maker"`
	MakerAsset   string          `gorm:"column:maker_asset"`
	TakerAsset   string          `gorm:"column:taker_asset"`
	MakerAmount  decimal.Decimal `gorm:"column:maker_amount;type:numeric"`
	TakerAmount  decimal.Decimal `gorm:"column:taker_amount;type:numeric"`
	FilledAmount decimal.Decimal `gorm:"column:filled_amount;type:numeric"`
	Status       string          `gorm:"column:status"`
	TermsPending bool            `gorm:"column:terms_pending"`
	Suspect      bool            `gorm:"column:suspect"`
	// Zero watermark columns mean no chain event was applied yet.
	WatermarkBlock uint64    `gorm:"column:watermark_block"`
	WatermarkTx    uint64    `gorm:"column:watermark_tx"`
	WatermarkLog   uint64    `gorm:"column:watermark_log"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (OrderRecord) TableName() string { return "orders" }

func NewOrderRecord(m notify.Message) *OrderRecord {
	o := m.Order
	r := &OrderRecord{
		Hash:         o.Hash,
		Maker:        o.Terms.Maker,
		MakerAsset:   o.Terms.MakerAsset,
		TakerAsset:   o.Terms.TakerAsset,
		MakerAmount:  o.Terms.MakerAmount,
		TakerAmount:  o.Terms.TakerAmount,
		FilledAmount: o.FilledAmount,
		Status:       string(o.Status),
		TermsPending: o.TermsPending,
		Suspect:      o.Suspect,
		UpdatedAt:    m.At,
	}
	if o.HasWatermark {
		r.WatermarkBlock = o.Watermark.BlockNumber
		r.WatermarkTx = o.Watermark.TxIndex
		r.WatermarkLog = o.Watermark.LogIndex
	}
	return r
}

func (r *OrderRecord) Watermark() chainevent.Position {
	return chainevent.Position{BlockNumber: r.WatermarkBlock, TxIndex: r.WatermarkTx, LogIndex: r.WatermarkLog}
}

// Supersedes reports whether r should replace the stored cur. A later chain
// watermark wins; at the same watermark only a terms registration does.
// Upsert enforces the same rule in SQL.
func (r *OrderRecord) Supersedes(cur *OrderRecord) bool {
	switch r.Watermark().Compare(cur.Watermark()) {
	case 1:
		return true
	case 0:
		return cur.TermsPending && !r.TermsPending
	default:
		return false
	}
}
