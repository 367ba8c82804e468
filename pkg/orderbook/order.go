package orderbook

import (
	"strings"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
)

func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusExpired
}

// OpenTaker is the taker address of an order anyone may fill.
const OpenTaker = "0x0000000000000000000000000000000000000000"

// Terms are the signed, immutable parameters of an order.
type Terms struct {
	Maker        string          `json:"maker"`
	Taker        string          `json:"taker"`
	MakerAsset   string          `json:"maker_asset"`
	TakerAsset   string          `json:"taker_asset"`
	MakerAmount  decimal.Decimal `json:"maker_amount"`
	TakerAmount  decimal.Decimal `json:"taker_amount"`
	Expiration   time.Time       `json:"expiration"`
	FeeRecipient string          `json:"fee_recipient,omitempty"`
}

func (t Terms) Equal(o Terms) bool {
	return t.Maker == o.Maker &&
		t.Taker == o.Taker &&
		t.MakerAsset == o.MakerAsset &&
		t.TakerAsset == o.TakerAsset &&
		t.MakerAmount.Equal(o.MakerAmount) &&
		t.TakerAmount.Equal(o.TakerAmount) &&
		t.Expiration.Equal(o.Expiration) &&
		t.FeeRecipient == o.FeeRecipient
}

// Normalized lower-cases every address so hex case never splits a book.
func (t Terms) Normalized() Terms {
	t.Maker = strings.ToLower(t.Maker)
	t.Taker = strings.ToLower(t.Taker)
	t.MakerAsset = strings.ToLower(t.MakerAsset)
	t.TakerAsset = strings.ToLower(t.TakerAsset)
	t.FeeRecipient = strings.ToLower(t.FeeRecipient)
	return t
}

// IsOpenTaker reports whether anyone may fill the order.
func (t Terms) IsOpenTaker() bool {
	return t.Taker == "" || t.Taker == OpenTaker
}

// Price is the taker amount asked per unit of maker asset.
func (t Terms) Price() decimal.Decimal {
	if t.MakerAmount.IsZero() {
		return decimal.Zero
	}
	return t.TakerAmount.Div(t.MakerAmount)
}

type Order struct {
	Hash              string          `json:"hash"`
	Terms             Terms           `json:"terms"`
	TermsPending      bool            `json:"terms_pending"`
	FilledAmount      decimal.Decimal `json:"filled_amount"`
	FilledTakerAmount decimal.Decimal `json:"filled_taker_amount"`
	Status            Status          `json:"status"`
	Cancelled         bool            `json:"cancelled"`
	Expired           bool            `json:"expired"`
	Suspect           bool            `json:"suspect"`
	// Watermark is the position of the last applied chain event. It is
	// only meaningful once HasWatermark is set.
	Watermark    chainevent.Position `json:"watermark"`
	HasWatermark bool                `json:"has_watermark"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewProvisionalOrder creates the OPEN placeholder for a hash first seen
// through a chain event. Terms stay pending until registered.
func NewProvisionalOrder(hash string, now time.Time) Order {
	return Order{
		Hash:              hash,
		TermsPending:      true,
		FilledAmount:      decimal.Zero,
		FilledTakerAmount: decimal.Zero,
		Status:            StatusOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func NewOrder(hash string, terms Terms, now time.Time) Order {
	o := NewProvisionalOrder(hash, now)
	o.Terms = terms
	o.TermsPending = false
	return o
}

// DeriveStatus computes the status from fill progress and the sticky
// terminal flags. Cancelled and expired win over any fill progress.
func (o Order) DeriveStatus() Status {
	switch {
	case o.Cancelled:
		return StatusCancelled
	case o.Expired:
		return StatusExpired
	case o.FilledAmount.IsPositive() && !o.TermsPending && o.FilledAmount.GreaterThanOrEqual(o.Terms.MakerAmount):
		return StatusFilled
	case o.FilledAmount.IsPositive():
		return StatusPartiallyFilled
	default:
		return StatusOpen
	}
}

// RemainingAmount is the unfilled maker amount, zero while terms are pending.
func (o Order) RemainingAmount() decimal.Decimal {
	if o.TermsPending {
		return decimal.Zero
	}
	rest := o.Terms.MakerAmount.Sub(o.FilledAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// IsActive reports whether the order belongs in the price index.
func (o Order) IsActive() bool {
	return !o.TermsPending && !o.Status.IsTerminal()
}

func (o Order) Pair() AssetPair {
	return AssetPair{Base: o.Terms.MakerAsset, Quote: o.Terms.TakerAsset}
}
