package chainevent

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawLog is a decoded exchange log as the chain client hands it over.
// Numeric arguments are decimal strings, addresses and hashes hex strings.
type RawLog struct {
	BlockNumber uint64            `json:"block_number"`
	BlockHash   string            `json:"block_hash,omitempty"`
	TxHash      string            `json:"tx_hash,omitempty"`
	TxIndex     uint64            `json:"tx_index"`
	LogIndex    uint64            `json:"log_index"`
	Event       string            `json:"event"`
	Args        map[string]string `json:"args"`
	BlockTime   time.Time         `json:"block_time,omitempty"`
}

func (l RawLog) Position() Position {
	return Position{BlockNumber: l.BlockNumber, TxIndex: l.TxIndex, LogIndex: l.LogIndex}
}

type Kind string

const (
	KindFill   Kind = "FILL"
	KindCancel Kind = "CANCEL"
	KindExpire Kind = "EXPIRE"
)

// Fill carries the deltas of one settlement plus the order details the
// exchange repeats in every fill log.
type Fill struct {
	MakerDelta   decimal.Decimal `json:"maker_delta"`
	TakerDelta   decimal.Decimal `json:"taker_delta"`
	Maker        string          `json:"maker,omitempty"`
	Taker        string          `json:"taker,omitempty"`
	MakerAsset   string          `json:"maker_asset,omitempty"`
	TakerAsset   string          `json:"taker_asset,omitempty"`
	FeeRecipient string          `json:"fee_recipient,omitempty"`
}

// Event is the canonical shape every raw log is normalized into.
type Event struct {
	Kind       Kind      `json:"kind"`
	OrderHash  string    `json:"order_hash"`
	Position   Position  `json:"position"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Fill       *Fill     `json:"fill,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	BlockTime  time.Time `json:"block_time,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
