package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
)

type Kind string

const (
	KindOrderAdded   Kind = "OrderAdded"
	KindOrderUpdated Kind = "OrderUpdated"
)

// Notification is either OrderAdded or OrderUpdated. Both carry the full
// order snapshot as of the commit that produced them.
type Notification interface {
	Kind() Kind
	Sequence() uint64
	Snapshot() orderbook.Order
	CommittedAt() time.Time
	isNotification()
}

type OrderAdded struct {
	Seq   uint64
	Order orderbook.Order
	At    time.Time
}

func (n OrderAdded) Kind() Kind                { return KindOrderAdded }
func (n OrderAdded) Sequence() uint64          { return n.Seq }
func (n OrderAdded) Snapshot() orderbook.Order { return n.Order }
func (n OrderAdded) CommittedAt() time.Time    { return n.At }
func (OrderAdded) isNotification()             {}

type OrderUpdated struct {
	Seq      uint64
	Order    orderbook.Order
	Previous orderbook.Status
	At       time.Time
}

func (n OrderUpdated) Kind() Kind                { return KindOrderUpdated }
func (n OrderUpdated) Sequence() uint64          { return n.Seq }
func (n OrderUpdated) Snapshot() orderbook.Order { return n.Order }
func (n OrderUpdated) CommittedAt() time.Time    { return n.At }
func (OrderUpdated) isNotification()             {}

// Message is the wire form of a notification handed to sinks.
type Message struct {
	Type           Kind             `json:"type"`
	Seq            uint64           `json:"seq"`
	Order          orderbook.Order  `json:"order"`
	PreviousStatus orderbook.Status `json:"previous_status,omitempty"`
	At             time.Time        `json:"at"`
}

func ToMessage(n Notification) Message {
	m := Message{
		Type:  n.Kind(),
		Seq:   n.Sequence(),
		Order: n.Snapshot(),
		At:    n.CommittedAt(),
	}
	if u, ok := n.(OrderUpdated); ok {
		m.PreviousStatus = u.Previous
	}
	return m
}

func Encode(n Notification) ([]byte, error) {
	return json.Marshal(ToMessage(n))
}

func Decode(data []byte) (Notification, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	switch m.Type {
	case KindOrderAdded:
		return OrderAdded{Seq: m.Seq, Order: m.Order, At: m.At}, nil
	case KindOrderUpdated:
		return OrderUpdated{Seq: m.Seq, Order: m.Order, Previous: m.PreviousStatus, At: m.At}, nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", m.Type)
	}
}

var eventNamespace = uuid.MustParse("5a0c7c1e-3f0e-4c8e-9a43-0b7f1d2e6c11")

// EventID identifies the order transition a message describes. It depends
// on the chain watermark and the resulting state only, not on Seq: replaying
// the same chain history after a restart yields the same ids.
func (m Message) EventID() string {
	o := m.Order
	key := fmt.Sprintf("%s/%s/%t/%s/%s/%s/%t/%t",
		o.Hash, m.Type, o.HasWatermark, o.Watermark, m.PreviousStatus, o.Status, o.TermsPending, o.Suspect)
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}
