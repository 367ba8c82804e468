package fanout

import (
	"context"

	"github.com/joripage/orderbook-sync/pkg/eventstore"
	"github.com/joripage/orderbook-sync/pkg/notify"
)

// JournalSink records notifications for order history queries.
type JournalSink struct {
	Store eventstore.EventStore
}

func (JournalSink) Name() string { return "journal" }

func (s JournalSink) Deliver(_ context.Context, n notify.Notification) error {
	s.Store.AddEvent(n)
	return nil
}
