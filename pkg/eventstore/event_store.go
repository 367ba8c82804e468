package eventstore

import (
	"context"
	"time"

	"github.com/joripage/orderbook-sync/pkg/notify"
)

// EventStore keeps the notification history of each order.
type EventStore interface {
	AddEvent(n notify.Notification)
	History(hash string) []notify.Message
	Len() int
	Cleanup(now time.Time) int
	StartCleaner(ctx context.Context, interval time.Duration)
}
