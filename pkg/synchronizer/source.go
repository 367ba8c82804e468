package synchronizer

import (
	"context"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
)

// LogSource is the chain client the synchronizer reads exchange logs from.
type LogSource interface {
	// LatestBlock returns the newest block the source can serve logs for.
	LatestBlock(ctx context.Context) (uint64, error)
	// HistoricalLogs returns the exchange logs of blocks [from, to]. Order
	// is not guaranteed.
	HistoricalLogs(ctx context.Context, from, to uint64) ([]chainevent.RawLog, error)
	// Subscribe starts delivering logs of new blocks in arrival order.
	Subscribe(ctx context.Context) (LogSubscription, error)
}

// LogSubscription is a live log feed. Logs is closed or Err yields a value
// when the feed breaks; either way the subscription is dead.
type LogSubscription interface {
	Logs() <-chan chainevent.RawLog
	Err() <-chan error
	Unsubscribe()
}
