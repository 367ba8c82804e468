package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/joripage/orderbook-sync/pkg/reconcile"
	"github.com/shopspring/decimal"
)

const (
	zrx  = "0xe41d2489571d322189246dafa5ebde1f4699f498"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

// Replays a synthetic chain of fills, cancels and redeliveries through the
// engine and reports throughput.
func main() {
	var numOrders, eventsPerOrder int
	var dupRate float64
	flag.IntVar(&numOrders, "orders", 100_000, "number of orders")
	flag.IntVar(&eventsPerOrder, "events", 10, "fill events per order")
	flag.Float64Var(&dupRate, "dup-rate", 0.05, "share of redelivered events")
	flag.Parse()

	broker := notify.NewBroker(0, nil)
	engine := reconcile.NewEngine(orderbook.NewStore(), broker, nil)

	start := time.Now()
	for i := 0; i < numOrders; i++ {
		hash := fmt.Sprintf("0x%064x", i+1)
		makerAmount := int64(eventsPerOrder * 100)
		terms := orderbook.Terms{
			Maker:       fmt.Sprintf("0x%040x", i%1000),
			Taker:       orderbook.OpenTaker,
			MakerAsset:  zrx,
			TakerAsset:  weth,
			MakerAmount: decimal.NewFromInt(makerAmount),
			TakerAmount: decimal.NewFromInt(makerAmount/10 + rand.Int63n(makerAmount)),
			Expiration:  time.Now().Add(24 * time.Hour),
		}
		if _, err := engine.RegisterOrderTerms(hash, terms); err != nil {
			panic(err)
		}
	}
	registered := time.Since(start)

	var block uint64 = 1
	var events, rejected int
	replayStart := time.Now()
	for e := 0; e < eventsPerOrder; e++ {
		for i := 0; i < numOrders; i++ {
			ev := chainevent.Event{
				Kind:      chainevent.KindFill,
				OrderHash: fmt.Sprintf("0x%064x", i+1),
				Position:  chainevent.Position{BlockNumber: block, TxIndex: uint64(i % 200)},
				Fill: &chainevent.Fill{
					MakerDelta: decimal.NewFromInt(100),
					TakerDelta: decimal.NewFromInt(10),
				},
			}
			if i%200 == 199 {
				block++
			}
			if e == eventsPerOrder-1 && i%7 == 0 {
				ev.Kind = chainevent.KindCancel
				ev.Fill = nil
			}
			for {
				events++
				if _, err := engine.Apply(ev); err != nil {
					rejected++
				}
				if rand.Float64() >= dupRate {
					break
				}
			}
		}
	}
	elapsed := time.Since(replayStart)
	stats := engine.Stats()

	fmt.Println("--------")
	fmt.Printf("Orders registered : %d in %s\n", numOrders, registered)
	fmt.Printf("Events applied    : %d\n", events)
	fmt.Printf("Accepted          : %d\n", stats.Applied)
	fmt.Printf("Duplicates        : %d\n", stats.Duplicates)
	fmt.Printf("Rejected          : %d\n", rejected)
	fmt.Printf("Time Taken        : %s (%.0f events/s)\n", elapsed, float64(events)/elapsed.Seconds())
}
