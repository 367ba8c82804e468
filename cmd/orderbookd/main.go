package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/orderbook-sync/config"
	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/eventstore"
	"github.com/joripage/orderbook-sync/pkg/fanout"
	kafkawrapper "github.com/joripage/orderbook-sync/pkg/kafka_wrapper"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/joripage/orderbook-sync/pkg/query"
	"github.com/joripage/orderbook-sync/pkg/reconcile"
	"github.com/joripage/orderbook-sync/pkg/synchronizer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statusInterval = 30 * time.Second

func main() {
	var configFile, pprofAddr string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&pprofAddr, "pprof", "localhost:6060", "pprof listen address, empty to disable")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel)).With(zap.String("service", cfg.ServiceName))
	defer logger.Sync() // nolint
	zap.ReplaceGlobals(logger.Zap())

	if pprofAddr != "" {
		go func() {
			_ = http.ListenAndServe(pprofAddr, nil)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(ctx, "orderbookd stopped", zap.Error(err))
	}
	logger.Info(ctx, "exited cleanly")
}

func run(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) error {
	store := orderbook.NewStore()
	broker := notify.NewBroker(cfg.Notify.SubscriberBuffer, logger)
	defer broker.Close()

	rules, err := buildRules(cfg.Book)
	if err != nil {
		return err
	}
	engine := reconcile.NewEngine(store, broker, logger, reconcile.WithRules(rules...))

	journal := eventstore.NewInMemoryEventStore(cfg.Book.JournalRetention)
	svc := query.NewService(store, broker, journal, query.Config{
		DefaultLimit: cfg.Book.DefaultLimit,
		MaxLimit:     cfg.Book.MaxLimit,
	})

	sinks, closeSinks, err := buildSinks(ctx, cfg, engine, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	sinks = append([]fanout.Sink{fanout.JournalSink{Store: journal}}, sinks...)
	runner := fanout.NewRunner(broker, fanout.Config{
		Retries:     cfg.Notify.FanoutRetries,
		RetryWait:   cfg.Notify.FanoutRetryWait,
		BacklogWarn: cfg.Notify.FanoutBacklogWarn,
	}, logger, sinks...)

	source := kafkawrapper.NewLogSource(kafkawrapper.LogSourceConfig{
		Brokers:   cfg.ChainSource.Brokers,
		Topic:     cfg.ChainSource.Topic,
		Partition: cfg.ChainSource.Partition,
	}, logger)
	syncer := synchronizer.New(source, store, synchronizer.Config{
		StartBlock:           cfg.Sync.StartBlock,
		BatchBlocks:          cfg.Sync.BatchBlocks,
		MaxReconnectAttempts: cfg.Sync.MaxReconnectAttempts,
		InitialBackoff:       cfg.Sync.InitialBackoff,
		MaxBackoff:           cfg.Sync.MaxBackoff,
	}, logger)

	queue := make(chan chainevent.Event, cfg.Sync.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncer.Run(gctx, queue) })
	g.Go(func() error { return engine.Run(gctx, queue) })
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error {
		journal.StartCleaner(gctx, cfg.Book.CleanerInterval)
		return nil
	})
	g.Go(func() error {
		reportStatus(gctx, svc, engine, logger)
		return nil
	})

	logger.Info(ctx, "orderbook sync started",
		zap.String("topic", cfg.ChainSource.Topic),
		zap.Uint64("start_block", cfg.Sync.StartBlock),
		zap.Int("sinks", len(sinks)))

	return g.Wait()
}

func reportStatus(ctx context.Context, svc *query.Service, engine *reconcile.Engine, logger *logging.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st := svc.Freshness()
			stats := engine.Stats()
			fields := []zap.Field{
				zap.String("sync_state", string(st.SyncState)),
				zap.Stringer("last_applied", st.LastApplied),
				zap.Duration("lag", st.Lag),
				zap.Int("orders", st.Depth),
				zap.Uint64("applied", stats.Applied),
				zap.Uint64("duplicates", stats.Duplicates),
				zap.Uint64("overfills", stats.Overfills),
			}
			if st.Stale {
				logger.Warn(ctx, "book is stale", append(fields, zap.String("reason", st.StaleReason))...)
				continue
			}
			logger.Info(ctx, "book status", fields...)
		case <-ctx.Done():
			return
		}
	}
}
