package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joripage/orderbook-sync/config"
	"github.com/joripage/orderbook-sync/pkg/fanout"
	"github.com/joripage/orderbook-sync/pkg/infra"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/repo"
	"github.com/joripage/orderbook-sync/pkg/worker"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// worker persists the orderbook notification stream into postgres.
func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	if cfg.OrderbookDB == nil {
		panic("orderbook_db section is required")
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel)).With(zap.String("service", cfg.ServiceName+"-worker"))
	defer logger.Sync() // nolint
	zap.ReplaceGlobals(logger.Zap())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// NATS
	nc, err := nats.Connect(cfg.Sinks.NATS.URL, nats.Name(cfg.ServiceName+"-worker"))
	if err != nil {
		logger.Fatal(ctx, "connect nats fail", zap.Error(err))
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal(ctx, "jetstream fail", zap.Error(err))
	}
	if err := fanout.EnsureStream(js, cfg.Sinks.NATS.Stream, cfg.Sinks.NATS.Subject); err != nil {
		logger.Fatal(ctx, "ensure stream fail", zap.Error(err))
	}

	// init db
	db, err := infra.NewMigrateTool().ConnectAndMigrate(ctx, cfg.OrderbookDB, "file://migration/sql")
	if err != nil {
		logger.Fatal(ctx, "init db fail", zap.Error(err))
	}

	w := worker.NewWorker(repo.NewRepo(db), logger)
	logger.Info(ctx, "worker started",
		zap.String("subject", cfg.Sinks.NATS.Subject),
		zap.String("durable", cfg.Sinks.NATS.Durable))

	err = w.StartConsumer(ctx, js, cfg.Sinks.NATS.Subject, cfg.Sinks.NATS.Durable)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(ctx, "consumer stopped", zap.Error(err))
	}
}
