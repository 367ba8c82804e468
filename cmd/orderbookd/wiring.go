package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joripage/orderbook-sync/config"
	"github.com/joripage/orderbook-sync/pkg/fanout"
	"github.com/joripage/orderbook-sync/pkg/fixgateway"
	redis_wrapper "github.com/joripage/orderbook-sync/pkg/infra/redis"
	kafkawrapper "github.com/joripage/orderbook-sync/pkg/kafka_wrapper"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/reconcile"
	"github.com/joripage/orderbook-sync/pkg/termsrule"
	"github.com/nats-io/nats.go"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func buildRules(cfg config.BookConfig) ([]termsrule.Rule, error) {
	rules := []termsrule.Rule{
		termsrule.BasicRule{},
		termsrule.ExpirationRule{MinLifetime: cfg.MinOrderLifetime, Now: time.Now},
	}
	if cfg.PriceBandsFile != "" {
		bands, err := termsrule.NewPriceBandRuleFromFile(cfg.PriceBandsFile)
		if err != nil {
			return nil, fmt.Errorf("load price bands: %w", err)
		}
		rules = append(rules, bands)
	}
	return rules, nil
}

// buildSinks connects every enabled outbound sink. The returned func releases
// them in reverse order.
func buildSinks(ctx context.Context, cfg *config.AppConfig, engine *reconcile.Engine, logger *logging.Logger) ([]fanout.Sink, func(), error) {
	var (
		sinks   []fanout.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) ([]fanout.Sink, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	if c := cfg.Sinks.NATS; c.Enabled {
		nc, err := nats.Connect(c.URL, nats.Name(cfg.ServiceName), nats.MaxReconnects(-1))
		if err != nil {
			return fail(fmt.Errorf("connect nats: %w", err))
		}
		closers = append(closers, nc.Close)

		js, err := nc.JetStream()
		if err != nil {
			return fail(err)
		}
		if err := fanout.EnsureStream(js, c.Stream, c.Subject); err != nil {
			return fail(fmt.Errorf("ensure stream %s: %w", c.Stream, err))
		}
		sinks = append(sinks, fanout.NewNATSSink(js, c.Subject))
	}

	if c := cfg.Sinks.Kafka; c.Enabled {
		producer := kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers:      c.Brokers,
			Topic:        c.Topic,
			RequiredAcks: kafka.RequireAll,
		}, logger)
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				logger.Warn(ctx, "close kafka producer", zap.Error(err))
			}
		})
		sinks = append(sinks, fanout.NewKafkaSink(producer))
	}

	if c := cfg.Sinks.Redis; c.Enabled {
		client, err := redis_wrapper.InitRedis(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		sinks = append(sinks, fanout.NewRedisSink(client, c.KeyPrefix, c.Channel, c.TerminalTTL))
	}

	if c := cfg.FIX; c.Enabled {
		gw := fixgateway.NewGateway(fixgateway.Config{
			SettingsFile: c.SettingsFile,
			NumShards:    c.NumShards,
			QueueSize:    c.QueueSize,
		}, engine, logger)
		if err := gw.Start(ctx); err != nil {
			return fail(err)
		}
		closers = append(closers, gw.Stop)
		sinks = append(sinks, gw)
	}

	return sinks, closeAll, nil
}
