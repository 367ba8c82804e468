package fanout

import (
	"context"
	"time"

	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/redis/go-redis/v9"
)

// RedisSink keeps the latest snapshot of every order under
// <prefix>order:<hash> and publishes each notification on a channel.
// Snapshots of terminal orders expire after TerminalTTL.
type RedisSink struct {
	client      redis.Cmdable
	prefix      string
	channel     string
	terminalTTL time.Duration
}

func NewRedisSink(client redis.Cmdable, prefix, channel string, terminalTTL time.Duration) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, channel: channel, terminalTTL: terminalTTL}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) OrderKey(hash string) string {
	return s.prefix + "order:" + hash
}

func (s *RedisSink) Deliver(ctx context.Context, n notify.Notification) error {
	data, err := notify.Encode(n)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if n.Snapshot().Status.IsTerminal() {
		ttl = s.terminalTTL
	}

	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.OrderKey(n.Snapshot().Hash), data, ttl)
		if s.channel != "" {
			p.Publish(ctx, s.channel, data)
		}
		return nil
	})
	return err
}
