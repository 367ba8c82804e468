package fanout

import (
	"context"
	"strconv"
	"time"

	kafkawrapper "github.com/joripage/orderbook-sync/pkg/kafka_wrapper"
	"github.com/joripage/orderbook-sync/pkg/notify"
)

type kafkaPublisher interface {
	WriteJSON(ctx context.Context, key string, v any, headers map[string]string, at time.Time) error
}

// KafkaSink writes notifications keyed by order hash, so each order's
// updates stay ordered within its partition.
type KafkaSink struct {
	producer kafkaPublisher
}

func NewKafkaSink(producer *kafkawrapper.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, n notify.Notification) error {
	m := notify.ToMessage(n)
	return s.producer.WriteJSON(ctx, m.Order.Hash, m, map[string]string{
		"type":     string(m.Type),
		"seq":      strconv.FormatUint(m.Seq, 10),
		"event_id": m.EventID(),
	}, m.At)
}
