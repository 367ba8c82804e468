package kafkawrapper

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/joripage/orderbook-sync/pkg/logging"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var errProducerClosed = errors.New("producer not initialized")

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	Async        bool
}

// Record is one keyed message. Records sharing a key land on one partition
// in write order.
type Record struct {
	Key     string
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

func (r Record) message() kafka.Message {
	m := kafka.Message{
		Key:   []byte(r.Key),
		Value: r.Value,
		Time:  r.Time,
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	for _, k := range slices.Sorted(maps.Keys(r.Headers)) {
		m.Headers = append(m.Headers, kafka.Header{Key: k, Value: []byte(r.Headers[k])})
	}
	return m
}

// Producer writes records to a single topic, partitioned by key hash.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(cfg ProducerConfig, logger *logging.Logger) *Producer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("kafka_producer").With(zap.String("topic", cfg.Topic))

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchBytes:             1 << 20,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           cfg.RequiredAcks,
		Async:                  cfg.Async,
	}
	if cfg.Async {
		// errors of async writes only surface here
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error(context.Background(), "async write failed",
					zap.Int("messages", len(messages)), zap.Error(err))
			}
		}
	}
	return &Producer{writer: w, topic: cfg.Topic}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Write(ctx context.Context, records ...Record) error {
	if p == nil || p.writer == nil {
		return errProducerClosed
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, r.message())
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// WriteJSON encodes v as the value of a single record.
func (p *Producer) WriteJSON(ctx context.Context, key string, v any, headers map[string]string, at time.Time) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Write(ctx, Record{Key: key, Value: b, Headers: headers, Time: at})
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
