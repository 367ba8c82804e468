package kafkawrapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/synchronizer"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LogSourceConfig points at a single-partition topic of JSON encoded
// chainevent.RawLog records written in chain order by an indexer.
type LogSourceConfig struct {
	Brokers   []string
	Topic     string
	Partition int
	MaxWait   time.Duration
	BufferLen int
}

// LogSource serves the synchronizer from a Kafka topic. Offsets of blocks
// seen while scanning are remembered so successive backfill pages do not
// rescan the topic from the start.
type LogSource struct {
	cfg    LogSourceConfig
	logger *logging.Logger

	mu    sync.Mutex
	marks []blockMark // ascending by block and offset
}

type blockMark struct {
	block  uint64
	offset int64
}

var _ synchronizer.LogSource = (*LogSource)(nil)

func NewLogSource(cfg LogSourceConfig, logger *logging.Logger) *LogSource {
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	if cfg.BufferLen <= 0 {
		cfg.BufferLen = 256
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSource{cfg: cfg, logger: logger.Named("kafka_log_source")}
}

func (s *LogSource) offsets(ctx context.Context) (first, last int64, err error) {
	if len(s.cfg.Brokers) == 0 {
		return 0, 0, errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialLeader(ctx, "tcp", s.cfg.Brokers[0], s.cfg.Topic, s.cfg.Partition)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	return conn.ReadOffsets()
}

func (s *LogSource) reader(offset int64) (*kafka.Reader, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.cfg.Brokers,
		Topic:     s.cfg.Topic,
		Partition: s.cfg.Partition,
		MinBytes:  1,
		MaxBytes:  10 << 20,
		MaxWait:   s.cfg.MaxWait,
	})
	if err := r.SetOffset(offset); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// LatestBlock is the block of the last record on the topic.
func (s *LogSource) LatestBlock(ctx context.Context) (uint64, error) {
	first, last, err := s.offsets(ctx)
	if err != nil {
		return 0, err
	}
	if last <= first {
		return 0, nil
	}

	r, err := s.reader(last - 1)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	m, err := r.ReadMessage(ctx)
	if err != nil {
		return 0, err
	}
	l, err := DecodeRawLog(m.Value)
	if err != nil {
		return 0, err
	}
	return l.BlockNumber, nil
}

// HistoricalLogs scans the topic up to its current end and keeps the logs
// of blocks [from, to].
func (s *LogSource) HistoricalLogs(ctx context.Context, from, to uint64) ([]chainevent.RawLog, error) {
	first, last, err := s.offsets(ctx)
	if err != nil {
		return nil, err
	}
	start := max(s.startOffset(from), first)
	if start >= last {
		return nil, nil
	}

	r, err := s.reader(start)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []chainevent.RawLog
	for offset := start; offset < last; {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("read offset %d: %w", offset, err)
		}
		offset = m.Offset + 1

		l, err := DecodeRawLog(m.Value)
		if err != nil {
			s.logger.Warn(ctx, "undecodable log record skipped", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		s.mark(l.BlockNumber, m.Offset)
		if l.BlockNumber > to {
			break
		}
		if l.BlockNumber >= from {
			out = append(out, l)
		}
	}
	return out, nil
}

// startOffset is the offset of the last remembered block before from.
func (s *LogSource) startOffset(from uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.marks), func(i int) bool { return s.marks[i].block >= from })
	if i == 0 {
		return 0
	}
	return s.marks[i-1].offset
}

func (s *LogSource) mark(block uint64, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.marks)
	if n > 0 && (s.marks[n-1].block >= block || s.marks[n-1].offset >= offset) {
		return
	}
	s.marks = append(s.marks, blockMark{block: block, offset: offset})
}

// Subscribe follows the topic from its current end.
func (s *LogSource) Subscribe(ctx context.Context) (synchronizer.LogSubscription, error) {
	_, last, err := s.offsets(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.reader(last)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &logSubscription{
		logs:   make(chan chainevent.RawLog, s.cfg.BufferLen),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	go sub.pump(ctx, r, s)
	return sub, nil
}

type logSubscription struct {
	logs   chan chainevent.RawLog
	errs   chan error
	cancel context.CancelFunc
}

func (sub *logSubscription) Logs() <-chan chainevent.RawLog { return sub.logs }
func (sub *logSubscription) Err() <-chan error              { return sub.errs }
func (sub *logSubscription) Unsubscribe()                   { sub.cancel() }

func (sub *logSubscription) pump(ctx context.Context, r *kafka.Reader, s *LogSource) {
	defer r.Close()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				sub.errs <- err
			}
			return
		}
		l, err := DecodeRawLog(m.Value)
		if err != nil {
			s.logger.Warn(ctx, "undecodable log record skipped", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		s.mark(l.BlockNumber, m.Offset)

		select {
		case sub.logs <- l:
		case <-ctx.Done():
			return
		}
	}
}

func DecodeRawLog(data []byte) (chainevent.RawLog, error) {
	var l chainevent.RawLog
	if err := json.Unmarshal(data, &l); err != nil {
		return chainevent.RawLog{}, err
	}
	if l.Event == "" {
		return chainevent.RawLog{}, errors.New("record has no event name")
	}
	return l, nil
}
