package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/joripage/orderbook-sync/pkg/eventstore"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name     string
	mu       sync.Mutex
	seqs     []uint64
	failures int // remaining failures before success
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("unavailable")
	}
	s.seqs = append(s.seqs, n.Sequence())
	return nil
}

func (s *recordingSink) delivered() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

func added(seq uint64, status orderbook.Status) notify.Notification {
	return notify.OrderAdded{
		Seq:   seq,
		Order: orderbook.Order{Hash: fmt.Sprintf("0x%064x", seq%2), Status: status},
		At:    time.Now(),
	}
}

func startRunner(t *testing.T, broker *notify.Broker, cfg Config, sinks ...Sink) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner(broker, cfg, nil, sinks...).Run(ctx) }()
	require.Eventually(t, func() bool { return broker.NumSubscribers() == 1 }, time.Second, time.Millisecond)
	return cancel, done
}

func TestRunnerDeliversInOrderToEverySink(t *testing.T) {
	broker := notify.NewBroker(64, nil)
	a := &recordingSink{name: "a"}
	journal := eventstore.NewInMemoryEventStore(0)
	cancel, done := startRunner(t, broker, Config{}, a, JournalSink{Store: journal})

	for seq := uint64(1); seq <= 5; seq++ {
		broker.Publish(added(seq, orderbook.StatusOpen))
	}

	require.Eventually(t, func() bool { return len(a.delivered()) == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, a.delivered())
	require.Eventually(t, func() bool { return journal.Len() == 2 }, time.Second, time.Millisecond)
	assert.Len(t, journal.History(fmt.Sprintf("0x%064x", 1)), 3)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunnerRetriesThenSkips(t *testing.T) {
	broker := notify.NewBroker(64, nil)
	flaky := &recordingSink{name: "flaky", failures: 2}
	dead := &recordingSink{name: "dead", failures: 1 << 30}
	ok := &recordingSink{name: "ok"}
	cancel, _ := startRunner(t, broker, Config{Retries: 2, RetryWait: time.Millisecond}, flaky, dead, ok)
	defer cancel()

	broker.Publish(added(1, orderbook.StatusOpen))
	broker.Publish(added(2, orderbook.StatusFilled))

	require.Eventually(t, func() bool { return len(ok.delivered()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, flaky.delivered())
	assert.Empty(t, dead.delivered())
}

type gatedSink struct {
	recordingSink
	gate chan struct{}
}

func (s *gatedSink) Deliver(ctx context.Context, n notify.Notification) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.recordingSink.Deliver(ctx, n)
}

func TestRunnerKeepsUpWithSlowSink(t *testing.T) {
	broker := notify.NewBroker(1, nil)
	slow := &gatedSink{recordingSink: recordingSink{name: "slow"}, gate: make(chan struct{})}
	cancel, _ := startRunner(t, broker, Config{BacklogWarn: 10}, slow)
	defer cancel()

	const total = 500
	for seq := uint64(1); seq <= total; seq++ {
		broker.Publish(added(seq, orderbook.StatusOpen))
	}
	assert.Equal(t, 1, broker.NumSubscribers(), "runner must not be dropped")

	close(slow.gate)
	require.Eventually(t, func() bool { return len(slow.delivered()) == total }, 5*time.Second, time.Millisecond)
	want := make([]uint64, total)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.Equal(t, want, slow.delivered())
}

func TestRunnerStopsWhenBrokerCloses(t *testing.T) {
	broker := notify.NewBroker(4, nil)
	_, done := startRunner(t, broker, Config{})

	broker.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRedisSinkKey(t *testing.T) {
	s := NewRedisSink(nil, "orderbook:", "orderbook:events", time.Hour)
	assert.Equal(t, "orderbook:order:0xabc", s.OrderKey("0xabc"))
	assert.Equal(t, "redis", s.Name())
}

type fakeKafka struct {
	key     string
	headers map[string]string
	value   any
	at      time.Time
}

func (f *fakeKafka) WriteJSON(_ context.Context, key string, v any, headers map[string]string, at time.Time) error {
	f.key, f.value, f.headers, f.at = key, v, headers, at
	return nil
}

func TestKafkaSinkKeysByOrderHash(t *testing.T) {
	fk := &fakeKafka{}
	s := &KafkaSink{producer: fk}
	n := added(3, orderbook.StatusOpen)

	require.NoError(t, s.Deliver(context.Background(), n))
	assert.Equal(t, n.CommittedAt(), fk.at)
	assert.Equal(t, n.Snapshot().Hash, fk.key)
	assert.Equal(t, "3", fk.headers["seq"])
	assert.Equal(t, "OrderAdded", fk.headers["type"])
	assert.Equal(t, notify.ToMessage(n), fk.value)
}
