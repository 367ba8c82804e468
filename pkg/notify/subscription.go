package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
)

var (
	// ErrUnsubscribed is returned by Err once the subscriber unsubscribed or
	// the broker closed.
	ErrUnsubscribed = errors.New("client unsubscribed")

	// ErrOutOfCapacity is returned by Err when the subscriber did not keep up
	// and its buffer filled. The subscription is terminated.
	ErrOutOfCapacity = errors.New("client is not pulling notifications fast enough")
)

// Subscription delivers notifications committed after it was created, in
// commit order. It cannot be restarted once cancelled.
//
// A bounded subscription buffers in a channel and is dropped once it fills.
// An unbounded one queues every notification in a backlog that grows until
// the subscriber catches up; it is never dropped.
type Subscription struct {
	id  string
	out chan Notification

	backlogMu sync.Mutex
	backlog   *deque.Deque[Notification]
	ready     chan struct{}

	canceled chan struct{}
	once     sync.Once
	mtx      sync.RWMutex
	err      error
}

func newSubscription(capacity int) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		out:      make(chan Notification, capacity),
		canceled: make(chan struct{}),
	}
}

func newUnboundedSubscription() *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		backlog:  new(deque.Deque[Notification]),
		ready:    make(chan struct{}, 1),
		canceled: make(chan struct{}),
	}
}

func (s *Subscription) ID() string { return s.id }

// Out is the notification channel of a bounded subscription. It is never
// closed; select on Canceled as well. Unbounded subscriptions return nil and
// are read with Next.
func (s *Subscription) Out() <-chan Notification { return s.out }

// Len is the number of notifications waiting to be read.
func (s *Subscription) Len() int {
	if s.backlog == nil {
		return len(s.out)
	}
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	return s.backlog.Len()
}

func (s *Subscription) Canceled() <-chan struct{} { return s.canceled }

func (s *Subscription) Err() error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.err
}

// Next blocks for the next notification. Notifications already buffered are
// handed out before a cancellation is reported.
func (s *Subscription) Next(ctx context.Context) (Notification, error) {
	if s.backlog != nil {
		return s.nextQueued(ctx)
	}

	select {
	case n := <-s.out:
		return n, nil
	default:
	}

	select {
	case n := <-s.out:
		return n, nil
	case <-s.canceled:
		select {
		case n := <-s.out:
			return n, nil
		default:
		}
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Subscription) nextQueued(ctx context.Context) (Notification, error) {
	for {
		if n, ok := s.pop(); ok {
			return n, nil
		}
		select {
		case <-s.ready:
		case <-s.canceled:
			if n, ok := s.pop(); ok {
				return n, nil
			}
			return nil, s.Err()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Subscription) pop() (Notification, bool) {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	if s.backlog.Len() == 0 {
		return nil, false
	}
	return s.backlog.PopFront(), true
}

// offer hands n over without blocking. It reports false only when a bounded
// buffer is full.
func (s *Subscription) offer(n Notification) bool {
	if s.backlog == nil {
		select {
		case s.out <- n:
			return true
		default:
			return false
		}
	}

	s.backlogMu.Lock()
	s.backlog.PushBack(n)
	s.backlogMu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) cancel(err error) {
	s.once.Do(func() {
		s.mtx.Lock()
		s.err = err
		s.mtx.Unlock()
		close(s.canceled)
	})
}
