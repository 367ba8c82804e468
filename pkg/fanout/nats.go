package fanout

import (
	"context"
	"errors"

	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/nats-io/nats.go"
)

// NATSSink publishes to a JetStream subject. The event id is used as the
// message id so the stream drops redeliveries inside its duplicate window.
type NATSSink struct {
	js      nats.JetStreamContext
	subject string
}

func NewNATSSink(js nats.JetStreamContext, subject string) *NATSSink {
	return &NATSSink{js: js, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(ctx context.Context, n notify.Notification) error {
	data, err := notify.Encode(n)
	if err != nil {
		return err
	}
	_, err = s.js.Publish(s.subject, data, nats.MsgId(notify.ToMessage(n).EventID()), nats.Context(ctx))
	return err
}

// EnsureStream creates the stream if it does not exist yet.
func EnsureStream(js nats.JetStreamContext, name string, subjects ...string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.FileStorage,
	})
	return err
}
