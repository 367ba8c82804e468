package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/logging"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/joripage/orderbook-sync/pkg/termsrule"
	"go.uber.org/zap"
)

// Publisher receives every committed notification, in commit order, while
// the store write lock is still held.
type Publisher interface {
	Publish(n notify.Notification)
}

type Stats struct {
	Applied         uint64 `json:"applied"`
	Duplicates      uint64 `json:"duplicates"`
	TerminalRejects uint64 `json:"terminal_rejects"`
	Overfills       uint64 `json:"overfills"`
	Registered      uint64 `json:"registered"`
	LastSeq         uint64 `json:"last_seq"`
}

// Engine is the only writer of the store. Chain events and out-of-band order
// terms both go through it so notifications carry one gap-free sequence.
type Engine struct {
	store     *orderbook.Store
	publisher Publisher
	rules     termsrule.Rule
	logger    *logging.Logger
	now       func() time.Time

	seq             atomic.Uint64
	applied         atomic.Uint64
	duplicates      atomic.Uint64
	terminalRejects atomic.Uint64
	overfills       atomic.Uint64
	registered      atomic.Uint64
}

type Option func(*Engine)

// WithRules sets the admission rules RegisterOrderTerms checks.
func WithRules(rules ...termsrule.Rule) Option {
	return func(e *Engine) { e.rules = termsrule.Chain(rules) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store *orderbook.Store, publisher Publisher, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		store:     store,
		publisher: publisher,
		rules:     termsrule.Chain{},
		logger:    logger.Named("reconcile"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() *orderbook.Store { return e.store }

// Apply folds one normalized event into the book. On success it returns the
// notification it published. On failure the order is left as it was, except
// that an overfill marks the order suspect.
func (e *Engine) Apply(ev chainevent.Event) (notify.Notification, error) {
	var n notify.Notification
	err := e.store.Write(func(w *orderbook.Writer) error {
		w.MarkProcessed(ev.Position)

		var err error
		n, err = e.apply(w, ev)
		if err != nil {
			return err
		}

		w.MarkApplied(ev.Position, ev.BlockTime, n.CommittedAt())
		e.publisher.Publish(n)
		return nil
	})
	if err != nil {
		e.count(err)
		return nil, err
	}

	e.applied.Add(1)
	return n, nil
}

func (e *Engine) apply(w *orderbook.Writer, ev chainevent.Event) (notify.Notification, error) {
	now := e.now()

	order, exists := w.Get(ev.OrderHash)
	if exists && order.HasWatermark && ev.Position.Compare(order.Watermark) <= 0 {
		return nil, fmt.Errorf("%w: %s at %s, order at %s", orderbook.ErrDuplicateEvent, ev.OrderHash, ev.Position, order.Watermark)
	}
	if !exists {
		order = orderbook.NewProvisionalOrder(ev.OrderHash, now)
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", orderbook.ErrTerminalOrderMutation, ev.OrderHash, order.Status)
	}

	prev := order.Status
	switch ev.Kind {
	case chainevent.KindFill:
		if ev.Fill == nil {
			return nil, fmt.Errorf("%w: fill without payload", chainevent.ErrMalformedEvent)
		}
		filled := order.FilledAmount.Add(ev.Fill.MakerDelta)
		if !order.TermsPending && filled.GreaterThan(order.Terms.MakerAmount) {
			if !order.Suspect {
				order.Suspect = true
				order.UpdatedAt = now
				w.Put(order)
			}
			return nil, fmt.Errorf("%w: %s filled %s + %s of %s", orderbook.ErrOverfill,
				ev.OrderHash, order.FilledAmount, ev.Fill.MakerDelta, order.Terms.MakerAmount)
		}
		order.FilledAmount = filled
		order.FilledTakerAmount = order.FilledTakerAmount.Add(ev.Fill.TakerDelta)
	case chainevent.KindCancel:
		order.Cancelled = true
	case chainevent.KindExpire:
		order.Expired = true
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", chainevent.ErrMalformedEvent, ev.Kind)
	}

	order.Status = order.DeriveStatus()
	order.Watermark = ev.Position
	order.HasWatermark = true
	order.UpdatedAt = now
	w.Put(order)

	if !exists {
		return notify.OrderAdded{Seq: e.seq.Add(1), Order: order, At: now}, nil
	}
	return notify.OrderUpdated{Seq: e.seq.Add(1), Order: order, Previous: prev, At: now}, nil
}

// RegisterOrderTerms attaches signed order terms learned off-chain. A new
// hash is added as OPEN; a provisional order created by earlier chain events
// gets its terms and its status re-derived. Re-registering the same terms is a
// no-op that returns a nil notification.
func (e *Engine) RegisterOrderTerms(hash string, terms orderbook.Terms) (notify.Notification, error) {
	hash, err := chainevent.ParseOrderHash(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", termsrule.ErrInvalidTerms, err)
	}
	terms = terms.Normalized()
	if err := e.rules.Check(terms); err != nil {
		return nil, err
	}

	var n notify.Notification
	err = e.store.Write(func(w *orderbook.Writer) error {
		now := e.now()

		order, exists := w.Get(hash)
		switch {
		case !exists:
			order = orderbook.NewOrder(hash, terms, now)
			w.Put(order)
			n = notify.OrderAdded{Seq: e.seq.Add(1), Order: order, At: now}
		case !order.TermsPending:
			if order.Terms.Equal(terms) {
				return nil
			}
			return fmt.Errorf("%w: %s", orderbook.ErrAlreadyRegistered, hash)
		default:
			prev := order.Status
			order.Terms = terms
			order.TermsPending = false
			if order.FilledAmount.GreaterThan(terms.MakerAmount) {
				order.Suspect = true
			}
			order.Status = order.DeriveStatus()
			order.UpdatedAt = now
			w.Put(order)
			n = notify.OrderUpdated{Seq: e.seq.Add(1), Order: order, Previous: prev, At: now}
		}

		e.publisher.Publish(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n != nil {
		e.registered.Add(1)
	}
	return n, nil
}

// Run applies events from in until ctx is done or in is closed. Per-event
// errors are logged and counted, never returned.
func (e *Engine) Run(ctx context.Context, in <-chan chainevent.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev chainevent.Event) {
	n, err := e.Apply(ev)
	fields := []zap.Field{
		zap.String("order_hash", ev.OrderHash),
		zap.String("kind", string(ev.Kind)),
		zap.Stringer("position", ev.Position),
	}

	switch {
	case err == nil:
		e.logger.Debug(ctx, "event applied", append(fields,
			zap.Uint64("seq", n.Sequence()),
			zap.String("status", string(n.Snapshot().Status)))...)
	case errors.Is(err, orderbook.ErrDuplicateEvent):
		e.logger.Debug(ctx, "duplicate event skipped", fields...)
	case errors.Is(err, orderbook.ErrOverfill):
		e.logger.Error(ctx, "overfill rejected, order marked suspect", append(fields, zap.Error(err))...)
	default:
		e.logger.Warn(ctx, "event rejected", append(fields, zap.Error(err))...)
	}
}

func (e *Engine) count(err error) {
	switch {
	case errors.Is(err, orderbook.ErrDuplicateEvent):
		e.duplicates.Add(1)
	case errors.Is(err, orderbook.ErrTerminalOrderMutation):
		e.terminalRejects.Add(1)
	case errors.Is(err, orderbook.ErrOverfill):
		e.overfills.Add(1)
	}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Applied:         e.applied.Load(),
		Duplicates:      e.duplicates.Load(),
		TerminalRejects: e.terminalRejects.Load(),
		Overfills:       e.overfills.Load(),
		Registered:      e.registered.Load(),
		LastSeq:         e.seq.Load(),
	}
}
