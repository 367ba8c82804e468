package orderbook

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateEvent is returned for an event at or below the order's
	// watermark. Expected under replay, dropped silently.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrTerminalOrderMutation is returned for any event that reaches an order
	// already FILLED, CANCELLED or EXPIRED.
	ErrTerminalOrderMutation = errors.New("terminal order mutation")

	// ErrOverfill is returned when a fill would push the filled amount past the
	// maker amount. State is left unchanged.
	ErrOverfill = errors.New("overfill")

	ErrAlreadyRegistered = errors.New("order terms already registered")
)
