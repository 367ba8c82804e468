package chainevent

import "errors"

var (
	// ErrMalformedEvent marks a log missing a required field. Such logs are
	// dropped and never applied.
	ErrMalformedEvent = errors.New("malformed chain event")

	// ErrIgnoredEvent marks a well-formed log that carries no order lifecycle
	// change, e.g. a LogError other than ORDER_EXPIRED.
	ErrIgnoredEvent = errors.New("ignored chain event")

	ErrInvalidOrderHash = errors.New("invalid order hash")
)
