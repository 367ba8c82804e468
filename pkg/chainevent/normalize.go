package chainevent

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange event names. The short aliases are accepted from indexers that
// already rename contract events.
const (
	EventLogFill   = "LogFill"
	EventLogCancel = "LogCancel"
	EventLogError  = "LogError"

	EventFill   = "Fill"
	EventCancel = "Cancel"
	EventExpire = "Expire"
)

// LogError ids emitted by the exchange contract.
const (
	errorIDOrderExpired             = "0"
	errorIDOrderFullyFilledOrCancel = "1"
	errorIDRoundingErrorTooLarge    = "2"
	errorIDInsufficientBalance      = "3"
)

var logErrorReasons = map[string]string{
	errorIDOrderExpired:             "ORDER_EXPIRED",
	errorIDOrderFullyFilledOrCancel: "ORDER_FULLY_FILLED_OR_CANCELLED",
	errorIDRoundingErrorTooLarge:    "ROUNDING_ERROR_TOO_LARGE",
	errorIDInsufficientBalance:      "INSUFFICIENT_BALANCE_OR_ALLOWANCE",
}

const orderHashLen = 66 // 0x + 32 bytes hex

// Normalize maps one raw log to exactly one canonical event. It has no
// shared state and is safe for concurrent use.
func Normalize(raw RawLog, now time.Time) (Event, error) {
	hash, err := orderHash(raw)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		OrderHash:  hash,
		Position:   raw.Position(),
		TxHash:     raw.TxHash,
		BlockTime:  raw.BlockTime,
		ReceivedAt: now,
	}

	switch raw.Event {
	case EventLogFill, EventFill:
		fill, err := fillPayload(raw)
		if err != nil {
			return Event{}, err
		}
		ev.Kind = KindFill
		ev.Fill = fill
	case EventLogCancel, EventCancel:
		ev.Kind = KindCancel
		ev.Reason = "CANCELLED"
	case EventExpire:
		ev.Kind = KindExpire
		ev.Reason = logErrorReasons[errorIDOrderExpired]
	case EventLogError:
		id, ok := raw.Args["errorId"]
		if !ok {
			return Event{}, malformed(raw, "missing errorId")
		}
		if id != errorIDOrderExpired {
			reason, known := logErrorReasons[id]
			if !known {
				reason = "errorId=" + id
			}
			return Event{}, fmt.Errorf("%w: %s at %s", ErrIgnoredEvent, reason, raw.Position())
		}
		ev.Kind = KindExpire
		ev.Reason = logErrorReasons[id]
	case "":
		return Event{}, malformed(raw, "missing event name")
	default:
		return Event{}, fmt.Errorf("%w: event %q at %s", ErrIgnoredEvent, raw.Event, raw.Position())
	}
	if raw.BlockNumber == 0 {
		return Event{}, malformed(raw, "missing chain position")
	}

	return ev, nil
}

// SortByPosition orders events by chain position. The sort is stable so
// events sharing a position keep their arrival order and the first one wins.
func SortByPosition(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Position.Compare(b.Position)
	})
}

// ParseOrderHash lower-cases s and checks it is a 0x prefixed 32 byte hex
// string, the only order identity the exchange emits.
func ParseOrderHash(s string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(s))
	if h == "" {
		return "", ErrInvalidOrderHash
	}
	if len(h) != orderHashLen || !strings.HasPrefix(h, "0x") {
		return "", fmt.Errorf("%w: %s is not a 32 byte hex string", ErrInvalidOrderHash, h)
	}
	if _, err := hex.DecodeString(h[2:]); err != nil {
		return "", fmt.Errorf("%w: %s is not hex", ErrInvalidOrderHash, h)
	}
	return h, nil
}

func orderHash(raw RawLog) (string, error) {
	h, ok := raw.Args["orderHash"]
	if !ok || strings.TrimSpace(h) == "" {
		return "", malformed(raw, "missing orderHash")
	}
	hash, err := ParseOrderHash(h)
	if err != nil {
		return "", malformed(raw, err.Error())
	}
	return hash, nil
}

func fillPayload(raw RawLog) (*Fill, error) {
	makerDelta, err := amountArg(raw, "filledMakerTokenAmount")
	if err != nil {
		return nil, err
	}
	if makerDelta.IsZero() {
		return nil, malformed(raw, "filledMakerTokenAmount is zero")
	}
	takerDelta, err := amountArg(raw, "filledTakerTokenAmount")
	if err != nil {
		return nil, err
	}

	return &Fill{
		MakerDelta:   makerDelta,
		TakerDelta:   takerDelta,
		Maker:        strings.ToLower(raw.Args["maker"]),
		Taker:        strings.ToLower(raw.Args["taker"]),
		MakerAsset:   strings.ToLower(raw.Args["makerToken"]),
		TakerAsset:   strings.ToLower(raw.Args["takerToken"]),
		FeeRecipient: strings.ToLower(raw.Args["feeRecipient"]),
	}, nil
}

func amountArg(raw RawLog, name string) (decimal.Decimal, error) {
	s, ok := raw.Args[name]
	if !ok || s == "" {
		return decimal.Zero, malformed(raw, "missing "+name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, malformed(raw, name+" is not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, malformed(raw, name+" is negative")
	}
	return d, nil
}

func malformed(raw RawLog, reason string) error {
	return fmt.Errorf("%w: %s %s at %s", ErrMalformedEvent, raw.Event, reason, raw.Position())
}
