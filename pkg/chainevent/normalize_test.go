package chainevent

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0x0d8b3e2f0d6a4c1e9b7a5f3c2e1d0b9a8f7e6d5c4b3a291807f6e5d4c3b2a190"

func fillLog(block uint64, maker, taker string) RawLog {
	return RawLog{
		BlockNumber: block,
		TxIndex:     2,
		LogIndex:    7,
		Event:       EventLogFill,
		Args: map[string]string{
			"orderHash":              testHash,
			"maker":                  "0xAAAA",
			"makerToken":             "0xMKR",
			"takerToken":             "0xTKR",
			"filledMakerTokenAmount": maker,
			"filledTakerTokenAmount": taker,
		},
	}
}

func TestNormalizeFill(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ev, err := Normalize(fillLog(10, "40", "80"), now)
	require.NoError(t, err)

	assert.Equal(t, KindFill, ev.Kind)
	assert.Equal(t, testHash, ev.OrderHash)
	assert.Equal(t, Position{BlockNumber: 10, TxIndex: 2, LogIndex: 7}, ev.Position)
	assert.Equal(t, now, ev.ReceivedAt)
	require.NotNil(t, ev.Fill)
	assert.True(t, ev.Fill.MakerDelta.Equal(decimal.NewFromInt(40)))
	assert.True(t, ev.Fill.TakerDelta.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "0xaaaa", ev.Fill.Maker)
	assert.Equal(t, "0xmkr", ev.Fill.MakerAsset)
}

func TestNormalizeTerminalEvents(t *testing.T) {
	cases := []struct {
		name   string
		event  string
		args   map[string]string
		kind   Kind
		reason string
	}{
		{"cancel", EventLogCancel, map[string]string{"orderHash": testHash}, KindCancel, "CANCELLED"},
		{"cancel alias", EventCancel, map[string]string{"orderHash": testHash}, KindCancel, "CANCELLED"},
		{"expired log error", EventLogError, map[string]string{"orderHash": testHash, "errorId": "0"}, KindExpire, "ORDER_EXPIRED"},
		{"expire alias", EventExpire, map[string]string{"orderHash": testHash}, KindExpire, "ORDER_EXPIRED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Normalize(RawLog{BlockNumber: 1, Event: tc.event, Args: tc.args}, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, tc.reason, ev.Reason)
			assert.Nil(t, ev.Fill)
		})
	}
}

func TestNormalizeMalformed(t *testing.T) {
	missingHash := fillLog(1, "1", "1")
	delete(missingHash.Args, "orderHash")

	shortHash := fillLog(1, "1", "1")
	shortHash.Args["orderHash"] = "0x1234"

	notHex := fillLog(1, "1", "1")
	notHex.Args["orderHash"] = "0x" + "zz" + testHash[4:]

	missingDelta := fillLog(1, "1", "1")
	delete(missingDelta.Args, "filledMakerTokenAmount")

	unpositionedCancel := RawLog{Event: EventLogCancel, Args: map[string]string{"orderHash": testHash}}

	cases := map[string]RawLog{
		"missing order hash":   missingHash,
		"short order hash":     shortHash,
		"non hex order hash":   notHex,
		"missing maker delta":  missingDelta,
		"negative delta":       fillLog(1, "-5", "1"),
		"zero maker delta":     fillLog(1, "0", "1"),
		"not a number":         fillLog(1, "abc", "1"),
		"missing event name":   {Args: map[string]string{"orderHash": testHash}},
		"log error no id":      {Event: EventLogError, Args: map[string]string{"orderHash": testHash}},
		"fill without block":   fillLog(0, "40", "80"),
		"cancel without block": unpositionedCancel,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestParseOrderHash(t *testing.T) {
	h, err := ParseOrderHash("  0x0D8B3E2F0D6A4C1E9B7A5F3C2E1D0B9A8F7E6D5C4B3A291807F6E5D4C3B2A190 ")
	require.NoError(t, err)
	assert.Equal(t, testHash, h)

	for _, bad := range []string{"", "0x1234", "ord-1", testHash[2:] + "00", "0x" + "zz" + testHash[4:]} {
		_, err := ParseOrderHash(bad)
		assert.ErrorIs(t, err, ErrInvalidOrderHash, "hash %q", bad)
	}
}

func TestNormalizeIgnored(t *testing.T) {
	for _, raw := range []RawLog{
		{Event: EventLogError, Args: map[string]string{"orderHash": testHash, "errorId": "1"}},
		{Event: EventLogError, Args: map[string]string{"orderHash": testHash, "errorId": "9"}},
		{Event: "Transfer", Args: map[string]string{"orderHash": testHash}},
	} {
		_, err := Normalize(raw, time.Now())
		assert.ErrorIs(t, err, ErrIgnoredEvent)
	}
}

func TestSortByPosition(t *testing.T) {
	events := make([]Event, 0, 50)
	for i := 0; i < 50; i++ {
		events = append(events, Event{
			OrderHash: testHash,
			Position: Position{
				BlockNumber: uint64(rand.Intn(5)),
				TxIndex:     uint64(rand.Intn(3)),
				LogIndex:    uint64(rand.Intn(3)),
			},
		})
	}

	SortByPosition(events)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Position.Less(events[i-1].Position), "events %d and %d out of order", i-1, i)
	}
}

func TestSortByPositionKeepsFirstOfTie(t *testing.T) {
	pos := Position{BlockNumber: 3}
	events := []Event{
		{Position: Position{BlockNumber: 4}, Reason: "later"},
		{Position: pos, Reason: "first"},
		{Position: pos, Reason: "second"},
	}

	SortByPosition(events)

	assert.Equal(t, "first", events[0].Reason)
	assert.Equal(t, "second", events[1].Reason)
	assert.Equal(t, "later", events[2].Reason)
}
