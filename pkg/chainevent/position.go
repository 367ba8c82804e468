package chainevent

import "fmt"

// Position is the total order of chain events: block, then transaction
// index inside the block, then log index inside the transaction.
type Position struct {
	BlockNumber uint64 `json:"block_number"`
	TxIndex     uint64 `json:"tx_index"`
	LogIndex    uint64 `json:"log_index"`
}

// Compare returns -1, 0 or 1 when p is before, equal to or after other.
func (p Position) Compare(other Position) int {
	switch {
	case p.BlockNumber != other.BlockNumber:
		return cmpUint(p.BlockNumber, other.BlockNumber)
	case p.TxIndex != other.TxIndex:
		return cmpUint(p.TxIndex, other.TxIndex)
	default:
		return cmpUint(p.LogIndex, other.LogIndex)
	}
}

func (p Position) Less(other Position) bool {
	return p.Compare(other) < 0
}

func (p Position) IsZero() bool {
	return p == Position{}
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d/%d", p.BlockNumber, p.TxIndex, p.LogIndex)
}

// Max returns the later of the two positions.
func Max(a, b Position) Position {
	if a.Less(b) {
		return b
	}
	return a
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	return 1
}
