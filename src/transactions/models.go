package transactions

import "github.com/Blackdeer1524/MiniDB/src/pkg/common"

type Status byte

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	}

	return "unknown"
}

// .xid layout: [counter:8] followed by one status byte per transaction,
// starting at id 1.
const (
	headerLength = 8
	fieldSize    = 1
)

func statusOffset(xid common.TxnID) int64 {
	//nolint:gosec
	return headerLength + int64(xid-1)*fieldSize
}
