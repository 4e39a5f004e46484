package common

import "fmt"

// TxnID is a monotonically increasing transaction identifier. Zero is
// reserved for the super transaction.
type TxnID uint64

// SuperTxnID is permanently committed and never active. Writes stamped with
// it are visible to everyone.
const SuperTxnID TxnID = 0

// PageNumber is a 1-based page index inside the data file.
type PageNumber uint32

// UID addresses a record as (page number, in-page offset) packed into 64
// bits: the page number occupies the upper 32 bits, the offset the lowest 16.
type UID uint64

func NewUID(pageNumber PageNumber, offset uint16) UID {
	return UID(uint64(pageNumber)<<32 | uint64(offset))
}

func (u UID) PageNumber() PageNumber {
	return PageNumber(uint64(u) >> 32)
}

func (u UID) Offset() uint16 {
	return uint16(uint64(u) & (1<<16 - 1))
}

func (u UID) String() string {
	return fmt.Sprintf("%d:%d", u.PageNumber(), u.Offset())
}
