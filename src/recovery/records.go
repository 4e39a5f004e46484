package recovery

import (
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

type LogRecordTypeTag byte

const (
	TypeInsert LogRecordTypeTag = iota
	TypeUpdate
)

func (t LogRecordTypeTag) String() string {
	switch t {
	case TypeInsert:
		return "insert"
	case TypeUpdate:
		return "update"
	}

	return "unknown"
}

// InsertLogRecord says that Raw was placed at Offset on page PageNumber.
type InsertLogRecord struct {
	TxnID      common.TxnID
	PageNumber common.PageNumber
	Offset     uint16
	Raw        []byte
}

func NewInsertLogRecord(
	txnID common.TxnID,
	pageNumber common.PageNumber,
	offset uint16,
	raw []byte,
) InsertLogRecord {
	return InsertLogRecord{
		TxnID:      txnID,
		PageNumber: pageNumber,
		Offset:     offset,
		Raw:        raw,
	}
}

// UpdateLogRecord says that the item at UID changed from OldRaw to NewRaw.
// Both images have the same length.
type UpdateLogRecord struct {
	TxnID  common.TxnID
	UID    common.UID
	OldRaw []byte
	NewRaw []byte
}

func NewUpdateLogRecord(
	txnID common.TxnID,
	uid common.UID,
	oldRaw []byte,
	newRaw []byte,
) UpdateLogRecord {
	return UpdateLogRecord{
		TxnID:  txnID,
		UID:    uid,
		OldRaw: oldRaw,
		NewRaw: newRaw,
	}
}

// LogRecord is either an InsertLogRecord or an UpdateLogRecord.
type LogRecord interface {
	Tag() LogRecordTypeTag
	Txn() common.TxnID
	Page() common.PageNumber
}

var (
	_ LogRecord = InsertLogRecord{}
	_ LogRecord = UpdateLogRecord{}
)

func (r InsertLogRecord) Tag() LogRecordTypeTag   { return TypeInsert }
func (r InsertLogRecord) Txn() common.TxnID       { return r.TxnID }
func (r InsertLogRecord) Page() common.PageNumber { return r.PageNumber }

func (r UpdateLogRecord) Tag() LogRecordTypeTag   { return TypeUpdate }
func (r UpdateLogRecord) Txn() common.TxnID       { return r.TxnID }
func (r UpdateLogRecord) Page() common.PageNumber { return r.UID.PageNumber() }
