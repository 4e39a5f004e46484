package recovery

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
)

// LogRecordsIter walks the log from the first record and decodes each one.
// The log's read position is shared, so only one iterator may be live.
type LogRecordsIter struct {
	wal *TxnLogger
	cur LogRecord
}

func newLogRecordIter(wal *TxnLogger) *LogRecordsIter {
	wal.Rewind()
	return &LogRecordsIter{wal: wal}
}

// MoveForward advances to the next record. It returns false at the end of
// the log.
func (iter *LogRecordsIter) MoveForward() (bool, error) {
	data, ok, err := iter.wal.Next()
	if err != nil || !ok {
		iter.cur = nil
		return false, err
	}

	record, err := readLogRecord(data)
	if err != nil {
		iter.cur = nil
		return false, errors.Wrapf(ErrBadLogFile, "decode record: %v", err)
	}

	iter.cur = record

	return true, nil
}

func (iter *LogRecordsIter) Record() LogRecord {
	assert.Assert(iter.cur != nil, "LogIter invariant violated: no current record")
	return iter.cur
}
