package mvcc

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

type IsolationLevel uint8

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "read committed"
	case RepeatableRead:
		return "repeatable read"
	}

	return "unknown"
}

func (l IsolationLevel) validate() error {
	if l != ReadCommitted && l != RepeatableRead {
		return errors.Errorf("unsupported isolation level %d", l)
	}

	return nil
}

type Transaction struct {
	ID    common.TxnID
	Level IsolationLevel

	// transactions active when this one began, repeatable read only
	snapshot map[common.TxnID]struct{}

	// sticky: once set every operation fails with it
	err         error
	autoAborted bool
}

func newTransaction(
	xid common.TxnID,
	level IsolationLevel,
	active map[common.TxnID]*Transaction,
) *Transaction {
	t := &Transaction{ID: xid, Level: level}

	if level != ReadCommitted {
		t.snapshot = make(map[common.TxnID]struct{}, len(active))
		for id := range active {
			t.snapshot[id] = struct{}{}
		}
	}

	return t
}

func (t *Transaction) isInSnapshot(xid common.TxnID) bool {
	if xid == common.SuperTxnID {
		return false
	}

	_, ok := t.snapshot[xid]
	return ok
}
