package recovery

import (
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

// ActiveTransactionsTable collects, per transaction left active by a crash,
// the records it logged in log order.
type ActiveTransactionsTable struct {
	table map[common.TxnID][]LogRecord
	order []common.TxnID
}

func NewATT() ActiveTransactionsTable {
	return ActiveTransactionsTable{
		table: map[common.TxnID][]LogRecord{},
	}
}

// Insert returns true iff it is the first record for the transaction.
func (att *ActiveTransactionsTable) Insert(record LogRecord) bool {
	id := record.Txn()

	records, alreadyExists := att.table[id]
	att.table[id] = append(records, record)

	if !alreadyExists {
		att.order = append(att.order, id)
	}

	return !alreadyExists
}

// Seq yields every transaction with its records in log order.
func (att *ActiveTransactionsTable) Seq(yield func(common.TxnID, []LogRecord) bool) {
	for _, id := range att.order {
		if !yield(id, att.table[id]) {
			return
		}
	}
}

func (att *ActiveTransactionsTable) Len() int {
	return len(att.order)
}
