package recovery

import (
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

// TxnLogChain appends records on behalf of one transaction. The first
// failure sticks and every later call becomes a no-op.
type TxnLogChain struct {
	logger *TxnLogger
	txnID  common.TxnID

	err error
}

func NewTxnLogChain(logger *TxnLogger, txnID common.TxnID) *TxnLogChain {
	return &TxnLogChain{
		logger: logger,
		txnID:  txnID,
	}
}

func (c *TxnLogChain) SwitchTransactionID(txnID common.TxnID) *TxnLogChain {
	if c.err != nil {
		return c
	}

	c.txnID = txnID
	return c
}

func (c *TxnLogChain) Insert(
	pageNumber common.PageNumber,
	offset uint16,
	raw []byte,
) *TxnLogChain {
	if c.err != nil {
		return c
	}

	r := NewInsertLogRecord(c.txnID, pageNumber, offset, raw)
	c.err = c.append(&r)

	return c
}

func (c *TxnLogChain) Update(uid common.UID, oldRaw, newRaw []byte) *TxnLogChain {
	if c.err != nil {
		return c
	}

	r := NewUpdateLogRecord(c.txnID, uid, oldRaw, newRaw)
	c.err = c.append(&r)

	return c
}

func (c *TxnLogChain) append(r interface{ MarshalBinary() ([]byte, error) }) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}

	return c.logger.Append(data)
}

func (c *TxnLogChain) Err() error {
	return c.err
}
