package mvcc

import (
	"bytes"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/pkg/utils"
	"github.com/Blackdeer1524/MiniDB/src/storage/datamanager"
)

// Entry is one version of a record: [create xid:8][delete xid:8][data].
// A zero delete xid means the version is alive.
const (
	createOffset = 0
	deleteOffset = 8
	dataOffset   = 16
)

type Entry struct {
	uid  common.UID
	item *datamanager.Handle
}

func wrapEntry(xid common.TxnID, data []byte) []byte {
	raw := make([]byte, dataOffset+len(data))
	utils.PutUint64(raw[createOffset:deleteOffset], uint64(xid))
	copy(raw[dataOffset:], data)

	return raw
}

func (e *Entry) UID() common.UID {
	return e.uid
}

func (e *Entry) CreateVTN() common.TxnID {
	item := e.item.Value()
	item.RLock()
	defer item.RUnlock()

	return common.TxnID(utils.ParseUint64(item.Data()[createOffset:deleteOffset]))
}

func (e *Entry) DeleteVTN() common.TxnID {
	item := e.item.Value()
	item.RLock()
	defer item.RUnlock()

	return common.TxnID(utils.ParseUint64(item.Data()[deleteOffset:dataOffset]))
}

// Data returns a copy of the payload.
func (e *Entry) Data() []byte {
	item := e.item.Value()
	item.RLock()
	defer item.RUnlock()

	return bytes.Clone(item.Data()[dataOffset:])
}

// SetDeleteVTN stamps xid as the deleter, logging the change.
func (e *Entry) SetDeleteVTN(xid common.TxnID) error {
	return e.item.Value().Update(xid, func(data []byte) error {
		utils.PutUint64(data[deleteOffset:dataOffset], uint64(xid))
		return nil
	})
}

func (e *Entry) release() {
	e.item.Release()
}
