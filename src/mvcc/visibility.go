package mvcc

import (
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

type StatusChecker interface {
	IsCommitted(xid common.TxnID) bool
}

type versionStamps interface {
	CreateVTN() common.TxnID
	DeleteVTN() common.TxnID
}

// isVersionSkip reports whether a peer the reader can't see has already
// committed a delete of this version.
func isVersionSkip(tm StatusChecker, t *Transaction, e versionStamps) bool {
	if t.Level == ReadCommitted {
		return false
	}

	deleteVTN := e.DeleteVTN()

	return tm.IsCommitted(deleteVTN) && (deleteVTN > t.ID || t.isInSnapshot(deleteVTN))
}

func isVisible(tm StatusChecker, t *Transaction, e versionStamps) bool {
	if t.Level == ReadCommitted {
		return readCommitted(tm, t, e)
	}

	return repeatableRead(tm, t, e)
}

func readCommitted(tm StatusChecker, t *Transaction, e versionStamps) bool {
	createVTN, deleteVTN := e.CreateVTN(), e.DeleteVTN()

	if createVTN == t.ID && deleteVTN == 0 {
		return true
	}

	if !tm.IsCommitted(createVTN) {
		return false
	}

	if deleteVTN == 0 {
		return true
	}

	return deleteVTN != t.ID && !tm.IsCommitted(deleteVTN)
}

func repeatableRead(tm StatusChecker, t *Transaction, e versionStamps) bool {
	createVTN, deleteVTN := e.CreateVTN(), e.DeleteVTN()

	if createVTN == t.ID && deleteVTN == 0 {
		return true
	}

	if !tm.IsCommitted(createVTN) || createVTN >= t.ID || t.isInSnapshot(createVTN) {
		return false
	}

	if deleteVTN == 0 {
		return true
	}

	return deleteVTN != t.ID &&
		(!tm.IsCommitted(deleteVTN) || deleteVTN > t.ID || t.isInSnapshot(deleteVTN))
}
