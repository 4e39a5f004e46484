// Package mvcc layers multi-version visibility over the data manager.
//
// Every record version carries the id of the transaction that created it and
// of the one that deleted it. Reads never lock; which versions a transaction
// sees is decided purely by comparing those ids with its snapshot. Deletes
// serialize on a per-record lock and follow first-committer-wins.
package mvcc

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/cache"
	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/datamanager"
	"github.com/Blackdeer1524/MiniDB/src/txns"
)

var (
	ErrConcurrentUpdate  = errors.New("concurrent update")
	ErrNoSuchTransaction = errors.New("no such transaction")
)

type TxnManager interface {
	StatusChecker
	Begin() (common.TxnID, error)
	Commit(xid common.TxnID) error
	Abort(xid common.TxnID) error
	LastID() common.TxnID
}

type DataStore interface {
	Read(uid common.UID) (*datamanager.Handle, error)
	Insert(xid common.TxnID, data []byte) (common.UID, error)
}

var _ DataStore = &datamanager.Manager{}

type Manager struct {
	tm TxnManager
	dm DataStore
	lt *txns.LockTable

	entries *cache.Cache[*Entry]

	mu     sync.Mutex
	active map[common.TxnID]*Transaction

	conflicts metric.Int64Counter
	log       *zap.SugaredLogger
}

func New(tm TxnManager, dm DataStore, log *zap.SugaredLogger) *Manager {
	meter := otel.Meter("github.com/Blackdeer1524/MiniDB/src/mvcc")

	conflicts, err := meter.Int64Counter(
		"minidb.mvcc.conflicts",
		metric.WithDescription("transactions aborted by a conflicting delete"),
	)
	assert.NoErrorf(err, "create conflicts counter")

	m := &Manager{
		tm:        tm,
		dm:        dm,
		lt:        txns.NewLockTable(),
		conflicts: conflicts,
		log:       log,
		active: map[common.TxnID]*Transaction{
			common.SuperTxnID: newTransaction(common.SuperTxnID, ReadCommitted, nil),
		},
	}
	m.entries = cache.New[*Entry]("entries", 0, entryBackend{tm: tm, dm: dm})

	return m
}

func (m *Manager) transaction(xid common.TxnID) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[xid]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchTransaction, "txn %d", xid)
	}

	return t, nil
}

func (m *Manager) Begin(level IsolationLevel) (common.TxnID, error) {
	if err := level.validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	xid, err := m.tm.Begin()
	if err != nil {
		return 0, err
	}

	m.active[xid] = newTransaction(xid, level, m.active)

	return xid, nil
}

// acquire loads the entry at uid. A missing or rolled back record is
// reported as not found.
func (m *Manager) acquire(uid common.UID) (*cache.Handle[*Entry], bool, error) {
	h, err := m.entries.Acquire(uint64(uid))
	if errors.Is(err, datamanager.ErrNullEntry) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	return h, true, nil
}

// Read returns the payload at uid if xid can see it.
func (m *Manager) Read(xid common.TxnID, uid common.UID) ([]byte, bool, error) {
	t, err := m.transaction(xid)
	if err != nil {
		return nil, false, err
	}

	if t.err != nil {
		return nil, false, t.err
	}

	h, ok, err := m.acquire(uid)
	if err != nil || !ok {
		return nil, false, err
	}
	defer h.Release()

	if !isVisible(m.tm, t, h.Value()) {
		return nil, false, nil
	}

	return h.Value().Data(), true, nil
}

func (m *Manager) Insert(xid common.TxnID, data []byte) (common.UID, error) {
	t, err := m.transaction(xid)
	if err != nil {
		return 0, err
	}

	if t.err != nil {
		return 0, t.err
	}

	return m.dm.Insert(xid, wrapEntry(xid, data))
}

// Delete marks the version at uid deleted by xid. It returns false if xid
// can't see the version or has already deleted it. A deadlock or a delete
// already committed by a peer aborts xid.
func (m *Manager) Delete(xid common.TxnID, uid common.UID) (bool, error) {
	t, err := m.transaction(xid)
	if err != nil {
		return false, err
	}

	if t.err != nil {
		return false, t.err
	}

	h, ok, err := m.acquire(uid)
	if err != nil || !ok {
		return false, err
	}
	defer h.Release()

	entry := h.Value()
	if !isVisible(m.tm, t, entry) {
		return false, nil
	}

	wait, err := m.lt.Add(xid, uid)
	if err != nil {
		return false, m.autoAbort(t, fmt.Errorf("%w: %w", ErrConcurrentUpdate, err))
	}
	<-wait

	if entry.DeleteVTN() == xid {
		return false, nil
	}

	if isVersionSkip(m.tm, t, entry) {
		return false, m.autoAbort(t, errors.Wrapf(
			ErrConcurrentUpdate,
			"%s was deleted by txn %d",
			uid,
			entry.DeleteVTN(),
		))
	}

	if err := entry.SetDeleteVTN(xid); err != nil {
		return false, err
	}

	return true, nil
}

// autoAbort kills t with err. t stays registered so the caller still has
// to Abort it, and every call until then returns err.
func (m *Manager) autoAbort(t *Transaction, err error) error {
	m.conflicts.Add(context.Background(), 1)
	m.log.Debugw("transaction aborted by conflict", "txn", t.ID, "error", err)

	t.err = err
	if abortErr := m.internAbort(t.ID, true); abortErr != nil {
		return errors.Wrap(abortErr, err.Error())
	}

	return err
}

// Commit finishes xid. A transaction killed by a conflict can't commit.
func (m *Manager) Commit(xid common.TxnID) error {
	if xid == common.SuperTxnID {
		return errors.Wrap(ErrNoSuchTransaction, "the super transaction never finishes")
	}

	t, err := m.transaction(xid)
	if err != nil {
		return err
	}

	if t.err != nil {
		return t.err
	}

	m.mu.Lock()
	delete(m.active, xid)
	m.mu.Unlock()

	m.lt.Remove(xid)

	return m.tm.Commit(xid)
}

func (m *Manager) Abort(xid common.TxnID) error {
	if xid == common.SuperTxnID {
		return errors.Wrap(ErrNoSuchTransaction, "the super transaction never finishes")
	}

	return m.internAbort(xid, false)
}

func (m *Manager) internAbort(xid common.TxnID, auto bool) error {
	m.mu.Lock()
	t, ok := m.active[xid]
	if !ok {
		m.mu.Unlock()
		return errors.Wrapf(ErrNoSuchTransaction, "txn %d", xid)
	}

	if !auto {
		delete(m.active, xid)
	}

	wasAborted := t.autoAborted
	if auto {
		t.autoAborted = true
	}
	m.mu.Unlock()

	if wasAborted {
		return nil
	}

	m.lt.Remove(xid)

	return m.tm.Abort(xid)
}

// ActiveTransactions reports how many user transactions are open.
func (m *Manager) ActiveTransactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.active) - 1
}

// Close drops every cached entry.
func (m *Manager) Close() {
	m.entries.Close()
}

type entryBackend struct {
	tm TxnManager
	dm DataStore
}

func (b entryBackend) Fetch(key uint64) (*Entry, error) {
	uid := common.UID(key)

	item, err := b.dm.Read(uid)
	if err != nil {
		return nil, err
	}

	if len(item.Value().Data()) < dataOffset {
		item.Release()
		return nil, errors.Wrapf(datamanager.ErrNullEntry, "%s holds no version", uid)
	}

	e := &Entry{uid: uid, item: item}

	// stamps from the future mean uid points into the middle of a record
	if last := b.tm.LastID(); e.CreateVTN() > last || e.DeleteVTN() > last {
		item.Release()
		return nil, errors.Wrapf(datamanager.ErrNullEntry, "%s holds no version", uid)
	}

	return e, nil
}

func (b entryBackend) Evict(_ uint64, e *Entry) {
	e.release()
}
