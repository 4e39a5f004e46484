// Package engine wires the storage layers into one embedded database.
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/mvcc"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/datamanager"
	"github.com/Blackdeer1524/MiniDB/src/transactions"
)

type Engine struct {
	tm *transactions.Manager
	dm *datamanager.Manager
	vm *mvcc.Manager

	session uuid.UUID
	log     *zap.SugaredLogger
}

type Stats struct {
	datamanager.Stats

	LastTxnID          common.TxnID
	ActiveTransactions int
}

// Create makes a new database under path: path.xid, path.db and path.log.
func Create(
	fs afero.Fs,
	path string,
	memory int64,
	log *zap.SugaredLogger,
) (*Engine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	tm, err := transactions.Create(fs, path+common.XIDSuffix)
	if err != nil {
		return nil, err
	}

	dm, err := datamanager.Create(fs, path, memory, log)
	if err != nil {
		return nil, multierr.Append(err, tm.Close())
	}

	e := newEngine(tm, dm, log)
	e.log.Infow("database created", "path", path, "memory", memory)

	return e, nil
}

// Open opens the database under path, recovering it if it was not closed
// cleanly.
func Open(
	ctx context.Context,
	fs afero.Fs,
	path string,
	memory int64,
	log *zap.SugaredLogger,
) (*Engine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	tm, err := transactions.Open(fs, path+common.XIDSuffix)
	if err != nil {
		return nil, err
	}

	dm, err := datamanager.Open(ctx, fs, path, memory, tm, log)
	if err != nil {
		return nil, multierr.Append(err, tm.Close())
	}

	e := newEngine(tm, dm, log)
	e.log.Infow("database opened", "path", path, "memory", memory)

	return e, nil
}

func newEngine(
	tm *transactions.Manager,
	dm *datamanager.Manager,
	log *zap.SugaredLogger,
) *Engine {
	session := uuid.New()
	log = log.With("session", session.String())

	return &Engine{
		tm:      tm,
		dm:      dm,
		vm:      mvcc.New(tm, dm, log),
		session: session,
		log:     log,
	}
}

func (e *Engine) Begin(level mvcc.IsolationLevel) (common.TxnID, error) {
	return e.vm.Begin(level)
}

func (e *Engine) Commit(xid common.TxnID) error {
	return e.vm.Commit(xid)
}

func (e *Engine) Abort(xid common.TxnID) error {
	return e.vm.Abort(xid)
}

// Read returns the record at uid as seen by xid, or false if xid can't see
// one there.
func (e *Engine) Read(xid common.TxnID, uid common.UID) ([]byte, bool, error) {
	return e.vm.Read(xid, uid)
}

func (e *Engine) Insert(xid common.TxnID, data []byte) (common.UID, error) {
	return e.vm.Insert(xid, data)
}

func (e *Engine) Delete(xid common.TxnID, uid common.UID) (bool, error) {
	return e.vm.Delete(xid, uid)
}

func (e *Engine) Session() uuid.UUID {
	return e.session
}

func (e *Engine) Stats() Stats {
	return Stats{
		Stats:              e.dm.Stats(),
		LastTxnID:          e.tm.LastID(),
		ActiveTransactions: e.vm.ActiveTransactions(),
	}
}

// Close shuts the database down cleanly. Transactions still open stay
// active in the status file, so their writes never become visible.
func (e *Engine) Close() error {
	e.vm.Close()

	err := multierr.Combine(e.dm.Close(), e.tm.Close())
	if err != nil {
		e.log.Errorw("close failed", "error", err)
		return err
	}

	e.log.Info("database closed")

	return nil
}
