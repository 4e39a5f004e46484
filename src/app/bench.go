package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/panjf2000/ants"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/mvcc"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

type Store interface {
	Begin(level mvcc.IsolationLevel) (common.TxnID, error)
	Commit(xid common.TxnID) error
	Abort(xid common.TxnID) error
	Read(xid common.TxnID, uid common.UID) ([]byte, bool, error)
	Insert(xid common.TxnID, data []byte) (common.UID, error)
	Delete(xid common.TxnID, uid common.UID) (bool, error)
}

type BenchReport struct {
	Committed int64
	Conflicts int64
	Inserted  int64
	Deleted   int64
	Reads     int64
	Elapsed   time.Duration
}

func (r BenchReport) TxnsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}

	return float64(r.Committed) / r.Elapsed.Seconds()
}

type bench struct {
	store Store
	log   *zap.SugaredLogger

	mu   sync.Mutex
	uids []common.UID
	errs error

	committed atomic.Int64
	conflicts atomic.Int64
	inserted  atomic.Int64
	deleted   atomic.Int64
	reads     atomic.Int64
}

// RunBench runs txns short transactions on a pool of workers goroutines.
// Every transaction inserts a row, reads it back and tries to delete a row
// committed earlier, so workers contend for the same versions.
// Transactions aborted on a conflict are counted, not treated as failures.
func RunBench(
	ctx context.Context,
	store Store,
	workers, txns int,
	log *zap.SugaredLogger,
) (BenchReport, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return BenchReport{}, errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	b := &bench{store: store, log: log}
	start := time.Now()

	wg := sync.WaitGroup{}
	for i := range txns {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				return
			}

			if err := b.txn(i); err != nil {
				b.fail(err)
			}
		})
		if err != nil {
			wg.Done()
			b.fail(errors.Wrap(err, "submit"))
			break
		}
	}
	wg.Wait()

	report := BenchReport{
		Committed: b.committed.Load(),
		Conflicts: b.conflicts.Load(),
		Inserted:  b.inserted.Load(),
		Deleted:   b.deleted.Load(),
		Reads:     b.reads.Load(),
		Elapsed:   time.Since(start),
	}

	if b.errs != nil {
		return report, b.errs
	}

	return report, ctx.Err()
}

func (b *bench) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errs = multierr.Append(b.errs, err)
}

func (b *bench) victim() (common.UID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.uids) == 0 {
		return 0, false
	}

	return b.uids[rand.IntN(len(b.uids))], true
}

func (b *bench) txn(i int) error {
	level := mvcc.ReadCommitted
	if i%2 == 1 {
		level = mvcc.RepeatableRead
	}

	xid, err := b.store.Begin(level)
	if err != nil {
		return errors.Wrap(err, "begin")
	}

	uid, deleted, err := b.work(xid, i)
	if err != nil {
		if !errors.Is(err, mvcc.ErrConcurrentUpdate) {
			return multierr.Append(err, b.store.Abort(xid))
		}

		b.conflicts.Add(1)
		b.log.Debugw("transaction conflict", "xid", xid, "error", err)

		return b.store.Abort(xid)
	}

	if err := b.store.Commit(xid); err != nil {
		if errors.Is(err, mvcc.ErrConcurrentUpdate) {
			b.conflicts.Add(1)
			return b.store.Abort(xid)
		}

		return errors.Wrapf(err, "commit %d", xid)
	}

	b.committed.Add(1)
	b.inserted.Add(1)
	if deleted {
		b.deleted.Add(1)
	}

	b.mu.Lock()
	b.uids = append(b.uids, uid)
	b.mu.Unlock()

	return nil
}

func (b *bench) work(xid common.TxnID, i int) (common.UID, bool, error) {
	payload := fmt.Appendf(nil, "bench-%d-%d", xid, i)

	uid, err := b.store.Insert(xid, payload)
	if err != nil {
		return 0, false, errors.Wrap(err, "insert")
	}

	data, ok, err := b.store.Read(xid, uid)
	if err != nil {
		return 0, false, errors.Wrap(err, "read")
	}
	b.reads.Add(1)

	if !ok || string(data) != string(payload) {
		return 0, false, errors.Errorf("transaction %d can't see its own insert at %d", xid, uid)
	}

	victim, ok := b.victim()
	if !ok || i%4 != 0 {
		return uid, false, nil
	}

	deleted, err := b.store.Delete(xid, victim)
	if err != nil {
		return 0, false, errors.Wrap(err, "delete")
	}

	return uid, deleted, nil
}
