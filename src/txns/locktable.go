// Package txns arbitrates exclusive per-record locks between transactions
// and detects deadlocks on the wait-for graph.
package txns

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/datastructures/inmemory"
)

var ErrDeadlock = errors.New("deadlock")

// closedCh is handed out when the lock is granted right away.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type LockTable struct {
	mu sync.Mutex

	// uids held by each transaction
	x2u map[common.TxnID][]common.UID
	// holder of each uid
	u2x map[common.UID]common.TxnID
	// transactions waiting for each uid, in arrival order
	waitQueue map[common.UID]*inmemory.Queue[common.TxnID]
	// the uid each waiting transaction waits for
	waitU map[common.TxnID]common.UID
	// closed when the waiting transaction is granted its uid
	waitCh map[common.TxnID]chan struct{}

	deadlocks metric.Int64Counter
}

func NewLockTable() *LockTable {
	meter := otel.Meter("github.com/Blackdeer1524/MiniDB/src/txns")

	deadlocks, err := meter.Int64Counter(
		"minidb.txns.deadlocks",
		metric.WithDescription("lock requests refused because they would close a cycle"),
	)
	assert.NoErrorf(err, "create deadlocks counter")

	return &LockTable{
		x2u:       map[common.TxnID][]common.UID{},
		u2x:       map[common.UID]common.TxnID{},
		waitQueue: map[common.UID]*inmemory.Queue[common.TxnID]{},
		waitU:     map[common.TxnID]common.UID{},
		waitCh:    map[common.TxnID]chan struct{}{},
		deadlocks: deadlocks,
	}
}

// Add requests uid for xid. The returned channel is closed once xid holds
// the lock. If waiting would close a cycle in the wait-for graph, nothing is
// registered and ErrDeadlock is returned.
func (lt *LockTable) Add(xid common.TxnID, uid common.UID) (<-chan struct{}, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if slices.Contains(lt.x2u[xid], uid) {
		return closedCh, nil
	}

	if _, held := lt.u2x[uid]; !held {
		lt.grant(xid, uid)
		return closedCh, nil
	}

	assert.Assert(lt.waitCh[xid] == nil, "transaction %d is already waiting", xid)

	lt.waitU[xid] = uid
	lt.queue(uid).Enqueue(xid)

	if lt.hasDeadlock() {
		lt.stopWaiting(xid)
		lt.deadlocks.Add(context.Background(), 1)

		return nil, errors.Wrapf(ErrDeadlock, "txn %d waiting for %s", xid, uid)
	}

	ch := make(chan struct{})
	lt.waitCh[xid] = ch

	return ch, nil
}

// Remove releases every lock xid holds, handing each uid to its oldest
// waiter.
func (lt *LockTable) Remove(xid common.TxnID) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	for _, uid := range lt.x2u[xid] {
		delete(lt.u2x, uid)
		lt.handOver(uid)
	}
	delete(lt.x2u, xid)

	if _, waiting := lt.waitU[xid]; waiting {
		lt.stopWaiting(xid)
	}
}

func (lt *LockTable) grant(xid common.TxnID, uid common.UID) {
	lt.u2x[uid] = xid
	lt.x2u[xid] = append(lt.x2u[xid], uid)
}

func (lt *LockTable) queue(uid common.UID) *inmemory.Queue[common.TxnID] {
	q, ok := lt.waitQueue[uid]
	if !ok {
		q = inmemory.NewQueue[common.TxnID]()
		lt.waitQueue[uid] = q
	}

	return q
}

func (lt *LockTable) handOver(uid common.UID) {
	q, ok := lt.waitQueue[uid]
	if !ok {
		return
	}

	for {
		next, ok := q.Dequeue()
		if !ok {
			break
		}

		ch, waiting := lt.waitCh[next]
		if !waiting {
			continue
		}

		lt.grant(next, uid)
		delete(lt.waitU, next)
		delete(lt.waitCh, next)
		close(ch)

		break
	}

	if q.Len() == 0 {
		delete(lt.waitQueue, uid)
	}
}

func (lt *LockTable) stopWaiting(xid common.TxnID) {
	uid := lt.waitU[xid]
	delete(lt.waitU, xid)
	delete(lt.waitCh, xid)

	if q, ok := lt.waitQueue[uid]; ok {
		q.Filter(func(x common.TxnID) bool { return x != xid })
		if q.Len() == 0 {
			delete(lt.waitQueue, uid)
		}
	}
}

// hasDeadlock looks for a cycle in the wait-for graph. Every transaction
// waits for at most one uid, so each walk is a simple path. Stamps tell
// apart nodes visited in the current walk from those cleared by an earlier
// one.
func (lt *LockTable) hasDeadlock() bool {
	stamps := map[common.TxnID]int{}
	stamp := 0

	for start := range lt.x2u {
		if stamps[start] > 0 {
			continue
		}

		stamp++
		for xid := start; ; {
			if s := stamps[xid]; s == stamp {
				return true
			} else if s > 0 {
				break
			}
			stamps[xid] = stamp

			uid, waiting := lt.waitU[xid]
			if !waiting {
				break
			}

			holder, held := lt.u2x[uid]
			assert.Assert(held, "%d waits for %s which nobody holds", xid, uid)
			xid = holder
		}
	}

	return false
}

// Holder reports which transaction holds uid.
func (lt *LockTable) Holder(uid common.UID) (common.TxnID, bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	xid, ok := lt.u2x[uid]
	return xid, ok
}

// Waiting reports how many transactions are blocked on a lock.
func (lt *LockTable) Waiting() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	return len(lt.waitU)
}
