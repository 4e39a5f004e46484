package recovery

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/dataitem"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
	"github.com/Blackdeer1524/MiniDB/src/transactions"
)

const (
	dbPath  = "/db/test.db"
	xidPath = "/db/test.xid"
	memory  = 16 * page.Size
)

type env struct {
	fs    afero.Fs
	tm    *transactions.Manager
	wal   *TxnLogger
	pages *bufferpool.Manager
}

func newEnv(t *testing.T) *env {
	fs := afero.NewMemMapFs()

	tm, err := transactions.Create(fs, xidPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })

	wal, err := CreateLog(fs, logPath, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })

	pages, err := bufferpool.Create(fs, dbPath, memory)
	require.NoError(t, err)

	_, err = pages.NewPage(page.InitFirst())
	require.NoError(t, err)

	return &env{fs: fs, tm: tm, wal: wal, pages: pages}
}

// reopenPages drops whatever the page cache held, as a crash would.
func (e *env) reopenPages(t *testing.T) *bufferpool.Manager {
	pages, err := bufferpool.Open(e.fs, dbPath, memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pages.Close() })

	return pages
}

func readRaw(t *testing.T, pages *bufferpool.Manager, pgno common.PageNumber, offset uint16, n int) []byte {
	h, err := pages.GetPage(pgno)
	require.NoError(t, err)
	defer h.Release()

	res := make([]byte, n)
	copy(res, h.Value().Data()[offset:])

	return res
}

func TestRecoverRedoAndUndo(t *testing.T) {
	e := newEnv(t)

	pgno, err := e.pages.NewPage(page.InitRegular())
	require.NoError(t, err)
	// never referenced by the log, dropped by recovery
	_, err = e.pages.NewPage(page.InitRegular())
	require.NoError(t, err)

	committed, err := e.tm.Begin()
	require.NoError(t, err)
	active, err := e.tm.Begin()
	require.NoError(t, err)

	rawA := dataitem.Wrap([]byte("aaaa"))
	rawB := dataitem.Wrap([]byte("zz"))
	offA := uint16(page.DataOffset)
	offB := offA + uint16(len(rawA))
	uidA := common.NewUID(pgno, offA)

	require.NoError(t, NewTxnLogChain(e.wal, committed).
		Insert(pgno, offA, rawA).
		Update(uidA, rawA, dataitem.Wrap([]byte("bbbb"))).
		SwitchTransactionID(active).
		Insert(pgno, offB, rawB).
		Update(uidA, dataitem.Wrap([]byte("bbbb")), dataitem.Wrap([]byte("cccc"))).
		Err())
	require.NoError(t, e.tm.Commit(committed))

	// crash: nothing but the log made it to disk
	require.NoError(t, e.pages.Close())
	pages := e.reopenPages(t)

	res, err := Recover(context.Background(), e.tm, e.wal, pages, zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.Equal(t, common.PageNumber(2), res.MaxPage)
	assert.Equal(t, 2, res.Redone)
	assert.Equal(t, 2, res.Undone)
	assert.Equal(t, []common.TxnID{active}, res.Aborted)
	assert.Equal(t, common.PageNumber(2), pages.PageCount())

	assert.True(t, e.tm.IsAborted(active))
	assert.True(t, e.tm.IsCommitted(committed))

	assert.Equal(t, dataitem.Wrap([]byte("bbbb")), readRaw(t, pages, pgno, offA, len(rawA)))

	undoneB := readRaw(t, pages, pgno, offB, len(rawB))
	assert.Equal(t, byte(1), undoneB[0])
	assert.Equal(t, rawB[1:], undoneB[1:])

	h, err := pages.GetPage(pgno)
	require.NoError(t, err)
	assert.Equal(t, offB+uint16(len(rawB)), page.FreeSpaceOffset(h.Value()))
	h.Release()
}

func TestRecoverIsIdempotent(t *testing.T) {
	e := newEnv(t)

	pgno, err := e.pages.NewPage(page.InitRegular())
	require.NoError(t, err)

	xid, err := e.tm.Begin()
	require.NoError(t, err)

	raw := dataitem.Wrap([]byte("data"))
	require.NoError(t, NewTxnLogChain(e.wal, xid).Insert(pgno, page.DataOffset, raw).Err())
	require.NoError(t, e.tm.Commit(xid))
	require.NoError(t, e.pages.Close())

	pages := e.reopenPages(t)
	_, err = Recover(context.Background(), e.tm, e.wal, pages, zap.NewNop().Sugar())
	require.NoError(t, err)

	res, err := Recover(context.Background(), e.tm, e.wal, pages, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Empty(t, res.Aborted)

	assert.Equal(t, raw, readRaw(t, pages, pgno, page.DataOffset, len(raw)))
}

func TestRecoverEmptyLog(t *testing.T) {
	e := newEnv(t)

	for range 3 {
		_, err := e.pages.NewPage(page.InitRegular())
		require.NoError(t, err)
	}
	require.NoError(t, e.pages.Close())

	pages := e.reopenPages(t)
	res, err := Recover(context.Background(), e.tm, e.wal, pages, zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.Equal(t, common.PageNumber(1), res.MaxPage)
	assert.Equal(t, common.PageNumber(1), pages.PageCount())
}

func TestRecoverCancelled(t *testing.T) {
	e := newEnv(t)

	pgno, err := e.pages.NewPage(page.InitRegular())
	require.NoError(t, err)

	xid, err := e.tm.Begin()
	require.NoError(t, err)
	require.NoError(t, NewTxnLogChain(e.wal, xid).
		Insert(pgno, page.DataOffset, dataitem.Wrap([]byte("x"))).
		Err())
	require.NoError(t, e.tm.Commit(xid))
	require.NoError(t, e.pages.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Recover(ctx, e.tm, e.wal, e.reopenPages(t), zap.NewNop().Sugar())
	require.ErrorIs(t, err, context.Canceled)
}
