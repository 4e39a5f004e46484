package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/mvcc"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

const (
	path   = "/data/minidb"
	memory = 64 * page.Size
)

func create(t *testing.T, fs afero.Fs) *Engine {
	e, err := Create(fs, path, memory, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return e
}

func open(t *testing.T, fs afero.Fs) *Engine {
	e, err := Open(context.Background(), fs, path, memory, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return e
}

func TestCreateOpenErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Open(context.Background(), fs, path, memory, nil)
	require.ErrorIs(t, err, common.ErrFileNotFound)

	e := create(t, fs)
	require.NoError(t, e.Close())

	_, err = Create(fs, path, memory, nil)
	require.ErrorIs(t, err, common.ErrFileExists)

	_, err = Open(context.Background(), fs, path, page.Size, nil)
	require.ErrorIs(t, err, bufferpool.ErrMemoryTooSmall)
}

func TestCommittedDataSurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := create(t, fs)

	xid, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)

	uids := make([]common.UID, 0, 100)
	for i := range 100 {
		uid, err := e.Insert(xid, []byte(fmt.Sprintf("row-%d", i)))
		require.NoError(t, err)
		uids = append(uids, uid)
	}
	require.NoError(t, e.Commit(xid))
	require.NoError(t, e.Close())

	e = open(t, fs)
	defer e.Close()

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)

	for i, uid := range uids {
		data, ok, err := e.Read(reader, uid)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte(fmt.Sprintf("row-%d", i)), data)
	}
}

func TestCrashRecovery(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := create(t, fs)

	for range 4 {
		xid, err := e.Begin(mvcc.ReadCommitted)
		require.NoError(t, err)
		require.NoError(t, e.Commit(xid))
	}

	xid5, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	require.Equal(t, common.TxnID(5), xid5)

	r, err := e.Insert(xid5, []byte("R"))
	require.NoError(t, err)

	// crash: no Close
	e = open(t, fs)

	assert.True(t, e.tm.IsAborted(xid5))

	xid6, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	require.Equal(t, common.TxnID(6), xid6)

	s, err := e.Insert(xid6, []byte("S"))
	require.NoError(t, err)
	require.NoError(t, e.Commit(xid6))

	// crash after commit
	e = open(t, fs)
	defer e.Close()

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)

	_, ok, err := e.Read(reader, r)
	require.NoError(t, err)
	assert.False(t, ok)

	data, ok, err := e.Read(reader, s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("S"), data)
}

func TestNearlyFullPageInsertSurvivesCrash(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := create(t, fs)

	xid, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)

	small, err := e.Insert(xid, []byte{1})
	require.NoError(t, err)

	big := bytes.Repeat([]byte{'x'}, page.MaxFreeSpace-19)
	bigUID, err := e.Insert(xid, big)
	require.NoError(t, err)
	require.NoError(t, e.Commit(xid))

	// crash
	e = open(t, fs)
	defer e.Close()

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)

	data, ok, err := e.Read(reader, small)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, data)

	data, ok, err = e.Read(reader, bigUID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, data)
}

func TestMissingRecordIsNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := create(t, fs)
	defer e.Close()

	xid, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)

	uid, err := e.Insert(xid, []byte("row"))
	require.NoError(t, err)
	pg := uid.PageNumber()

	for _, bad := range []common.UID{
		common.NewUID(pg, 1000),
		common.NewUID(pg, page.Size-1),
		common.NewUID(pg, 0),
		common.NewUID(1, 100),
		common.NewUID(pg+5, page.DataOffset),
	} {
		_, ok, err := e.Read(xid, bad)
		require.NoError(t, err, "uid %s", bad)
		assert.False(t, ok, "uid %s", bad)

		ok, err = e.Delete(xid, bad)
		require.NoError(t, err, "uid %s", bad)
		assert.False(t, ok, "uid %s", bad)
	}

	// a record too short to hold a version is not found either
	short, err := e.dm.Insert(xid, []byte("tiny"))
	require.NoError(t, err)

	_, ok, err := e.Read(xid, short)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.Commit(xid))
}

func TestCrashRollsBackDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := create(t, fs)

	setup, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	uid, err := e.Insert(setup, []byte("keep me"))
	require.NoError(t, err)
	require.NoError(t, e.Commit(setup))

	xid, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	ok, err := e.Delete(xid, uid)
	require.NoError(t, err)
	require.True(t, ok)

	e = open(t, fs)
	defer e.Close()

	reader, err := e.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)

	data, ok, err := e.Read(reader, uid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("keep me"), data)

	// the rolled back delete left the version deletable again
	ok, err = e.Delete(reader, uid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentTransactions(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := create(t, fs)

	const (
		workers = 8
		rows    = 50
	)

	results := make([][]common.UID, workers)
	wg := sync.WaitGroup{}
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			xid, err := e.Begin(mvcc.ReadCommitted)
			if !assert.NoError(t, err) {
				return
			}

			for i := range rows {
				uid, err := e.Insert(xid, []byte(fmt.Sprintf("%d-%d", w, i)))
				if !assert.NoError(t, err) {
					return
				}
				results[w] = append(results[w], uid)
			}

			assert.NoError(t, e.Commit(xid))
		}()
	}
	wg.Wait()

	stats := e.Stats()
	assert.Equal(t, common.TxnID(workers), stats.LastTxnID)
	assert.Equal(t, 0, stats.ActiveTransactions)
	require.NoError(t, e.Close())

	e = open(t, fs)
	defer e.Close()

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)

	for w, uids := range results {
		require.Len(t, uids, rows)
		for i, uid := range uids {
			data, ok, err := e.Read(reader, uid)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte(fmt.Sprintf("%d-%d", w, i)), data)
		}
	}
}
