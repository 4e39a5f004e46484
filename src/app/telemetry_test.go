package app

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Blackdeer1524/MiniDB/src/engine"
	"github.com/Blackdeer1524/MiniDB/src/mvcc"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

func TestTelemetryCountsEngineEvents(t *testing.T) {
	ctx := context.Background()

	tel := NewTelemetry()
	t.Cleanup(func() { assert.NoError(t, tel.Shutdown(ctx)) })

	db, err := engine.Create(afero.NewMemMapFs(), "/data/minidb", 64*page.Size, nil)
	require.NoError(t, err)

	uid, err := db.Insert(common.SuperTxnID, []byte("contended"))
	require.NoError(t, err)

	t1, err := db.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	t2, err := db.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)

	for range 3 {
		_, ok, err := db.Read(t2, uid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	deleted, err := db.Delete(t2, uid)
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, db.Commit(t2))

	_, err = db.Delete(t1, uid)
	require.ErrorIs(t, err, mvcc.ErrConcurrentUpdate)
	require.NoError(t, db.Abort(t1))
	require.NoError(t, db.Close())

	counters, err := tel.Counters(ctx)
	require.NoError(t, err)
	assert.Positive(t, counters["minidb.cache.hits"])
	assert.Positive(t, counters["minidb.cache.misses"])
	assert.Equal(t, int64(1), counters["minidb.mvcc.conflicts"])
	assert.Zero(t, counters["minidb.txns.deadlocks"])
}

func TestTelemetryReport(t *testing.T) {
	ctx := context.Background()

	tel := NewTelemetry()
	t.Cleanup(func() { assert.NoError(t, tel.Shutdown(ctx)) })

	db, err := engine.Create(afero.NewMemMapFs(), "/data/minidb", 64*page.Size, nil)
	require.NoError(t, err)
	_, err = db.Insert(common.SuperTxnID, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, tel.Report(ctx, zap.New(core).Sugar()))

	entries := logs.FilterMessage("counters").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap(), "minidb.cache.misses")
}
