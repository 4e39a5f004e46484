package dataitem

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

type loggedUpdate struct {
	xid    common.TxnID
	uid    common.UID
	oldRaw []byte
	newRaw []byte
}

type recordingLogger struct {
	updates []loggedUpdate
	err     error
}

func (l *recordingLogger) LogUpdate(
	xid common.TxnID,
	uid common.UID,
	oldRaw, newRaw []byte,
) error {
	if l.err != nil {
		return l.err
	}

	l.updates = append(l.updates, loggedUpdate{
		xid:    xid,
		uid:    uid,
		oldRaw: append([]byte(nil), oldRaw...),
		newRaw: append([]byte(nil), newRaw...),
	})

	return nil
}

func setup(t *testing.T, payload []byte) (*bufferpool.Manager, common.PageNumber, uint16) {
	pool, err := bufferpool.Create(afero.NewMemMapFs(), "/db/test.db", 16*page.Size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	pgno, err := pool.NewPage(page.InitRegular())
	require.NoError(t, err)

	h, err := pool.GetPage(pgno)
	require.NoError(t, err)
	defer h.Release()

	offset := page.Insert(h.Value(), Wrap(payload)).Unwrap()

	return pool, pgno, offset
}

func parse(t *testing.T, pool *bufferpool.Manager, pgno common.PageNumber, offset uint16, logger UpdateLogger) *DataItem {
	h, err := pool.GetPage(pgno)
	require.NoError(t, err)

	item := Parse(h, offset, logger)
	t.Cleanup(item.Close)

	return item
}

func TestWrap(t *testing.T) {
	raw := Wrap([]byte("abc"))
	assert.Equal(t, []byte{0, 0, 3, 'a', 'b', 'c'}, raw)

	SetRawInvalid(raw)
	assert.Equal(t, byte(1), raw[0])
}

func TestParse(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("payload"))

	item := parse(t, pool, pgno, offset, &recordingLogger{})

	assert.True(t, item.IsValid())
	assert.Equal(t, []byte("payload"), item.Data())
	assert.Equal(t, common.NewUID(pgno, offset), item.UID())
	assert.Equal(t, Wrap([]byte("payload")), item.Raw())
}

func TestUpdateLogsBothImages(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("aaaa"))

	logger := &recordingLogger{}
	item := parse(t, pool, pgno, offset, logger)

	require.NoError(t, item.Update(7, func(data []byte) error {
		copy(data, "bbbb")
		return nil
	}))

	assert.Equal(t, []byte("bbbb"), item.Data())
	assert.True(t, item.Page().IsDirty())

	require.Len(t, logger.updates, 1)
	assert.Equal(t, common.TxnID(7), logger.updates[0].xid)
	assert.Equal(t, item.UID(), logger.updates[0].uid)
	assert.Equal(t, Wrap([]byte("aaaa")), logger.updates[0].oldRaw)
	assert.Equal(t, Wrap([]byte("bbbb")), logger.updates[0].newRaw)

	// the lock was released
	item.Lock()
	item.Unlock()
}

func TestUpdateRollsBackOnLogFailure(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("aaaa"))

	logErr := errors.New("log unavailable")
	item := parse(t, pool, pgno, offset, &recordingLogger{err: logErr})

	err := item.Update(7, func(data []byte) error {
		copy(data, "bbbb")
		return nil
	})
	require.ErrorIs(t, err, logErr)

	assert.Equal(t, []byte("aaaa"), item.Data())

	item.RLock()
	item.RUnlock()
}

func TestUndoWrite(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("aaaa"))

	logger := &recordingLogger{}
	item := parse(t, pool, pgno, offset, logger)

	item.WritePrepare()
	copy(item.Data(), "cccc")
	item.UndoWrite()

	assert.Equal(t, []byte("aaaa"), item.Data())
	assert.Empty(t, logger.updates)
}

func TestUpdatePanicRestores(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("aaaa"))
	item := parse(t, pool, pgno, offset, &recordingLogger{})

	assert.Panics(t, func() {
		_ = item.Update(1, func(data []byte) error {
			data[0] = 'z'
			panic("boom")
		})
	})

	assert.Equal(t, []byte("aaaa"), item.Data())
}

func TestUpdateCallbackError(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("aaaa"))

	logger := &recordingLogger{}
	item := parse(t, pool, pgno, offset, logger)

	fnErr := errors.New("rejected")
	err := item.Update(1, func(data []byte) error {
		data[0] = 'z'
		return fnErr
	})
	require.ErrorIs(t, err, fnErr)

	assert.Equal(t, []byte("aaaa"), item.Data())
	assert.Empty(t, logger.updates)
}

func TestWithin(t *testing.T) {
	pool, pgno, offset := setup(t, []byte("payload"))

	h, err := pool.GetPage(pgno)
	require.NoError(t, err)
	defer h.Release()

	p := h.Value()
	end := offset + uint16(len(Wrap([]byte("payload"))))

	assert.True(t, Within(p, offset))

	for _, bad := range []uint16{0, 1, end, offset + 3, 1000, page.Size - 1} {
		assert.False(t, Within(p, bad), "offset %d", bad)
	}
}
