// Package datamanager stores raw records in the data file and keeps them
// recoverable through the write-ahead log.
package datamanager

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/cache"
	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/recovery"
	"github.com/Blackdeer1524/MiniDB/src/storage/dataitem"
	"github.com/Blackdeer1524/MiniDB/src/storage/freespace"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

const maxInsertAttempts = 5

var (
	ErrDataTooLarge = errors.New("data too large")
	ErrDatabaseBusy = errors.New("database is busy")
	ErrNullEntry    = errors.New("null entry")
)

// Handle keeps a data item in memory until released.
type Handle = cache.Handle[*dataitem.DataItem]

type Manager struct {
	pages *bufferpool.Manager
	wal   *recovery.TxnLogger
	index *freespace.Index
	items *cache.Cache[*dataitem.DataItem]

	// page 1 stays pinned for the whole session
	first *bufferpool.Handle

	log *zap.SugaredLogger
}

var _ dataitem.UpdateLogger = &Manager{}

// Create makes a fresh data file and log next to path.
func Create(
	fs afero.Fs,
	path string,
	memory int64,
	log *zap.SugaredLogger,
) (*Manager, error) {
	pages, err := bufferpool.Create(fs, path+common.DBSuffix, memory)
	if err != nil {
		return nil, err
	}

	wal, err := recovery.CreateLog(fs, path+common.LogSuffix, log)
	if err != nil {
		return nil, multierr.Append(err, pages.Close())
	}

	m := newManager(pages, wal, log)

	pgno, err := pages.NewPage(page.InitFirst())
	if err != nil {
		return nil, multierr.Combine(err, wal.Close(), pages.Close())
	}
	assert.Assert(pgno == 1, "first page got number %d", pgno)

	if m.first, err = pages.GetPage(1); err != nil {
		return nil, multierr.Combine(err, wal.Close(), pages.Close())
	}

	return m, nil
}

// Open opens an existing data file and log. If the previous session did not
// shut down cleanly the log is replayed first.
func Open(
	ctx context.Context,
	fs afero.Fs,
	path string,
	memory int64,
	tm recovery.TxnStatus,
	log *zap.SugaredLogger,
) (*Manager, error) {
	pages, err := bufferpool.Open(fs, path+common.DBSuffix, memory)
	if err != nil {
		return nil, err
	}

	wal, err := recovery.OpenLog(fs, path+common.LogSuffix, log)
	if err != nil {
		return nil, multierr.Append(err, pages.Close())
	}

	m := newManager(pages, wal, log)
	if err := m.open(ctx, tm); err != nil {
		if m.first != nil {
			m.first.Release()
		}

		return nil, multierr.Combine(err, wal.Close(), pages.Close())
	}

	return m, nil
}

func newManager(
	pages *bufferpool.Manager,
	wal *recovery.TxnLogger,
	log *zap.SugaredLogger,
) *Manager {
	m := &Manager{
		pages: pages,
		wal:   wal,
		index: freespace.New(),
		log:   log,
	}
	m.items = cache.New[*dataitem.DataItem]("dataitems", 0, itemBackend{m})

	return m
}

func (m *Manager) open(ctx context.Context, tm recovery.TxnStatus) error {
	first, err := m.pages.GetPage(1)
	if err != nil {
		return err
	}

	if !page.CheckStamps(first.Value()) {
		first.Release()

		m.log.Warn("database was not closed cleanly")
		if _, err := recovery.Recover(ctx, tm, m.wal, m.pages, m.log); err != nil {
			return errors.Wrap(err, "recover")
		}

		if first, err = m.pages.GetPage(1); err != nil {
			return err
		}
	}
	m.first = first

	if err := m.fillPageIndex(); err != nil {
		return err
	}

	page.SetOpenStamp(first.Value())

	return m.pages.FlushPage(first.Value())
}

func (m *Manager) fillPageIndex() error {
	count := m.pages.PageCount()
	for pgno := common.PageNumber(2); pgno <= count; pgno++ {
		h, err := m.pages.GetPage(pgno)
		if err != nil {
			return err
		}

		m.index.Add(pgno, page.FreeSpace(h.Value()))
		h.Release()
	}

	return nil
}

// Read returns the live item at uid. Rolled back items are ErrNullEntry.
func (m *Manager) Read(uid common.UID) (*Handle, error) {
	h, err := m.items.Acquire(uint64(uid))
	if err != nil {
		return nil, err
	}

	if !h.Value().IsValid() {
		h.Release()
		return nil, errors.Wrap(ErrNullEntry, uid.String())
	}

	return h, nil
}

// Insert stores data on behalf of xid. The insert is logged before the page
// is touched.
func (m *Manager) Insert(xid common.TxnID, data []byte) (common.UID, error) {
	if len(data) > dataitem.MaxDataSize {
		return 0, errors.Wrapf(ErrDataTooLarge, "%d bytes", len(data))
	}

	raw := dataitem.Wrap(data)

	var info freespace.PageInfo
	for attempt := 0; ; attempt++ {
		selected := m.index.Select(len(raw))
		if v, ok := selected.Get(); ok {
			info = v
			break
		}

		if attempt == maxInsertAttempts {
			return 0, ErrDatabaseBusy
		}

		pgno, err := m.pages.NewPage(page.InitRegular())
		if err != nil {
			return 0, err
		}
		m.index.Add(pgno, page.MaxFreeSpace)
	}

	h, err := m.pages.GetPage(info.Number)
	if err != nil {
		m.index.Add(info.Number, info.FreeSpace)
		return 0, err
	}

	p := h.Value()
	defer func() {
		m.index.Add(info.Number, page.FreeSpace(p))
		h.Release()
	}()

	// nothing is logged for a record the page can't take
	if free := page.FreeSpace(p); free < len(raw) {
		return 0, errors.Wrapf(
			ErrDatabaseBusy,
			"page %d has %d bytes free, need %d",
			info.Number,
			free,
			len(raw),
		)
	}

	offset := page.FreeSpaceOffset(p)

	err = recovery.NewTxnLogChain(m.wal, xid).
		Insert(info.Number, offset, raw).
		Err()
	if err != nil {
		return 0, err
	}

	inserted := page.Insert(p, raw)
	assert.Assert(
		inserted.IsSome() && inserted.Unwrap() == offset,
		"page %d changed under its owner",
		info.Number,
	)

	return common.NewUID(info.Number, offset), nil
}

func (m *Manager) LogUpdate(
	xid common.TxnID,
	uid common.UID,
	oldRaw, newRaw []byte,
) error {
	return recovery.NewTxnLogChain(m.wal, xid).
		Update(uid, oldRaw, newRaw).
		Err()
}

type Stats struct {
	Pages       common.PageNumber
	CachedPages int
	CachedItems int
	FreePages   int
	LogSize     int64
}

func (m *Manager) Stats() Stats {
	return Stats{
		Pages:       m.pages.PageCount(),
		CachedPages: m.pages.CachedPages(),
		CachedItems: m.items.Len(),
		FreePages:   m.index.Len(),
		LogSize:     m.wal.Size(),
	}
}

// Close flushes everything and stamps page 1 as cleanly closed.
func (m *Manager) Close() error {
	m.items.Close()

	err := m.wal.Close()

	page.SetCloseStamp(m.first.Value())
	err = multierr.Append(err, m.pages.FlushPage(m.first.Value()))
	m.first.Release()

	return multierr.Append(err, m.pages.Close())
}

type itemBackend struct {
	m *Manager
}

func (b itemBackend) Fetch(key uint64) (*dataitem.DataItem, error) {
	uid := common.UID(key)
	if uid.PageNumber() == 1 {
		return nil, errors.Wrap(ErrNullEntry, uid.String())
	}

	h, err := b.m.pages.GetPage(uid.PageNumber())
	if errors.Is(err, bufferpool.ErrNoSuchPage) {
		return nil, errors.Wrap(ErrNullEntry, uid.String())
	} else if err != nil {
		return nil, err
	}

	if !dataitem.Within(h.Value(), uid.Offset()) {
		h.Release()
		return nil, errors.Wrap(ErrNullEntry, uid.String())
	}

	return dataitem.Parse(h, uid.Offset(), b.m), nil
}

func (b itemBackend) Evict(_ uint64, item *dataitem.DataItem) {
	item.Close()
}
