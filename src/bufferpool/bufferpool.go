// Package bufferpool caches pages of the data file in memory.
//
// Pages live in a cache.Cache keyed by page number. A page is written back
// when its last handle is released and it is dirty, or on an explicit
// FlushPage.
package bufferpool

import (
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/MiniDB/src/cache"
	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/disk"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

const MinPages = 10

var (
	ErrMemoryTooSmall = errors.New("memory budget is too small")
	ErrNoSuchPage     = errors.New("no such page")
)

type DiskManager interface {
	ReadPage(pgno common.PageNumber) ([]byte, error)
	WritePage(pgno common.PageNumber, data []byte) error
	PageCount() (common.PageNumber, error)
	Truncate(pages common.PageNumber) error
	Close() error
}

var _ DiskManager = &disk.Manager{}

// Handle pins a page in memory until released.
type Handle = cache.Handle[*page.Page]

type Manager struct {
	disk  DiskManager
	cache *cache.Cache[*page.Page]

	pages atomic.Uint32
}

// Create makes a new data file at path.
func Create(fs afero.Fs, path string, memory int64) (*Manager, error) {
	if err := checkMemory(memory); err != nil {
		return nil, err
	}

	file, err := common.CreateFile(fs, path)
	if err != nil {
		return nil, err
	}

	return New(disk.New(file), memory)
}

// Open opens an existing data file at path.
func Open(fs afero.Fs, path string, memory int64) (*Manager, error) {
	if err := checkMemory(memory); err != nil {
		return nil, err
	}

	file, err := common.OpenFile(fs, path)
	if err != nil {
		return nil, err
	}

	return New(disk.New(file), memory)
}

func checkMemory(memory int64) error {
	if memory/page.Size < MinPages {
		return errors.Wrapf(
			ErrMemoryTooSmall,
			"%d bytes hold fewer than %d pages",
			memory,
			MinPages,
		)
	}

	return nil
}

func New(dm DiskManager, memory int64) (*Manager, error) {
	if err := checkMemory(memory); err != nil {
		return nil, err
	}

	count, err := dm.PageCount()
	if err != nil {
		return nil, err
	}

	m := &Manager{disk: dm}
	m.pages.Store(uint32(count))
	m.cache = cache.New[*page.Page](
		"pages",
		int(memory/page.Size),
		backend{disk: dm},
	)

	return m, nil
}

// NewPage appends a page with the given image and writes it through.
func (m *Manager) NewPage(init []byte) (common.PageNumber, error) {
	pgno := common.PageNumber(m.pages.Add(1))
	if err := m.disk.WritePage(pgno, init); err != nil {
		return 0, errors.Wrapf(err, "allocate page %d", pgno)
	}

	return pgno, nil
}

func (m *Manager) GetPage(pgno common.PageNumber) (*Handle, error) {
	if pgno == 0 || pgno > m.PageCount() {
		return nil, errors.Wrapf(ErrNoSuchPage, "page %d", pgno)
	}

	h, err := m.cache.Acquire(uint64(pgno))
	if err != nil {
		return nil, errors.Wrapf(err, "get page %d", pgno)
	}

	return h, nil
}

// FlushPage writes the page to disk regardless of its dirty flag.
func (m *Manager) FlushPage(p *page.Page) error {
	return flush(m.disk, p)
}

func flush(dm DiskManager, p *page.Page) error {
	p.RLock()
	data := make([]byte, page.Size)
	copy(data, p.Data())
	p.RUnlock()

	if err := dm.WritePage(p.Number(), data); err != nil {
		return err
	}

	p.SetDirty(false)

	return nil
}

// TruncateByPageNumber drops every page after maxPage.
func (m *Manager) TruncateByPageNumber(maxPage common.PageNumber) error {
	if err := m.disk.Truncate(maxPage); err != nil {
		return err
	}

	m.pages.Store(uint32(maxPage))

	return nil
}

func (m *Manager) PageCount() common.PageNumber {
	return common.PageNumber(m.pages.Load())
}

// CachedPages reports how many pages are held in memory.
func (m *Manager) CachedPages() int {
	return m.cache.Len()
}

// Close writes back every cached dirty page and closes the data file.
func (m *Manager) Close() error {
	m.cache.Close()
	return m.disk.Close()
}

type backend struct {
	disk DiskManager
}

func (b backend) Fetch(key uint64) (*page.Page, error) {
	pgno := common.PageNumber(key) //nolint:gosec

	data, err := b.disk.ReadPage(pgno)
	if err != nil {
		return nil, err
	}

	return page.New(pgno, data), nil
}

// Evict writes dirty pages back. Losing a write here would leave the data
// file behind the log with no way to tell, so failure is fatal.
func (b backend) Evict(_ uint64, p *page.Page) {
	if !p.IsDirty() {
		return
	}

	assert.NoErrorf(flush(b.disk, p), "write back page %d", p.Number())
}
