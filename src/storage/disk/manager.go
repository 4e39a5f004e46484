// Package disk moves whole pages between memory and the data file.
package disk

import (
	"io"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

type Manager struct {
	file afero.File

	// WriteAt/ReadAt are positional, the lock only orders them against
	// Truncate
	mu sync.RWMutex
}

func New(file afero.File) *Manager {
	return &Manager{file: file}
}

func pageOffset(pgno common.PageNumber) int64 {
	return int64(pgno-1) * page.Size
}

// ReadPage reads page pgno. Bytes past the end of the file read as zeroes.
func (m *Manager) ReadPage(pgno common.PageNumber) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data := make([]byte, page.Size)

	_, err := m.file.ReadAt(data, pageOffset(pgno))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "read page %d", pgno)
	}

	return data, nil
}

// WritePage writes and syncs page pgno.
func (m *Manager) WritePage(pgno common.PageNumber, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(data) != page.Size {
		return errors.Errorf("page %d image has %d bytes", pgno, len(data))
	}

	if _, err := m.file.WriteAt(data, pageOffset(pgno)); err != nil {
		return errors.Wrapf(err, "write page %d", pgno)
	}

	if err := m.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync page %d", pgno)
	}

	return nil
}

// PageCount derives the number of pages from the file length.
func (m *Manager) PageCount() (common.PageNumber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, err := m.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat data file")
	}

	return common.PageNumber(info.Size() / page.Size), nil //nolint:gosec
}

// Truncate cuts the file down to exactly pages pages.
func (m *Manager) Truncate(pages common.PageNumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.file.Truncate(int64(pages) * page.Size); err != nil {
		return errors.Wrapf(err, "truncate to %d pages", pages)
	}

	return nil
}

func (m *Manager) Close() error {
	return m.file.Close()
}
