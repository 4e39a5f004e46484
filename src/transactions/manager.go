// Package transactions persists the lifecycle state of every transaction in
// the .xid file.
package transactions

import (
	"io"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/pkg/utils"
)

var ErrBadXIDFile = errors.New("bad xid file")

// StatusChecker answers commit-visibility questions.
type StatusChecker interface {
	IsActive(xid common.TxnID) bool
	IsCommitted(xid common.TxnID) bool
	IsAborted(xid common.TxnID) bool
}

type Manager struct {
	file afero.File

	// guards counter and serializes writes to the file
	mu      sync.Mutex
	counter common.TxnID
}

var _ StatusChecker = &Manager{}

// Create makes a new .xid file at path with a zero counter.
func Create(fs afero.Fs, path string) (*Manager, error) {
	file, err := common.CreateFile(fs, path)
	if err != nil {
		return nil, err
	}

	if _, err := file.WriteAt(make([]byte, headerLength), 0); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "write xid header")
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "sync xid header")
	}

	return &Manager{file: file}, nil
}

// Open opens an existing .xid file and validates that its length matches
// the persisted counter.
func Open(fs afero.Fs, path string) (*Manager, error) {
	file, err := common.OpenFile(fs, path)
	if err != nil {
		return nil, err
	}

	m := &Manager{file: file}
	if err := m.checkCounter(); err != nil {
		_ = file.Close()
		return nil, err
	}

	return m, nil
}

func (m *Manager) checkCounter() error {
	info, err := m.file.Stat()
	if err != nil {
		return errors.Wrapf(ErrBadXIDFile, "stat: %v", err)
	}

	if info.Size() < headerLength {
		return errors.Wrapf(ErrBadXIDFile, "file is %d bytes long", info.Size())
	}

	header := make([]byte, headerLength)
	if _, err := m.file.ReadAt(header, 0); err != nil {
		return errors.Wrapf(ErrBadXIDFile, "read header: %v", err)
	}

	m.counter = common.TxnID(utils.ParseUint64(header))

	if expected := statusOffset(m.counter + 1); expected != info.Size() {
		return errors.Wrapf(
			ErrBadXIDFile,
			"counter %d implies %d bytes, file has %d",
			m.counter,
			expected,
			info.Size(),
		)
	}

	return nil
}

// Begin allocates the next transaction id and durably marks it active
// before the counter is advanced, so a crash never leaves an issued id
// without a status.
func (m *Manager) Begin() (common.TxnID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	xid := m.counter + 1
	if err := m.writeStatus(xid, StatusActive); err != nil {
		return 0, err
	}

	if _, err := m.file.WriteAt(utils.Uint64ToBytes(uint64(xid)), 0); err != nil {
		return 0, errors.Wrap(err, "write xid counter")
	}

	if err := m.file.Sync(); err != nil {
		return 0, errors.Wrap(err, "sync xid counter")
	}

	m.counter = xid

	return xid, nil
}

func (m *Manager) Commit(xid common.TxnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeStatus(xid, StatusCommitted)
}

func (m *Manager) Abort(xid common.TxnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeStatus(xid, StatusAborted)
}

func (m *Manager) writeStatus(xid common.TxnID, status Status) error {
	assert.Assert(xid != common.SuperTxnID, "the super transaction has no status record")

	if _, err := m.file.WriteAt([]byte{byte(status)}, statusOffset(xid)); err != nil {
		return errors.Wrapf(err, "write status of %d", xid)
	}

	if err := m.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync status of %d", xid)
	}

	return nil
}

// Status reads the persisted state of xid. Reading a status is part of
// every visibility check, so an I/O failure here is fatal.
func (m *Manager) Status(xid common.TxnID) Status {
	if xid == common.SuperTxnID {
		return StatusCommitted
	}

	buf := make([]byte, fieldSize)
	_, err := m.file.ReadAt(buf, statusOffset(xid))
	if errors.Is(err, io.EOF) {
		assert.Assert(false, "transaction %d was never started", xid)
	}
	assert.NoErrorf(err, "read status of %d", xid)

	return Status(buf[0])
}

func (m *Manager) IsActive(xid common.TxnID) bool {
	if xid == common.SuperTxnID {
		return false
	}

	return m.Status(xid) == StatusActive
}

func (m *Manager) IsCommitted(xid common.TxnID) bool {
	if xid == common.SuperTxnID {
		return true
	}

	return m.Status(xid) == StatusCommitted
}

func (m *Manager) IsAborted(xid common.TxnID) bool {
	if xid == common.SuperTxnID {
		return false
	}

	return m.Status(xid) == StatusAborted
}

// LastID returns the most recently issued transaction id.
func (m *Manager) LastID() common.TxnID {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counter
}

func (m *Manager) Close() error {
	return m.file.Close()
}
