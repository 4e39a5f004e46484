package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

type MockDiskManager struct {
	mock.Mock
}

func (m *MockDiskManager) ReadPage(pgno common.PageNumber) ([]byte, error) {
	args := m.Called(pgno)

	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockDiskManager) WritePage(pgno common.PageNumber, data []byte) error {
	args := m.Called(pgno, data)
	return args.Error(0)
}

func (m *MockDiskManager) PageCount() (common.PageNumber, error) {
	args := m.Called()
	return args.Get(0).(common.PageNumber), args.Error(1)
}

func (m *MockDiskManager) Truncate(pages common.PageNumber) error {
	args := m.Called(pages)
	return args.Error(0)
}

func (m *MockDiskManager) Close() error {
	args := m.Called()
	return args.Error(0)
}
