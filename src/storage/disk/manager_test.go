package disk

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

func newManager(t testing.TB) *Manager {
	file, err := common.CreateFile(afero.NewMemMapFs(), "/db/test.db")
	require.NoError(t, err)

	m := New(file)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestWriteReadPage(t *testing.T) {
	m := newManager(t)

	second := bytes.Repeat([]byte{2}, page.Size)
	first := bytes.Repeat([]byte{1}, page.Size)

	require.NoError(t, m.WritePage(2, second))
	require.NoError(t, m.WritePage(1, first))

	n, err := m.PageCount()
	require.NoError(t, err)
	assert.Equal(t, common.PageNumber(2), n)

	got, err := m.ReadPage(1)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = m.ReadPage(2)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	got, err = m.ReadPage(3)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, page.Size), got)
}

func TestWriteWrongSize(t *testing.T) {
	m := newManager(t)
	require.Error(t, m.WritePage(1, []byte{1, 2, 3}))
}

func TestTruncate(t *testing.T) {
	m := newManager(t)

	for pgno := range common.PageNumber(4) {
		require.NoError(t, m.WritePage(pgno+1, make([]byte, page.Size)))
	}

	require.NoError(t, m.Truncate(2))

	n, err := m.PageCount()
	require.NoError(t, err)
	assert.Equal(t, common.PageNumber(2), n)
}

func BenchmarkWritePage(b *testing.B) {
	m := newManager(b)
	data := make([]byte, page.Size)

	b.ResetTimer()
	for i := range b.N {
		require.NoError(b, m.WritePage(common.PageNumber(i%64+1), data))
	}
}
