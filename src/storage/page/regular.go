package page

import (
	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/optional"
	"github.com/Blackdeer1524/MiniDB/src/pkg/utils"
)

// Every page except the first starts with a 2-byte free space offset (FSO).
// Records are appended at the FSO and never move.
const (
	fsoOffset    = 0
	fsoSize      = 2
	DataOffset   = fsoOffset + fsoSize
	MaxFreeSpace = Size - DataOffset
)

// InitRegular returns the image of an empty regular page.
func InitRegular() []byte {
	data := make([]byte, Size)
	setFSO(data, DataOffset)
	return data
}

func setFSO(data []byte, fso uint16) {
	utils.PutUint16(data[fsoOffset:fsoOffset+fsoSize], fso)
}

func getFSO(data []byte) uint16 {
	return utils.ParseUint16(data[fsoOffset : fsoOffset+fsoSize])
}

func FreeSpaceOffset(p *Page) uint16 {
	p.RLock()
	defer p.RUnlock()

	return getFSO(p.data)
}

func FreeSpace(p *Page) int {
	return Size - int(FreeSpaceOffset(p))
}

// Insert appends raw at the free space offset and returns where it landed.
func Insert(p *Page, raw []byte) optional.Optional[uint16] {
	p.Lock()
	defer p.Unlock()

	fso := getFSO(p.data)
	if int(fso)+len(raw) > Size {
		return optional.None[uint16]()
	}

	p.SetDirty(true)
	copy(p.data[fso:], raw)
	setFSO(p.data, fso+uint16(len(raw))) //nolint:gosec

	return optional.Some(fso)
}

// RecoverInsert replays an insert at a fixed offset. The free space offset
// only grows, so replaying an older record never hides a newer one.
func RecoverInsert(p *Page, raw []byte, offset uint16) {
	p.Lock()
	defer p.Unlock()

	assert.Assert(
		int(offset)+len(raw) <= Size,
		"record of %d bytes at %d overflows page %d",
		len(raw),
		offset,
		p.number,
	)

	p.SetDirty(true)
	copy(p.data[offset:], raw)

	end := offset + uint16(len(raw)) //nolint:gosec
	if getFSO(p.data) < end {
		setFSO(p.data, end)
	}
}

// RecoverUpdate overwrites the bytes at offset in place.
func RecoverUpdate(p *Page, raw []byte, offset uint16) {
	p.Lock()
	defer p.Unlock()

	assert.Assert(
		int(offset)+len(raw) <= Size,
		"record of %d bytes at %d overflows page %d",
		len(raw),
		offset,
		p.number,
	)

	p.SetDirty(true)
	copy(p.data[offset:], raw)
}
