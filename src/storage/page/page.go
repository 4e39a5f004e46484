package page

import (
	"sync"
	"sync/atomic"

	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

const Size = 1 << 13

// Page is an in-memory copy of one fixed-size block of the data file.
type Page struct {
	latch sync.RWMutex

	number common.PageNumber
	data   []byte
	dirty  atomic.Bool
}

func New(number common.PageNumber, data []byte) *Page {
	assert.Assert(len(data) == Size, "page %d has %d bytes", number, len(data))

	return &Page{
		number: number,
		data:   data,
	}
}

func (p *Page) Number() common.PageNumber {
	return p.number
}

// Data exposes the page buffer itself. Callers hold the latch while mutating
// it and mark the page dirty.
func (p *Page) Data() []byte {
	return p.data
}

func (p *Page) SetDirty(val bool) {
	p.dirty.Store(val)
}

func (p *Page) IsDirty() bool {
	return p.dirty.Load()
}

func (p *Page) Lock() {
	p.latch.Lock()
}

func (p *Page) Unlock() {
	p.latch.Unlock()
}

func (p *Page) RLock() {
	p.latch.RLock()
}

func (p *Page) RUnlock() {
	p.latch.RUnlock()
}
