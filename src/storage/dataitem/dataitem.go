// Package dataitem implements the physical record stored on regular pages.
//
// Layout: [valid:1][size:2][data:size]. A zero valid byte means the item is
// live; anything else means it was rolled back.
package dataitem

import (
	"sync"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/pkg/utils"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

const (
	validOffset = 0
	sizeOffset  = 1
	DataOffset  = 3

	flagValid   byte = 0
	flagInvalid byte = 1

	MaxDataSize = page.MaxFreeSpace - DataOffset
)

// UpdateLogger durably records an in-place change before it is released to
// other writers.
type UpdateLogger interface {
	LogUpdate(xid common.TxnID, uid common.UID, oldRaw, newRaw []byte) error
}

type DataItem struct {
	mu sync.RWMutex

	uid common.UID
	// raw aliases the page buffer
	raw    []byte
	oldRaw []byte

	page   *bufferpool.Handle
	logger UpdateLogger
}

// Wrap builds the raw image of a live item holding data.
func Wrap(data []byte) []byte {
	assert.Assert(len(data) <= MaxDataSize, "data item of %d bytes", len(data))

	raw := make([]byte, DataOffset+len(data))
	raw[validOffset] = flagValid
	utils.PutUint16(raw[sizeOffset:DataOffset], uint16(len(data))) //nolint:gosec
	copy(raw[DataOffset:], data)

	return raw
}

// SetRawInvalid flags a raw item image as rolled back.
func SetRawInvalid(raw []byte) {
	raw[validOffset] = flagInvalid
}

// Within reports whether a whole item starting at offset lies in the used
// part of the regular page p.
func Within(p *page.Page, offset uint16) bool {
	fso := int(page.FreeSpaceOffset(p))
	start := int(offset)
	if start < page.DataOffset || start+DataOffset > fso {
		return false
	}

	p.RLock()
	defer p.RUnlock()

	size := utils.ParseUint16(p.Data()[start+sizeOffset : start+DataOffset])

	return start+DataOffset+int(size) <= fso
}

// Parse takes over the page handle and exposes the item at offset. The
// handle is released by Close.
func Parse(h *bufferpool.Handle, offset uint16, logger UpdateLogger) *DataItem {
	p := h.Value()
	data := p.Data()

	size := utils.ParseUint16(data[int(offset)+sizeOffset : int(offset)+DataOffset])
	end := int(offset) + DataOffset + int(size)
	assert.Assert(
		end <= page.Size,
		"item at %d:%d overflows the page",
		p.Number(),
		offset,
	)

	return &DataItem{
		uid:    common.NewUID(p.Number(), offset),
		raw:    data[offset:end:end],
		oldRaw: make([]byte, end-int(offset)),
		page:   h,
		logger: logger,
	}
}

func (d *DataItem) UID() common.UID {
	return d.uid
}

func (d *DataItem) IsValid() bool {
	return d.raw[validOffset] == flagValid
}

// Data is the payload slice itself, not a copy. Hold the read lock while
// reading it.
func (d *DataItem) Data() []byte {
	return d.raw[DataOffset:]
}

// Raw returns a copy of the whole item image.
func (d *DataItem) Raw() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	res := make([]byte, len(d.raw))
	copy(res, d.raw)

	return res
}

func (d *DataItem) Page() *page.Page {
	return d.page.Value()
}

// WritePrepare takes the write lock and snapshots the item so the change can
// be undone or logged.
func (d *DataItem) WritePrepare() {
	d.mu.Lock()
	d.page.Value().SetDirty(true)
	copy(d.oldRaw, d.raw)
}

// UndoWrite restores the snapshot and drops the write lock.
func (d *DataItem) UndoWrite() {
	copy(d.raw, d.oldRaw)
	d.mu.Unlock()
}

// WriteAfter logs the change made since WritePrepare and drops the write
// lock. If logging fails the change is rolled back.
func (d *DataItem) WriteAfter(xid common.TxnID) error {
	newRaw := make([]byte, len(d.raw))
	copy(newRaw, d.raw)

	if err := d.logger.LogUpdate(xid, d.uid, d.oldRaw, newRaw); err != nil {
		d.UndoWrite()
		return err
	}

	d.mu.Unlock()

	return nil
}

// Update runs fn on the payload between WritePrepare and WriteAfter. If fn
// fails or panics the item is left as it was.
func (d *DataItem) Update(xid common.TxnID, fn func(data []byte) error) error {
	d.WritePrepare()

	done := false
	defer func() {
		if !done {
			d.UndoWrite()
		}
	}()

	if err := fn(d.raw[DataOffset:]); err != nil {
		return err
	}
	done = true

	return d.WriteAfter(xid)
}

func (d *DataItem) Lock()    { d.mu.Lock() }
func (d *DataItem) Unlock()  { d.mu.Unlock() }
func (d *DataItem) RLock()   { d.mu.RLock() }
func (d *DataItem) RUnlock() { d.mu.RUnlock() }

// Close releases the page the item lives on.
func (d *DataItem) Close() {
	d.page.Release()
}
