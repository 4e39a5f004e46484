package page

import (
	"bytes"

	"github.com/google/uuid"
)

// Page 1 carries a pair of stamps used to detect an unclean shutdown: on
// open a fresh random stamp is written at stampOffset, on a clean close it
// is copied right after itself. Matching stamps mean the previous session
// shut down cleanly.
const (
	stampOffset = 100
	stampLength = 8
)

func InitFirst() []byte {
	data := make([]byte, Size)
	putOpenStamp(data)
	return data
}

func SetOpenStamp(p *Page) {
	p.Lock()
	defer p.Unlock()

	p.SetDirty(true)
	putOpenStamp(p.data)
}

func putOpenStamp(data []byte) {
	id := uuid.New()
	copy(data[stampOffset:stampOffset+stampLength], id[:stampLength])
}

func SetCloseStamp(p *Page) {
	p.Lock()
	defer p.Unlock()

	p.SetDirty(true)
	copy(
		p.data[stampOffset+stampLength:stampOffset+2*stampLength],
		p.data[stampOffset:stampOffset+stampLength],
	)
}

// CheckStamps reports whether the database was closed cleanly.
func CheckStamps(p *Page) bool {
	p.RLock()
	defer p.RUnlock()

	return bytes.Equal(
		p.data[stampOffset:stampOffset+stampLength],
		p.data[stampOffset+stampLength:stampOffset+2*stampLength],
	)
}
