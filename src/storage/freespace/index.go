// Package freespace tracks how much room is left on each regular page.
//
// Pages are bucketed by free space in steps of intervalSize. A page taken by
// Select is owned by the caller until it is added back, so two inserters never
// land on the same page at once.
package freespace

import (
	"sync"

	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/pkg/optional"
	"github.com/Blackdeer1524/MiniDB/src/storage/datastructures/inmemory"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

const (
	intervalsNumber = 40
	intervalSize    = page.Size / intervalsNumber
)

type PageInfo struct {
	Number    common.PageNumber
	FreeSpace int
}

type Index struct {
	mu      sync.Mutex
	buckets [intervalsNumber + 1]*inmemory.Queue[PageInfo]
}

func New() *Index {
	idx := &Index{}
	for i := range idx.buckets {
		idx.buckets[i] = inmemory.NewQueue[PageInfo]()
	}

	return idx
}

func (idx *Index) Add(pgno common.PageNumber, freeSpace int) {
	assert.Assert(
		freeSpace >= 0 && freeSpace <= page.MaxFreeSpace,
		"page %d reports %d bytes free",
		pgno,
		freeSpace,
	)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.buckets[freeSpace/intervalSize].Enqueue(PageInfo{
		Number:    pgno,
		FreeSpace: freeSpace,
	})
}

// Select removes and returns a page guaranteed to have at least required
// bytes free. Buckets are searched starting one above the one required falls
// into. The top bucket has no bucket above it, so there every page is checked
// against required.
func (idx *Index) Select(required int) optional.Optional[PageInfo] {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket := required / intervalSize
	if bucket < intervalsNumber {
		bucket++
	}

	fits := func(info PageInfo) bool { return info.FreeSpace >= required }

	for ; bucket <= intervalsNumber; bucket++ {
		if info, ok := idx.buckets[bucket].DequeueFunc(fits); ok {
			return optional.Some(info)
		}
	}

	return optional.None[PageInfo]()
}

// Len reports how many pages are currently available for selection.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := 0
	for _, b := range idx.buckets {
		n += b.Len()
	}

	return n
}
