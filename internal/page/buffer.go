package page

import (
	"github.com/nettee/pancake/pkg/lrucache"
)

type bufferedPage struct {
	*Page
	pinned bool
	dirty  bool
}

// pageBuffer holds at most capacity pages. Only unpinned pages can be evicted,
// least recently unpinned first.
type pageBuffer struct {
	capacity int
	// pages is a sparse array where index = page number,
	// nil entries are pages not currently buffered
	pages []*bufferedPage
	size  int
	// unpinned pages in the order they were released
	unpinned *lrucache.Cache[uint32]
}

func newPageBuffer(capacity int) *pageBuffer {
	return &pageBuffer{
		capacity: capacity,
		pages:    make([]*bufferedPage, 0, capacity),
		unpinned: lrucache.New[uint32](),
	}
}

func (b *pageBuffer) get(num uint32) (*bufferedPage, bool) {
	if int(num) >= len(b.pages) || b.pages[num] == nil {
		return nil, false
	}
	return b.pages[num], true
}

// putAndPin buffers a page that must not be buffered yet and pins it.
func (b *pageBuffer) putAndPin(aPage *Page) *bufferedPage {
	for len(b.pages) <= int(aPage.Num) {
		b.pages = append(b.pages, nil)
	}

	bp := &bufferedPage{Page: aPage}
	b.pages[aPage.Num] = bp
	b.size += 1
	b.pin(bp)

	return bp
}

// remove drops a page without writing it back.
func (b *pageBuffer) remove(num uint32) {
	if _, ok := b.get(num); !ok {
		return
	}
	b.pages[num] = nil
	b.size -= 1
	b.unpinned.Remove(num)
}

// pin reports whether the page went from unpinned to pinned.
func (b *pageBuffer) pin(bp *bufferedPage) bool {
	if bp.pinned {
		return false
	}
	bp.pinned = true
	b.unpinned.Remove(bp.Num)
	return true
}

// unpin reports whether the page went from pinned to unpinned.
func (b *pageBuffer) unpin(bp *bufferedPage) bool {
	if !bp.pinned {
		return false
	}
	bp.pinned = false
	b.unpinned.Put(bp.Num)
	return true
}

func (b *pageBuffer) isFull() bool {
	return b.size >= b.capacity
}

// victim returns the least recently unpinned page.
func (b *pageBuffer) victim() (*bufferedPage, bool) {
	num, ok := b.unpinned.Oldest()
	if !ok {
		return nil, false
	}
	return b.get(num)
}

func (b *pageBuffer) numPinned() int {
	return b.size - b.unpinned.Len()
}

// each visits buffered pages in ascending page number order.
func (b *pageBuffer) each(fn func(bp *bufferedPage)) {
	for _, bp := range b.pages {
		if bp != nil {
			fn(bp)
		}
	}
}
