// Package page implements a disk file split into fixed-size pages with a
// bounded pinning buffer pool in front of it.
package page

import (
	"encoding/binary"
	"math"
)

const (
	PageSize = 4096 // slot size on disk, tag included
	TagSize  = 4
	DataSize = PageSize - TagSize

	// DisposedTag replaces the page number in the tag of a disposed slot.
	DisposedTag uint32 = math.MaxUint32

	DefaultBufferSize = 40

	fillByte byte = 0xee
)

// Page is a fixed-size block of bytes plus its page number.
type Page struct {
	Num  uint32
	Data []byte
}

func newPage(num uint32) *Page {
	aPage := &Page{
		Num:  num,
		Data: make([]byte, DataSize),
	}
	for i := range aPage.Data {
		aPage.Data[i] = fillByte
	}
	return aPage
}

// Marshal writes the tagged slot representation of the page.
func (p *Page) Marshal(buf []byte) ([]byte, error) {
	if cap(buf) >= PageSize {
		buf = buf[:PageSize]
	} else {
		buf = make([]byte, PageSize)
	}

	binary.LittleEndian.PutUint32(buf[0:TagSize], p.Num)
	copy(buf[TagSize:], p.Data)

	return buf, nil
}

// Unmarshal reads a tagged slot, returning the tag found on disk.
func (p *Page) Unmarshal(buf []byte) uint32 {
	tag := binary.LittleEndian.Uint32(buf[0:TagSize])
	if len(p.Data) != DataSize {
		p.Data = make([]byte, DataSize)
	}
	copy(p.Data, buf[TagSize:PageSize])
	p.Num = tag
	return tag
}

func slotOffset(num uint32) int64 {
	return int64(num) * PageSize
}
