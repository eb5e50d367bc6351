package index

import (
	"fmt"
	"math"

	"github.com/nettee/pancake/internal/model"
	"github.com/nettee/pancake/internal/page"
)

const (
	magic = "INX-FILE"

	// NoPage is the root page of an empty tree.
	NoPage uint32 = math.MaxUint32

	headerPageNum = 0

	// MinBranchingFactor keeps both halves of a split non-empty.
	MinBranchingFactor = 3
)

// Header is the index metadata stored in page 0. The field order on disk
// is fixed: magic, attribute kind, attribute length, branching factor,
// key length, pointer length, root page, page count.
type Header struct {
	AttrType        model.AttrType
	BranchingFactor uint32
	KeyLength       uint32
	PointerLength   uint32
	RootPage        uint32
	NumPages        uint32 // node pages, the header page is not counted
}

func newHeader(attrType model.AttrType, branchingFactor uint32) Header {
	return Header{
		AttrType:        attrType,
		BranchingFactor: branchingFactor,
		KeyLength:       attrType.Length,
		PointerLength:   PointerSize,
		RootPage:        NoPage,
		NumPages:        0,
	}
}

// MaxBranchingFactor is the largest branching factor whose full non-leaf
// node fits a page payload.
func MaxBranchingFactor(keyLength uint32) uint32 {
	return (page.DataSize - nodeHeaderSize + keyLength) / (keyLength + PointerSize)
}

func (h *Header) Size() uint64 {
	return uint64(len(magic)) + 7*4
}

func (h *Header) Marshal(buf []byte) ([]byte, error) {
	size := h.Size()
	if uint64(cap(buf)) >= size {
		buf = buf[:size]
	} else {
		buf = make([]byte, size)
	}

	i := uint64(0)

	copy(buf[i:], magic)
	i += uint64(len(magic))

	marshalUint32(buf, uint32(h.AttrType.Kind), i)
	i += 4
	marshalUint32(buf, h.AttrType.Length, i)
	i += 4
	marshalUint32(buf, h.BranchingFactor, i)
	i += 4
	marshalUint32(buf, h.KeyLength, i)
	i += 4
	marshalUint32(buf, h.PointerLength, i)
	i += 4
	marshalUint32(buf, h.RootPage, i)
	i += 4
	marshalUint32(buf, h.NumPages, i)

	return buf, nil
}

func (h *Header) Unmarshal(buf []byte) (uint64, error) {
	if uint64(len(buf)) < h.Size() {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptHeader, len(buf))
	}

	i := uint64(0)

	if string(buf[i:i+uint64(len(magic))]) != magic {
		return 0, fmt.Errorf("%w: bad magic %q", ErrCorruptHeader, buf[i:i+uint64(len(magic))])
	}
	i += uint64(len(magic))

	h.AttrType.Kind = model.AttrKind(unmarshalUint32(buf, i))
	i += 4
	h.AttrType.Length = unmarshalUint32(buf, i)
	i += 4
	h.BranchingFactor = unmarshalUint32(buf, i)
	i += 4
	h.KeyLength = unmarshalUint32(buf, i)
	i += 4
	h.PointerLength = unmarshalUint32(buf, i)
	i += 4
	h.RootPage = unmarshalUint32(buf, i)
	i += 4
	h.NumPages = unmarshalUint32(buf, i)
	i += 4

	return i, nil
}

// validate rejects headers this code cannot have written.
func (h *Header) validate() error {
	if err := h.AttrType.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	if h.KeyLength != h.AttrType.Length {
		return fmt.Errorf("%w: key length %d, attribute length %d", ErrCorruptHeader, h.KeyLength, h.AttrType.Length)
	}
	if h.PointerLength != PointerSize {
		return fmt.Errorf("%w: pointer length %d", ErrCorruptHeader, h.PointerLength)
	}
	if h.BranchingFactor < MinBranchingFactor || h.BranchingFactor > MaxBranchingFactor(h.KeyLength) {
		return fmt.Errorf("%w: branching factor %d", ErrCorruptHeader, h.BranchingFactor)
	}
	return nil
}
