package index

import (
	"fmt"
	"math"
)

const (
	// PointerSize equals model.RIDSize so leaf and non-leaf nodes share one branching factor.
	PointerSize = 8

	pointerTag uint32 = math.MaxUint32
)

// NodePointer references a child node page. On disk it is a tag that can
// never be a record page number followed by the child page number.
type NodePointer struct {
	PageNum uint32
}

func (p NodePointer) Marshal(buf []byte) {
	marshalUint32(buf, pointerTag, 0)
	marshalUint32(buf, p.PageNum, 4)
}

func UnmarshalNodePointer(buf []byte) (NodePointer, error) {
	if tag := unmarshalUint32(buf, 0); tag != pointerTag {
		return NodePointer{}, fmt.Errorf("%w: bad pointer tag %#x", ErrCorruptNode, tag)
	}
	return NodePointer{PageNum: unmarshalUint32(buf, 4)}, nil
}

func (p NodePointer) String() string {
	return fmt.Sprintf("Pointer<%d>", p.PageNum)
}
