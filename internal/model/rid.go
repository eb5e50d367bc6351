package model

import (
	"cmp"
	"fmt"
)

const RIDSize = 8

// RID identifies a record by page and slot in the record store.
type RID struct {
	PageNum uint32
	SlotNum uint32
}

func (r RID) Marshal(buf []byte) {
	marshalUint32(buf, r.PageNum, 0)
	marshalUint32(buf, r.SlotNum, 4)
}

func UnmarshalRID(buf []byte) RID {
	return RID{
		PageNum: unmarshalUint32(buf, 0),
		SlotNum: unmarshalUint32(buf, 4),
	}
}

func (r RID) Compare(other RID) int {
	if c := cmp.Compare(r.PageNum, other.PageNum); c != 0 {
		return c
	}
	return cmp.Compare(r.SlotNum, other.SlotNum)
}

func (r RID) String() string {
	return fmt.Sprintf("<%d,%d>", r.PageNum, r.SlotNum)
}
