package index

import (
	"fmt"
	"io"

	"github.com/nettee/pancake/internal/model"
)

const nodeHeaderSize = 12

// nodeHeader is shared by leaf and non-leaf nodes: entry count (4 bytes),
// root flag, leaf flag, then reserved bytes.
type nodeHeader struct {
	N      uint32
	IsRoot bool
	IsLeaf bool
}

func (h *nodeHeader) Size() uint64 {
	return nodeHeaderSize
}

func (h *nodeHeader) Marshal(buf []byte) ([]byte, error) {
	size := h.Size()
	if uint64(cap(buf)) >= size {
		buf = buf[:size]
	} else {
		buf = make([]byte, size)
	}

	marshalUint32(buf, h.N, 0)
	marshalBool(buf, h.IsRoot, 4)
	marshalBool(buf, h.IsLeaf, 5)
	clear(buf[6:size])

	return buf, nil
}

func (h *nodeHeader) Unmarshal(buf []byte) (uint64, error) {
	if uint64(len(buf)) < h.Size() {
		return 0, fmt.Errorf("%w: header needs %d bytes", ErrCorruptNode, h.Size())
	}
	h.N = unmarshalUint32(buf, 0)
	h.IsRoot = unmarshalBool(buf, 4)
	h.IsLeaf = unmarshalBool(buf, 5)
	return h.Size(), nil
}

// layout locates entries inside a node page. Pointers (RIDs in leaves) and
// keys interleave after the node header: pointer 0, key 0, pointer 1, key 1...
type layout struct {
	attrType        model.AttrType
	branchingFactor int
	keyLength       int
	pointerLength   int
}

func newLayout(h Header) *layout {
	return &layout{
		attrType:        h.AttrType,
		branchingFactor: int(h.BranchingFactor),
		keyLength:       int(h.KeyLength),
		pointerLength:   int(h.PointerLength),
	}
}

func (l *layout) pointerPos(i int) int {
	return nodeHeaderSize + i*(l.pointerLength+l.keyLength)
}

func (l *layout) keyPos(i int) int {
	return l.pointerPos(i) + l.pointerLength
}

func (l *layout) key(buf []byte, i int) (model.Attr, error) {
	pos := l.keyPos(i)
	return model.UnmarshalAttr(l.attrType, buf[pos:pos+l.keyLength])
}

func (l *layout) putKey(buf []byte, i int, key model.Attr) {
	pos := l.keyPos(i)
	key.Marshal(buf[pos : pos+l.keyLength])
}

// node is one B+tree page held in memory.
type node interface {
	pageNum() uint32
	isLeaf() bool
	isRoot() bool
	setRoot(root bool)
	// isFull reports the node is at capacity, one more entry overflows it.
	isFull() bool
	// isOverflow reports the node holds one entry more than its capacity,
	// which is only allowed between an insert and the following split.
	isOverflow() bool
	// marshal writes the node into a page payload.
	marshal(buf []byte) error
	// check verifies the node on its own.
	check() error
	dump(w io.Writer, verbose bool)
}

// unmarshalNode peeks the node header to pick the variant, then decodes the rest.
func unmarshalNode(l *layout, num uint32, buf []byte) (node, error) {
	var h nodeHeader
	if _, err := h.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("node %d: %w", num, err)
	}

	if h.IsLeaf {
		n := newLeafNode(l, num, h.IsRoot)
		if err := n.unmarshal(h, buf); err != nil {
			return nil, fmt.Errorf("leaf node %d: %w", num, err)
		}
		return n, nil
	}

	n := newNonLeafNode(l, num, h.IsRoot)
	if err := n.unmarshal(h, buf); err != nil {
		return nil, fmt.Errorf("non-leaf node %d: %w", num, err)
	}
	return n, nil
}

func checkSorted(num uint32, keys []model.Attr) error {
	for i := 1; i < len(keys); i++ {
		if keys[i-1].Compare(keys[i]) >= 0 {
			return fmt.Errorf("%w: node %d: key %s at %d not below key %s", ErrCheckFailed, num, keys[i-1], i-1, keys[i])
		}
	}
	return nil
}
