package index

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/nettee/pancake/internal/model"
)

// nonLeafNode holds N child pointers and N-1 separator keys. pointers[i]
// covers keys k with keys[i-1] <= k < keys[i].
type nonLeafNode struct {
	layout   *layout
	num      uint32
	root     bool
	keys     []model.Attr
	pointers []NodePointer
}

func newNonLeafNode(l *layout, num uint32, root bool) *nonLeafNode {
	return &nonLeafNode{
		layout:   l,
		num:      num,
		root:     root,
		keys:     make([]model.Attr, 0, l.branchingFactor),
		pointers: make([]NodePointer, 0, l.branchingFactor+1),
	}
}

func (n *nonLeafNode) pageNum() uint32   { return n.num }
func (n *nonLeafNode) isLeaf() bool      { return false }
func (n *nonLeafNode) isRoot() bool      { return n.root }
func (n *nonLeafNode) setRoot(root bool) { n.root = root }
func (n *nonLeafNode) capacity() int     { return n.layout.branchingFactor }
func (n *nonLeafNode) isFull() bool      { return len(n.pointers) >= n.capacity() }
func (n *nonLeafNode) isOverflow() bool  { return len(n.pointers) > n.capacity() }

// addFirstTwoChildren initializes a new root above a split node.
func (n *nonLeafNode) addFirstTwoChildren(left, right uint32, key model.Attr) {
	n.pointers = append(n.pointers[:0], NodePointer{PageNum: left}, NodePointer{PageNum: right})
	n.keys = append(n.keys[:0], key)
}

// addChild inserts a separator and the pointer to its right.
func (n *nonLeafNode) addChild(child uint32, key model.Attr) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return n.keys[i].Compare(key) > 0
	})
	n.keys = slices.Insert(n.keys, i, key)
	n.pointers = slices.Insert(n.pointers, i+1, NodePointer{PageNum: child})
}

// findChild returns the index and page of the child responsible for key.
func (n *nonLeafNode) findChild(key model.Attr) (int, uint32) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return key.Compare(n.keys[i]) < 0
	})
	return i, n.pointers[i].PageNum
}

// split moves the upper half of the pointers to the empty sibling. The
// key left between both halves is removed and returned as the separator.
func (n *nonLeafNode) split(sibling *nonLeafNode) model.Attr {
	newSize := len(n.pointers) / 2

	sibling.pointers = append(sibling.pointers, n.pointers[newSize:]...)
	sibling.keys = append(sibling.keys, n.keys[newSize:]...)

	upKey := n.keys[newSize-1]

	clear(n.keys[newSize-1:])
	n.keys = n.keys[:newSize-1]
	n.pointers = n.pointers[:newSize]

	return upKey
}

func (n *nonLeafNode) marshal(buf []byte) error {
	if n.isOverflow() {
		return fmt.Errorf("%w: non-leaf node %d holds %d pointers, capacity %d", ErrNodeOverflow, n.num, len(n.pointers), n.capacity())
	}

	h := nodeHeader{
		N:      uint32(len(n.pointers)),
		IsRoot: n.root,
		IsLeaf: false,
	}
	if _, err := h.Marshal(buf); err != nil {
		return err
	}

	for i, p := range n.pointers {
		pos := n.layout.pointerPos(i)
		p.Marshal(buf[pos : pos+n.layout.pointerLength])
	}
	for i, key := range n.keys {
		n.layout.putKey(buf, i, key)
	}

	return nil
}

func (n *nonLeafNode) unmarshal(h nodeHeader, buf []byte) error {
	if h.N == 0 || int(h.N) > n.capacity() {
		return fmt.Errorf("%w: %d pointers, capacity %d", ErrCorruptNode, h.N, n.capacity())
	}

	for i := 0; i < int(h.N); i++ {
		pos := n.layout.pointerPos(i)
		p, err := UnmarshalNodePointer(buf[pos : pos+n.layout.pointerLength])
		if err != nil {
			return err
		}
		n.pointers = append(n.pointers, p)
	}
	for i := 0; i < int(h.N)-1; i++ {
		key, err := n.layout.key(buf, i)
		if err != nil {
			return err
		}
		n.keys = append(n.keys, key)
	}

	return nil
}

func (n *nonLeafNode) check() error {
	if len(n.pointers) != len(n.keys)+1 {
		return fmt.Errorf("%w: non-leaf node %d has %d pointers and %d keys", ErrCheckFailed, n.num, len(n.pointers), len(n.keys))
	}
	if n.isOverflow() {
		return fmt.Errorf("%w: non-leaf node %d overflows with %d pointers", ErrCheckFailed, n.num, len(n.pointers))
	}
	return checkSorted(n.num, n.keys)
}

func (n *nonLeafNode) dump(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Non-leaf node %d: root=%t pointers=%d/%d\n", n.num, n.root, len(n.pointers), n.capacity())
	if !verbose {
		return
	}
	for i, p := range n.pointers {
		if i > 0 {
			fmt.Fprintf(w, "  %s\n", n.keys[i-1])
		}
		fmt.Fprintf(w, "  %s\n", p)
	}
}
