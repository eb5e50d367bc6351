package index

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/nettee/pancake/internal/model"
)

// leafNode maps sorted unique keys to record ids.
type leafNode struct {
	layout *layout
	num    uint32
	root   bool
	keys   []model.Attr
	rids   []model.RID
}

func newLeafNode(l *layout, num uint32, root bool) *leafNode {
	return &leafNode{
		layout: l,
		num:    num,
		root:   root,
		keys:   make([]model.Attr, 0, l.branchingFactor),
		rids:   make([]model.RID, 0, l.branchingFactor),
	}
}

func (n *leafNode) pageNum() uint32   { return n.num }
func (n *leafNode) isLeaf() bool      { return true }
func (n *leafNode) isRoot() bool      { return n.root }
func (n *leafNode) setRoot(root bool) { n.root = root }
func (n *leafNode) capacity() int     { return n.layout.branchingFactor - 1 }
func (n *leafNode) isFull() bool      { return len(n.keys) >= n.capacity() }
func (n *leafNode) isOverflow() bool  { return len(n.keys) > n.capacity() }

// search returns the position of key, or where it would be inserted.
func (n *leafNode) search(key model.Attr) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return n.keys[i].Compare(key) >= 0
	})
	return i, i < len(n.keys) && n.keys[i].Compare(key) == 0
}

// insert adds the entry in key order. The node may overflow afterwards,
// resolving that is up to the caller.
func (n *leafNode) insert(key model.Attr, rid model.RID) error {
	i, found := n.search(key)
	if found {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	n.keys = slices.Insert(n.keys, i, key)
	n.rids = slices.Insert(n.rids, i, rid)
	return nil
}

// remove deletes the entry matching both key and rid.
func (n *leafNode) remove(key model.Attr, rid model.RID) bool {
	i, found := n.search(key)
	if !found || n.rids[i] != rid {
		return false
	}
	n.keys = slices.Delete(n.keys, i, i+1)
	n.rids = slices.Delete(n.rids, i, i+1)
	return true
}

// split moves the upper half of the entries to the empty sibling and
// returns a copy of the sibling's first key as the separator.
func (n *leafNode) split(sibling *leafNode) model.Attr {
	newSize := len(n.keys) / 2

	sibling.keys = append(sibling.keys, n.keys[newSize:]...)
	sibling.rids = append(sibling.rids, n.rids[newSize:]...)

	clear(n.keys[newSize:])
	n.keys = n.keys[:newSize]
	n.rids = n.rids[:newSize]

	return sibling.keys[0]
}

func (n *leafNode) marshal(buf []byte) error {
	if n.isOverflow() {
		return fmt.Errorf("%w: leaf node %d holds %d entries, capacity %d", ErrNodeOverflow, n.num, len(n.keys), n.capacity())
	}

	h := nodeHeader{
		N:      uint32(len(n.keys)),
		IsRoot: n.root,
		IsLeaf: true,
	}
	if _, err := h.Marshal(buf); err != nil {
		return err
	}

	for i := range n.keys {
		pos := n.layout.pointerPos(i)
		n.rids[i].Marshal(buf[pos : pos+n.layout.pointerLength])
		n.layout.putKey(buf, i, n.keys[i])
	}

	return nil
}

func (n *leafNode) unmarshal(h nodeHeader, buf []byte) error {
	if int(h.N) > n.capacity() {
		return fmt.Errorf("%w: %d entries, capacity %d", ErrCorruptNode, h.N, n.capacity())
	}

	for i := 0; i < int(h.N); i++ {
		key, err := n.layout.key(buf, i)
		if err != nil {
			return err
		}
		pos := n.layout.pointerPos(i)
		n.keys = append(n.keys, key)
		n.rids = append(n.rids, model.UnmarshalRID(buf[pos:pos+n.layout.pointerLength]))
	}

	return nil
}

func (n *leafNode) check() error {
	if len(n.keys) != len(n.rids) {
		return fmt.Errorf("%w: leaf node %d has %d keys and %d values", ErrCheckFailed, n.num, len(n.keys), len(n.rids))
	}
	if n.isOverflow() {
		return fmt.Errorf("%w: leaf node %d overflows with %d entries", ErrCheckFailed, n.num, len(n.keys))
	}
	return checkSorted(n.num, n.keys)
}

func (n *leafNode) dump(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Leaf node %d: root=%t entries=%d/%d\n", n.num, n.root, len(n.keys), n.capacity())
	if !verbose {
		return
	}
	for i := range n.keys {
		fmt.Fprintf(w, "  %s -> %s\n", n.keys[i], n.rids[i])
	}
}
