package index

import (
	"context"
	"fmt"

	"github.com/nettee/pancake/internal/model"
)

type checkItem struct {
	num   uint32
	depth int
	// keys in the subtree satisfy lo <= k < hi, nil bounds are open
	lo, hi model.Attr
}

// Check walks the tree breadth first and verifies its shape: one root
// matching the header, one kind of node per depth, all leaves at the same
// depth, sorted keys within the range set by the ancestors, no node
// above capacity and no page reached twice.
func (ix *Index) Check(ctx context.Context) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	if ix.header.RootPage == NoPage {
		return nil
	}

	var (
		queue     = []checkItem{{num: ix.header.RootPage}}
		roots     = 0
		levelLeaf = map[int]bool{}
		leafDepth = -1
		visited   = map[uint32]bool{}
	)

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if visited[item.num] {
			return fmt.Errorf("%w: page %d reached twice", ErrCheckFailed, item.num)
		}
		visited[item.num] = true

		n, err := ix.getNode(ctx, item.num)
		if err != nil {
			return err
		}
		children, err := ix.checkNode(n, item)
		ix.unpinNode(n)
		if err != nil {
			return err
		}

		if n.isRoot() {
			roots += 1
		}
		if leaf, ok := levelLeaf[item.depth]; ok && leaf != n.isLeaf() {
			return fmt.Errorf("%w: depth %d mixes leaf and non-leaf nodes", ErrCheckFailed, item.depth)
		}
		levelLeaf[item.depth] = n.isLeaf()
		if n.isLeaf() {
			if leafDepth >= 0 && leafDepth != item.depth {
				return fmt.Errorf("%w: leaves at depth %d and %d", ErrCheckFailed, leafDepth, item.depth)
			}
			leafDepth = item.depth
		}

		queue = append(queue, children...)
	}

	if roots != 1 {
		return fmt.Errorf("%w: found %d root nodes", ErrCheckFailed, roots)
	}

	return nil
}

// checkNode verifies a single node and returns its children to visit.
func (ix *Index) checkNode(n node, item checkItem) ([]checkItem, error) {
	if err := n.check(); err != nil {
		return nil, err
	}

	isTop := item.depth == 0
	if n.isRoot() != isTop {
		return nil, fmt.Errorf("%w: node %d at depth %d has root flag %t", ErrCheckFailed, n.pageNum(), item.depth, n.isRoot())
	}
	if isTop && n.pageNum() != ix.header.RootPage {
		return nil, fmt.Errorf("%w: root node %d, header says %d", ErrCheckFailed, n.pageNum(), ix.header.RootPage)
	}

	var keys []model.Attr
	switch n := n.(type) {
	case *leafNode:
		keys = n.keys
	case *nonLeafNode:
		keys = n.keys
	}
	for _, key := range keys {
		if item.lo != nil && key.Compare(item.lo) < 0 {
			return nil, fmt.Errorf("%w: node %d: key %s below lower bound %s", ErrCheckFailed, n.pageNum(), key, item.lo)
		}
		if item.hi != nil && key.Compare(item.hi) >= 0 {
			return nil, fmt.Errorf("%w: node %d: key %s not below upper bound %s", ErrCheckFailed, n.pageNum(), key, item.hi)
		}
	}

	nonLeaf, ok := n.(*nonLeafNode)
	if !ok {
		return nil, nil
	}

	children := make([]checkItem, 0, len(nonLeaf.pointers))
	for i, p := range nonLeaf.pointers {
		child := checkItem{
			num:   p.PageNum,
			depth: item.depth + 1,
			lo:    item.lo,
			hi:    item.hi,
		}
		if i > 0 {
			child.lo = nonLeaf.keys[i-1]
		}
		if i < len(nonLeaf.keys) {
			child.hi = nonLeaf.keys[i]
		}
		children = append(children, child)
	}

	return children, nil
}
