package index

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nettee/pancake/internal/model"
)

// InsertEntry adds key -> rid to the index. Keys are unique, inserting an
// existing key fails with ErrDuplicateKey and leaves the tree unchanged.
//
// Every page the insert splits into is allocated before the tree is touched,
// so a page.ErrBufferFull also leaves the tree unchanged and the insert can
// be retried once pins are released.
func (ix *Index) InsertEntry(ctx context.Context, key model.Attr, rid model.RID) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	if err := ix.header.AttrType.Check(key); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	needed, err := ix.pagesNeeded(ctx, key)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", key, err)
	}
	if err := ix.reservePages(ctx, needed); err != nil {
		return fmt.Errorf("insert entry %s: %w", key, err)
	}

	root, err := ix.insert(ctx, ix.header.RootPage, key, rid)
	err = multierr.Append(err, ix.releasePages(ctx))
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", key, err)
	}

	if root != ix.header.RootPage {
		ix.logger.Debug("new root",
			zap.Uint32("old_root", ix.header.RootPage),
			zap.Uint32("new_root", root),
		)
		ix.header.RootPage = root
	}

	return nil
}

// pagesNeeded walks the path to the leaf for key and returns how many node
// pages inserting key allocates: one per full node at the bottom of the path,
// which all split, plus a new root when the whole path is full.
func (ix *Index) pagesNeeded(ctx context.Context, key model.Attr) (int, error) {
	num := ix.header.RootPage
	if num == NoPage {
		return 1, nil
	}

	var depth, full int
	for {
		n, err := ix.getNode(ctx, num)
		if err != nil {
			return 0, err
		}

		depth += 1
		if n.isFull() {
			full += 1
		} else {
			full = 0
		}

		switch n := n.(type) {
		case *leafNode:
			_, found := n.search(key)
			ix.unpinNode(n)
			if found {
				return 0, ErrDuplicateKey
			}
			if full == depth {
				return full + 1, nil
			}
			return full, nil
		case *nonLeafNode:
			_, num = n.findChild(key)
			ix.unpinNode(n)
		default:
			ix.unpinNode(n)
			return 0, fmt.Errorf("unexpected node type %T", n)
		}
	}
}

// reservePages allocates count pinned node pages for the next insert.
func (ix *Index) reservePages(ctx context.Context, count int) error {
	for range count {
		num, err := ix.allocateNodePage(ctx)
		if err != nil {
			return multierr.Append(err, ix.releasePages(ctx))
		}
		ix.reserved = append(ix.reserved, num)
	}
	return nil
}

// releasePages disposes of reserved pages left unused, last reserved first,
// so the next reservation gets the same page numbers back.
func (ix *Index) releasePages(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	for len(ix.reserved) > 0 {
		num := ix.reserved[len(ix.reserved)-1]
		ix.reserved = ix.reserved[:len(ix.reserved)-1]

		ix.file.UnpinPage(num)
		if disposeErr := ix.file.DisposePage(ctx, num); disposeErr != nil {
			err = multierr.Append(err, fmt.Errorf("release page: %w", disposeErr))
			continue
		}
		ix.header.NumPages -= 1
	}
	return err
}

// insert adds the entry to the subtree rooted at num and returns the page
// of the subtree root, which only changes when the tree root splits.
func (ix *Index) insert(ctx context.Context, num uint32, key model.Attr, rid model.RID) (uint32, error) {
	if num == NoPage {
		leaf, err := ix.createLeafNode(true)
		if err != nil {
			return NoPage, err
		}
		defer ix.unpinNode(leaf)

		if err := leaf.insert(key, rid); err != nil {
			return NoPage, err
		}
		return leaf.num, nil
	}

	n, err := ix.getNode(ctx, num)
	if err != nil {
		return NoPage, err
	}

	switch n := n.(type) {
	case *leafNode:
		return ix.insertLeaf(n, key, rid)
	case *nonLeafNode:
		return ix.insertNonLeaf(ctx, n, key, rid)
	default:
		ix.unpinNode(n)
		return NoPage, fmt.Errorf("unexpected node type %T", n)
	}
}

func (ix *Index) insertLeaf(n *leafNode, key model.Attr, rid model.RID) (uint32, error) {
	defer ix.unpinNode(n)

	if err := n.insert(key, rid); err != nil {
		return NoPage, err
	}

	if n.root && n.isOverflow() {
		return ix.splitRoot(n)
	}

	return n.num, nil
}

func (ix *Index) insertNonLeaf(ctx context.Context, n *nonLeafNode, key model.Attr, rid model.RID) (uint32, error) {
	defer ix.unpinNode(n)

	_, childNum := n.findChild(key)
	if _, err := ix.insert(ctx, childNum, key, rid); err != nil {
		return NoPage, err
	}

	// The child was unpinned on return, fetch it again to see if it overflows
	child, err := ix.getNode(ctx, childNum)
	if err != nil {
		return NoPage, err
	}
	defer ix.unpinNode(child)

	if child.isOverflow() {
		sibling, upKey, err := ix.split(child)
		if err != nil {
			return NoPage, err
		}
		defer ix.unpinNode(sibling)

		n.addChild(sibling.pageNum(), upKey)
	}

	// Only after absorbing the child split can this node overflow
	if n.root && n.isOverflow() {
		return ix.splitRoot(n)
	}

	return n.num, nil
}

// splitRoot splits an overflowing root and grows the tree by one level.
func (ix *Index) splitRoot(n node) (uint32, error) {
	sibling, upKey, err := ix.split(n)
	if err != nil {
		return NoPage, err
	}
	defer ix.unpinNode(sibling)

	root, err := ix.createNonLeafNode(true)
	if err != nil {
		return NoPage, err
	}
	defer ix.unpinNode(root)

	n.setRoot(false)
	root.addFirstTwoChildren(n.pageNum(), sibling.pageNum(), upKey)

	return root.num, nil
}

// split moves half of an overflowing node into a new pinned sibling and
// returns the sibling with the separator to add to the parent.
func (ix *Index) split(n node) (node, model.Attr, error) {
	var (
		sibling node
		upKey   model.Attr
	)

	switch n := n.(type) {
	case *leafNode:
		leaf, err := ix.createLeafNode(false)
		if err != nil {
			return nil, nil, err
		}
		upKey = n.split(leaf)
		sibling = leaf
	case *nonLeafNode:
		nonLeaf, err := ix.createNonLeafNode(false)
		if err != nil {
			return nil, nil, err
		}
		upKey = n.split(nonLeaf)
		sibling = nonLeaf
	default:
		return nil, nil, fmt.Errorf("unexpected node type %T", n)
	}

	ix.logger.Debug("split node",
		zap.Uint32("page", n.pageNum()),
		zap.Uint32("sibling", sibling.pageNum()),
		zap.Bool("leaf", n.isLeaf()),
		zap.Stringer("up_key", upKey),
	)

	return sibling, upKey, nil
}
