package index

import (
	"context"
	"fmt"

	"github.com/nettee/pancake/internal/model"
)

// Lookup returns the rid stored under key.
func (ix *Index) Lookup(ctx context.Context, key model.Attr) (model.RID, bool, error) {
	if err := ix.checkOpen(); err != nil {
		return model.RID{}, false, err
	}
	if err := ix.header.AttrType.Check(key); err != nil {
		return model.RID{}, false, fmt.Errorf("lookup: %w", err)
	}

	leaf, err := ix.findLeaf(ctx, key)
	if err != nil || leaf == nil {
		return model.RID{}, false, err
	}
	defer ix.unpinNode(leaf)

	i, found := leaf.search(key)
	if !found {
		return model.RID{}, false, nil
	}
	return leaf.rids[i], true, nil
}

// DeleteEntry removes the entry matching both key and rid. Nodes are never
// merged, leaves may become underfull or empty and the tree keeps its height.
func (ix *Index) DeleteEntry(ctx context.Context, key model.Attr, rid model.RID) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	if err := ix.header.AttrType.Check(key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	leaf, err := ix.findLeaf(ctx, key)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	if leaf == nil {
		return fmt.Errorf("delete entry %s %s: %w", key, rid, ErrEntryNotFound)
	}
	defer ix.unpinNode(leaf)

	if !leaf.remove(key, rid) {
		return fmt.Errorf("delete entry %s %s: %w", key, rid, ErrEntryNotFound)
	}
	return nil
}

// findLeaf descends to the leaf responsible for key and returns it pinned.
// It returns nil for an empty tree.
func (ix *Index) findLeaf(ctx context.Context, key model.Attr) (*leafNode, error) {
	num := ix.header.RootPage
	if num == NoPage {
		return nil, nil
	}

	for {
		n, err := ix.getNode(ctx, num)
		if err != nil {
			return nil, err
		}

		switch n := n.(type) {
		case *leafNode:
			return n, nil
		case *nonLeafNode:
			_, num = n.findChild(key)
			ix.unpinNode(n)
		default:
			ix.unpinNode(n)
			return nil, fmt.Errorf("unexpected node type %T", n)
		}
	}
}
