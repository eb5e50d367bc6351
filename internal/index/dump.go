package index

import (
	"context"
	"fmt"
	"io"
)

// Dump writes a human readable description of the header and every node,
// in page order.
// With verbose set the entries of each node are listed too.
func (ix *Index) Dump(ctx context.Context, w io.Writer, verbose bool) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}

	h := ix.header
	root := "none"
	if h.RootPage != NoPage {
		root = fmt.Sprint(h.RootPage)
	}
	fmt.Fprintf(w, "Index %s\n", ix.path)
	fmt.Fprintf(w, "  attr type: %s\n", h.AttrType)
	fmt.Fprintf(w, "  branching factor: %d\n", h.BranchingFactor)
	fmt.Fprintf(w, "  key length: %d, pointer length: %d\n", h.KeyLength, h.PointerLength)
	fmt.Fprintf(w, "  root page: %s, node pages: %d\n", root, h.NumPages)

	// Node pages are the live pages after the header, possibly with
	// disposed slots between them
	num := uint32(headerPageNum)
	for {
		nodePage, ok, err := ix.file.GetNextPage(ctx, num)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		num = nodePage.Num
		ix.file.UnpinPage(num)

		n, err := ix.getNode(ctx, num)
		if err != nil {
			return err
		}
		n.dump(w, verbose)
		ix.unpinNode(n)
	}

	return nil
}
