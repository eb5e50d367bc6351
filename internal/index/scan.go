package index

import (
	"context"
	"slices"

	"github.com/nettee/pancake/internal/model"
)

type Entry struct {
	Key model.Attr
	RID model.RID
}

// Scan iterates over index entries in ascending key order, returning
// those accepted by the predicate.
type Scan struct {
	ix        *Index
	predicate func(model.Attr) bool
	started   bool
	closed    bool

	// non-leaf nodes on the path to the current leaf
	stack []scanFrame

	// entries of the current leaf
	keys []model.Attr
	rids []model.RID
	pos  int
}

type scanFrame struct {
	pointers []NodePointer
	next     int
}

// Scan starts a scan. A nil predicate accepts every key. The index must not
// be modified while the scan is in use.
func (ix *Index) Scan(ctx context.Context, predicate func(model.Attr) bool) (*Scan, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	return &Scan{
		ix:        ix,
		predicate: predicate,
	}, nil
}

// Next returns the next accepted entry. The bool is false once the scan is exhausted.
func (s *Scan) Next(ctx context.Context) (Entry, bool, error) {
	if err := s.ix.checkOpen(); err != nil {
		return Entry{}, false, err
	}

	for !s.closed {
		for s.pos < len(s.keys) {
			key, rid := s.keys[s.pos], s.rids[s.pos]
			s.pos += 1
			if s.predicate == nil || s.predicate(key) {
				return Entry{Key: key, RID: rid}, true, nil
			}
		}

		ok, err := s.nextLeaf(ctx)
		if err != nil {
			return Entry{}, false, err
		}
		if !ok {
			s.Close()
		}
	}

	return Entry{}, false, nil
}

func (s *Scan) Close() {
	s.closed = true
	s.stack = nil
	s.keys = nil
	s.rids = nil
}

// nextLeaf loads the entries of the leaf following the current one.
func (s *Scan) nextLeaf(ctx context.Context) (bool, error) {
	for {
		var num uint32
		if !s.started {
			s.started = true
			num = s.ix.header.RootPage
			if num == NoPage {
				return false, nil
			}
		} else {
			for len(s.stack) > 0 && s.top().next >= len(s.top().pointers) {
				s.stack = s.stack[:len(s.stack)-1]
			}
			if len(s.stack) == 0 {
				return false, nil
			}
			top := s.top()
			num = top.pointers[top.next].PageNum
			top.next += 1
		}

		n, err := s.ix.getNode(ctx, num)
		if err != nil {
			return false, err
		}

		switch n := n.(type) {
		case *leafNode:
			s.keys = slices.Clone(n.keys)
			s.rids = slices.Clone(n.rids)
			s.pos = 0
			s.ix.unpinNode(n)
			return true, nil
		case *nonLeafNode:
			s.stack = append(s.stack, scanFrame{pointers: slices.Clone(n.pointers)})
			s.ix.unpinNode(n)
		}
	}
}

func (s *Scan) top() *scanFrame {
	return &s.stack[len(s.stack)-1]
}
