package index

import "github.com/nettee/pancake/internal/page"

type Option func(*Index)

// WithBranchingFactor overrides the branching factor of a new index. It is
// ignored when opening an existing index, whose header is authoritative.
func WithBranchingFactor(branchingFactor uint32) Option {
	return func(ix *Index) {
		ix.branchingFactor = branchingFactor
	}
}

// WithPageOptions configures the paged file under the index.
func WithPageOptions(opts ...page.Option) Option {
	return func(ix *Index) {
		ix.pageOpts = append(ix.pageOpts, opts...)
	}
}
