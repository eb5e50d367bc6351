// Package index implements a B+tree secondary index mapping attribute
// values to record ids, stored in a paged file next to the data file.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nettee/pancake/internal/model"
	"github.com/nettee/pancake/internal/page"
)

// Index is an open B+tree index. It is not safe for concurrent use.
type Index struct {
	logger *zap.Logger
	path   string
	file   *page.PagedFile
	header Header
	layout *layout
	nodes  *nodeCache
	closed bool

	// reserved holds pinned pages allocated ahead of an insert, in the
	// order the insert takes them.
	reserved []uint32

	branchingFactor uint32
	pageOpts        []page.Option
}

// FileName returns the index file path for the data file and index number.
func FileName(dataFile string, indexNo int) string {
	return filepath.Join(filepath.Dir(dataFile), fmt.Sprintf("%s.%d", filepath.Base(dataFile), indexNo))
}

// Create creates index indexNo of the data file, keyed by attrType.
func Create(ctx context.Context, logger *zap.Logger, dataFile string, indexNo int, attrType model.AttrType, opts ...Option) (*Index, error) {
	path, err := indexFile(dataFile, indexNo)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := attrType.Validate(); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	ix := newIndex(logger, path, opts...)

	maxBranchingFactor := MaxBranchingFactor(attrType.Length)
	if ix.branchingFactor == 0 {
		ix.branchingFactor = maxBranchingFactor
	}
	if ix.branchingFactor < MinBranchingFactor || ix.branchingFactor > maxBranchingFactor {
		return nil, fmt.Errorf(
			"create index: %w: %d, must be between %d and %d for %s",
			ErrInvalidBranchingFactor, ix.branchingFactor, MinBranchingFactor, maxBranchingFactor, attrType,
		)
	}

	ix.file, err = page.Create(logger, path, ix.pageOpts...)
	if errors.Is(err, page.ErrAlreadyExists) {
		return nil, fmt.Errorf("create index %s: %w", path, ErrIndexExists)
	}
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	headerPage, err := ix.file.AllocatePage(ctx)
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("create index: %w", err), ix.file.Close(), os.Remove(path))
	}
	ix.file.UnpinPage(headerPage.Num)

	ix.header = newHeader(attrType, ix.branchingFactor)
	ix.layout = newLayout(ix.header)

	logger.Info("created index",
		zap.String("path", path),
		zap.Stringer("attr_type", attrType),
		zap.Uint32("branching_factor", ix.branchingFactor),
	)

	return ix, nil
}

// Open opens an existing index of the data file.
func Open(ctx context.Context, logger *zap.Logger, dataFile string, indexNo int, opts ...Option) (*Index, error) {
	path, err := indexFile(dataFile, indexNo)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	ix := newIndex(logger, path, opts...)

	ix.file, err = page.Open(logger, path, ix.pageOpts...)
	if errors.Is(err, page.ErrNotFound) {
		return nil, fmt.Errorf("open index %s: %w", path, ErrIndexNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	if err := ix.readHeader(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("open index %s: %w", path, err), ix.file.Close())
	}
	ix.layout = newLayout(ix.header)

	logger.Info("opened index",
		zap.String("path", path),
		zap.Stringer("attr_type", ix.header.AttrType),
		zap.Uint32("branching_factor", ix.header.BranchingFactor),
		zap.Uint32("pages", ix.header.NumPages),
	)

	return ix, nil
}

// Destroy removes index indexNo of the data file.
func Destroy(logger *zap.Logger, dataFile string, indexNo int) error {
	path, err := indexFile(dataFile, indexNo)
	if err != nil {
		return fmt.Errorf("destroy index: %w", err)
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("destroy index %s: %w", path, ErrIndexNotFound)
	}
	if err != nil {
		return fmt.Errorf("destroy index %s: %w", path, err)
	}

	logger.Info("destroyed index", zap.String("path", path))

	return nil
}

func newIndex(logger *zap.Logger, path string, opts ...Option) *Index {
	ix := &Index{
		logger: logger,
		path:   path,
		nodes:  newNodeCache(),
	}

	for _, opt := range opts {
		opt(ix)
	}

	return ix
}

func indexFile(dataFile string, indexNo int) (string, error) {
	if indexNo < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidIndexNo, indexNo)
	}
	if _, err := os.Stat(dataFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDataFileNotFound, dataFile)
		}
		return "", err
	}
	return FileName(dataFile, indexNo), nil
}

func (ix *Index) Path() string {
	return ix.path
}

func (ix *Index) Header() Header {
	return ix.header
}

// Close writes the header and every cached node, then forces and closes
// the paged file. A node left overflowing is a bug in the split logic:
// nothing is written and ErrNodeOverflow is returned.
func (ix *Index) Close() error {
	if ix.closed {
		return nil
	}
	ix.closed = true

	ctx := context.Background()

	err := ix.nodes.each(func(n node) error {
		if n.isOverflow() {
			ix.logger.DPanic("closing index with overflowing node",
				zap.String("path", ix.path),
				zap.Uint32("page", n.pageNum()),
			)
			return fmt.Errorf("close index %s: %w: page %d", ix.path, ErrNodeOverflow, n.pageNum())
		}
		return nil
	})
	if err != nil {
		return multierr.Append(err, ix.file.Close())
	}

	if err := ix.writeHeader(ctx); err != nil {
		return multierr.Append(fmt.Errorf("close index %s: %w", ix.path, err), ix.file.Close())
	}
	if err := ix.writeNodes(ctx); err != nil {
		return multierr.Append(fmt.Errorf("close index %s: %w", ix.path, err), ix.file.Close())
	}
	if err := ix.file.ForceAllPages(ctx); err != nil {
		return multierr.Append(fmt.Errorf("close index %s: %w", ix.path, err), ix.file.Close())
	}
	if err := ix.file.Close(); err != nil {
		return fmt.Errorf("close index %s: %w", ix.path, err)
	}

	ix.logger.Info("closed index",
		zap.String("path", ix.path),
		zap.Uint32("pages", ix.header.NumPages),
	)

	return nil
}

func (ix *Index) readHeader(ctx context.Context) error {
	if ix.file.NumPages() == 0 {
		return fmt.Errorf("%w: empty file", ErrCorruptHeader)
	}

	headerPage, err := ix.file.GetPage(ctx, headerPageNum)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	defer ix.file.UnpinPage(headerPage.Num)

	if _, err := ix.header.Unmarshal(headerPage.Data); err != nil {
		return err
	}
	return ix.header.validate()
}

func (ix *Index) writeHeader(ctx context.Context) error {
	headerPage, err := ix.file.GetPage(ctx, headerPageNum)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	defer ix.file.UnpinPage(headerPage.Num)

	if err := ix.file.MarkDirty(headerPage.Num); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := ix.header.Marshal(headerPage.Data); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (ix *Index) writeNodes(ctx context.Context) error {
	return ix.nodes.each(func(n node) error {
		nodePage, err := ix.file.GetPage(ctx, n.pageNum())
		if err != nil {
			return fmt.Errorf("write node: %w", err)
		}
		defer ix.file.UnpinPage(nodePage.Num)

		if err := ix.file.MarkDirty(nodePage.Num); err != nil {
			return fmt.Errorf("write node: %w", err)
		}
		return n.marshal(nodePage.Data)
	})
}

func (ix *Index) checkOpen() error {
	if ix.closed {
		return ErrIndexClosed
	}
	return nil
}

// getNode returns the node pinned, decoding it from its page on first use.
func (ix *Index) getNode(ctx context.Context, num uint32) (node, error) {
	nodePage, err := ix.file.GetPage(ctx, num)
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}

	if n, ok := ix.nodes.get(num); ok {
		return n, nil
	}

	n, err := unmarshalNode(ix.layout, num, nodePage.Data)
	if err != nil {
		ix.file.UnpinPage(num)
		return nil, err
	}
	ix.nodes.put(n)

	return n, nil
}

func (ix *Index) unpinNode(n node) {
	ix.file.UnpinPage(n.pageNum())
}

// allocateNodePage returns the number of a fresh pinned, dirty page.
func (ix *Index) allocateNodePage(ctx context.Context) (uint32, error) {
	nodePage, err := ix.file.AllocatePage(ctx)
	if err != nil {
		return 0, fmt.Errorf("create node: %w", err)
	}
	if err := ix.file.MarkDirty(nodePage.Num); err != nil {
		ix.file.UnpinPage(nodePage.Num)
		return 0, fmt.Errorf("create node: %w", err)
	}
	ix.header.NumPages += 1
	return nodePage.Num, nil
}

// takeReservedPage hands out the next page reserved by reservePages.
func (ix *Index) takeReservedPage() (uint32, error) {
	if len(ix.reserved) == 0 {
		ix.logger.DPanic("node created without a reserved page", zap.String("path", ix.path))
		return 0, fmt.Errorf("create node: %w", errNoReservedPage)
	}
	num := ix.reserved[0]
	ix.reserved = ix.reserved[1:]
	return num, nil
}

func (ix *Index) createLeafNode(root bool) (*leafNode, error) {
	num, err := ix.takeReservedPage()
	if err != nil {
		return nil, err
	}
	n := newLeafNode(ix.layout, num, root)
	ix.nodes.put(n)
	return n, nil
}

func (ix *Index) createNonLeafNode(root bool) (*nonLeafNode, error) {
	num, err := ix.takeReservedPage()
	if err != nil {
		return nil, err
	}
	n := newNonLeafNode(ix.layout, num, root)
	ix.nodes.put(n)
	return n, nil
}
