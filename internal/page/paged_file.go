package page

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nettee/pancake/internal/sys"
	"github.com/nettee/pancake/pkg/bitwise"
)

// PagedFile is a disk file made of fixed-size pages. It is the only
// component touching the disk and it is not safe for concurrent use.
//
// Every page returned by AllocatePage or GetPage is pinned and must be
// released with UnpinPage, otherwise the buffer eventually reports ErrBufferFull.
// Operations that would touch the disk return the context error once ctx is done.
type PagedFile struct {
	logger     *zap.Logger
	path       string
	file       *os.File
	numPages   uint32 // next never used page number
	bufferSize int
	buffer     *pageBuffer
	metrics    *Metrics
	closed     bool

	// disposed page numbers, reused last in first out
	disposed    []uint32
	disposedSet bitwise.Bitmap
}

// Create creates a new empty paged file. The path must not exist yet.
func Create(logger *zap.Logger, path string, opts ...Option) (*PagedFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0664)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("create paged file %s: %w", path, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("create paged file %s: %w", path, err)
	}

	f, err := newPagedFile(logger, path, file, opts...)
	if err != nil {
		return nil, multierr.Append(err, os.Remove(path))
	}

	logger.Info("created paged file", zap.String("path", path))

	return f, nil
}

// Open opens a paged file previously made by Create.
func Open(logger *zap.Logger, path string, opts ...Option) (*PagedFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open paged file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open paged file %s: %w", path, err)
	}

	f, err := newPagedFile(logger, path, file, opts...)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("stat %s: %w", path, err), f.release())
	}
	fileSize := stat.Size()

	// Basic check to verify file size is a multiple of page size (4096B)
	if fileSize%PageSize != 0 {
		logger.Warn("paged file size is not divisible by page size",
			zap.String("path", path),
			zap.Int64("size", fileSize),
		)
	}
	f.numPages = uint32(fileSize / PageSize)

	if err := f.loadDisposed(); err != nil {
		return nil, multierr.Append(err, f.release())
	}

	logger.Info("opened paged file",
		zap.String("path", path),
		zap.Uint32("pages", f.numPages),
		zap.Int("disposed", len(f.disposed)),
	)

	return f, nil
}

func newPagedFile(logger *zap.Logger, path string, file *os.File, opts ...Option) (*PagedFile, error) {
	f := &PagedFile{
		logger:     logger,
		path:       path,
		file:       file,
		bufferSize: DefaultBufferSize,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.bufferSize <= 0 {
		return nil, multierr.Append(
			fmt.Errorf("invalid buffer size %d", f.bufferSize),
			file.Close(),
		)
	}
	f.buffer = newPageBuffer(f.bufferSize)

	if err := sys.Lock(file); err != nil {
		return nil, multierr.Append(fmt.Errorf("lock %s: %w", path, err), file.Close())
	}

	return f, nil
}

// loadDisposed rebuilds the reuse stack from the slot tags. The original
// disposal order is not persisted, so the highest page number is reused first.
func (f *PagedFile) loadDisposed() error {
	tag := make([]byte, TagSize)
	for num := uint32(0); num < f.numPages; num++ {
		if _, err := f.file.ReadAt(tag, slotOffset(num)); err != nil {
			return fmt.Errorf("read tag of page %d: %w", num, err)
		}
		if binary.LittleEndian.Uint32(tag) == DisposedTag {
			f.pushDisposed(num)
		}
	}
	return nil
}

func (f *PagedFile) Path() string {
	return f.path
}

// NumPages returns the number of page slots in the file, disposed ones included.
func (f *PagedFile) NumPages() uint32 {
	return f.numPages
}

func (f *PagedFile) NumBuffered() int {
	return f.buffer.size
}

// AllocatePage returns a new pinned page, reusing the most recently
// disposed page number if there is one.
func (f *PagedFile) AllocatePage(ctx context.Context) (*Page, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("allocate page: %w", err)
	}
	if err := f.makeRoom(); err != nil {
		return nil, fmt.Errorf("allocate page: %w", err)
	}

	var (
		num    uint32
		reused = len(f.disposed) > 0
	)
	if reused {
		num = f.popDisposed()
	} else {
		num = f.numPages
		f.numPages += 1
	}

	aPage := newPage(num)
	if err := f.writePage(aPage); err != nil {
		if reused {
			f.pushDisposed(num)
		} else {
			f.numPages -= 1
		}
		return nil, fmt.Errorf("allocate page %d: %w", num, err)
	}

	f.buffer.putAndPin(aPage)
	f.metrics.addPinned(1)
	f.metrics.allocate()

	f.logger.Debug("allocated page", zap.Uint32("page", num), zap.Bool("reused", reused))

	return aPage, nil
}

// DisposePage removes a live, unpinned page. Its number is reused by a later AllocatePage.
func (f *PagedFile) DisposePage(ctx context.Context, num uint32) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := f.checkLive(num); err != nil {
		return fmt.Errorf("dispose page: %w", err)
	}
	if bp, ok := f.buffer.get(num); ok && bp.pinned {
		return fmt.Errorf("dispose page %d: %w", num, ErrPagePinned)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dispose page %d: %w", num, err)
	}

	tag := make([]byte, TagSize)
	binary.LittleEndian.PutUint32(tag, DisposedTag)
	if _, err := f.file.WriteAt(tag, slotOffset(num)); err != nil {
		return fmt.Errorf("dispose page %d: %w", num, err)
	}
	f.metrics.write()

	f.buffer.remove(num)
	f.pushDisposed(num)
	f.metrics.dispose()

	f.logger.Debug("disposed page", zap.Uint32("page", num))

	return nil
}

// GetPage returns the live page pinned, reading it from disk unless it is buffered.
func (f *PagedFile) GetPage(ctx context.Context, num uint32) (*Page, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if err := f.checkLive(num); err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	if bp, ok := f.buffer.get(num); ok {
		if f.buffer.pin(bp) {
			f.metrics.addPinned(1)
		}
		f.metrics.hit()
		return bp.Page, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get page %d: %w", num, err)
	}
	f.metrics.miss()
	if err := f.makeRoom(); err != nil {
		return nil, fmt.Errorf("get page %d: %w", num, err)
	}

	aPage, err := f.readPage(num)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", num, err)
	}

	f.buffer.putAndPin(aPage)
	f.metrics.addPinned(1)

	return aPage, nil
}

// GetFirstPage returns the live page with the lowest number. The bool is
// false when the file has no live page.
func (f *PagedFile) GetFirstPage(ctx context.Context) (*Page, bool, error) {
	if err := f.checkOpen(); err != nil {
		return nil, false, err
	}
	for num := uint32(0); num < f.numPages; num++ {
		if f.isDisposed(num) {
			continue
		}
		return f.found(ctx, num)
	}
	return nil, false, nil
}

// GetLastPage returns the live page with the highest number.
func (f *PagedFile) GetLastPage(ctx context.Context) (*Page, bool, error) {
	if err := f.checkOpen(); err != nil {
		return nil, false, err
	}
	for i := f.numPages; i > 0; i-- {
		if f.isDisposed(i - 1) {
			continue
		}
		return f.found(ctx, i-1)
	}
	return nil, false, nil
}

// GetPreviousPage returns the closest live page below num.
func (f *PagedFile) GetPreviousPage(ctx context.Context, num uint32) (*Page, bool, error) {
	if err := f.checkOpen(); err != nil {
		return nil, false, err
	}
	if num >= f.numPages {
		return nil, false, fmt.Errorf("get previous page: %w: %d", ErrPageOutOfRange, num)
	}
	for i := num; i > 0; i-- {
		if f.isDisposed(i - 1) {
			continue
		}
		return f.found(ctx, i-1)
	}
	return nil, false, nil
}

// GetNextPage returns the closest live page above num.
func (f *PagedFile) GetNextPage(ctx context.Context, num uint32) (*Page, bool, error) {
	if err := f.checkOpen(); err != nil {
		return nil, false, err
	}
	if num >= f.numPages {
		return nil, false, fmt.Errorf("get next page: %w: %d", ErrPageOutOfRange, num)
	}
	for next := num + 1; next < f.numPages; next++ {
		if f.isDisposed(next) {
			continue
		}
		return f.found(ctx, next)
	}
	return nil, false, nil
}

func (f *PagedFile) found(ctx context.Context, num uint32) (*Page, bool, error) {
	aPage, err := f.GetPage(ctx, num)
	if err != nil {
		return nil, false, err
	}
	return aPage, true, nil
}

// MarkDirty flags a buffered, pinned page to be written back before eviction or close.
func (f *PagedFile) MarkDirty(num uint32) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	bp, ok := f.buffer.get(num)
	if !ok {
		return fmt.Errorf("mark dirty page %d: %w", num, ErrPageNotBuffered)
	}
	if !bp.pinned {
		return fmt.Errorf("mark dirty page %d: %w", num, ErrPageNotPinned)
	}
	bp.dirty = true
	return nil
}

// UnpinPage releases a pin. Unpinning a page that is not pinned or not buffered is a no-op.
func (f *PagedFile) UnpinPage(num uint32) {
	if f.closed {
		return
	}
	bp, ok := f.buffer.get(num)
	if !ok {
		return
	}
	if f.buffer.unpin(bp) {
		f.metrics.addPinned(-1)
	}
}

// ForcePage writes a buffered dirty page to disk.
func (f *PagedFile) ForcePage(ctx context.Context, num uint32) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("force page %d: %w", num, err)
	}
	forced, err := f.forcePage(num)
	if err != nil {
		return err
	}
	if forced {
		return sys.Datasync(f.file)
	}
	return nil
}

// ForceAllPages writes every buffered dirty page to disk.
func (f *PagedFile) ForceAllPages(ctx context.Context) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("force all pages: %w", err)
	}
	return f.forceAll()
}

// Close forces dirty pages and releases the file. Pages still pinned are
// logged, their contents are forced like any other.
func (f *PagedFile) Close() error {
	if f.closed {
		return nil
	}

	err := f.forceAll()

	if pinned := f.buffer.numPinned(); pinned > 0 {
		f.logger.Warn("closing paged file with pinned pages",
			zap.String("path", f.path),
			zap.Int("pinned", pinned),
		)
		f.metrics.addPinned(-pinned)
	}

	err = multierr.Append(err, f.release())
	f.closed = true

	f.logger.Info("closed paged file", zap.String("path", f.path))

	return err
}

func (f *PagedFile) release() error {
	return multierr.Append(sys.Unlock(f.file), f.file.Close())
}

// forceAll writes every dirty page, carrying on past pages that fail.
func (f *PagedFile) forceAll() error {
	var (
		forcedAny bool
		err       error
	)
	f.buffer.each(func(bp *bufferedPage) {
		forced, forceErr := f.forcePage(bp.Num)
		forcedAny = forcedAny || forced
		err = multierr.Append(err, forceErr)
	})
	if forcedAny {
		err = multierr.Append(err, sys.Datasync(f.file))
	}
	return err
}

func (f *PagedFile) forcePage(num uint32) (bool, error) {
	bp, ok := f.buffer.get(num)
	if !ok || !bp.dirty {
		return false, nil
	}
	if err := f.writePage(bp.Page); err != nil {
		return false, fmt.Errorf("force page %d: %w", num, err)
	}
	bp.dirty = false
	return true, nil
}

// makeRoom evicts the least recently unpinned page if the buffer is full.
func (f *PagedFile) makeRoom() error {
	if !f.buffer.isFull() {
		return nil
	}

	victim, ok := f.buffer.victim()
	if !ok {
		return ErrBufferFull
	}
	if victim.dirty {
		if err := f.writePage(victim.Page); err != nil {
			return fmt.Errorf("write back page %d: %w", victim.Num, err)
		}
	}
	f.buffer.remove(victim.Num)
	f.metrics.evict()

	f.logger.Debug("evicted page", zap.Uint32("page", victim.Num), zap.Bool("dirty", victim.dirty))

	return nil
}

func (f *PagedFile) readPage(num uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	if _, err := f.file.ReadAt(buf, slotOffset(num)); err != nil {
		return nil, err
	}
	f.metrics.read()

	aPage := new(Page)
	if tag := aPage.Unmarshal(buf); tag != num {
		return nil, fmt.Errorf("%w: page %d has tag %d", ErrCorruptPage, num, tag)
	}
	return aPage, nil
}

func (f *PagedFile) writePage(aPage *Page) error {
	buf, err := aPage.Marshal(nil)
	if err != nil {
		return err
	}
	if _, err := f.file.WriteAt(buf, slotOffset(aPage.Num)); err != nil {
		return err
	}
	f.metrics.write()
	return nil
}

func (f *PagedFile) checkOpen() error {
	if f.closed {
		return ErrClosed
	}
	return nil
}

func (f *PagedFile) checkLive(num uint32) error {
	if num >= f.numPages {
		return fmt.Errorf("%w: %d, file has %d pages", ErrPageOutOfRange, num, f.numPages)
	}
	if f.isDisposed(num) {
		return fmt.Errorf("%w: %d", ErrPageDisposed, num)
	}
	return nil
}

func (f *PagedFile) isDisposed(num uint32) bool {
	return f.disposedSet.IsSet(num)
}

func (f *PagedFile) pushDisposed(num uint32) {
	f.disposed = append(f.disposed, num)
	f.disposedSet.Set(num)
}

func (f *PagedFile) popDisposed() uint32 {
	num := f.disposed[len(f.disposed)-1]
	f.disposed = f.disposed[:len(f.disposed)-1]
	f.disposedSet.Unset(num)
	return num
}
