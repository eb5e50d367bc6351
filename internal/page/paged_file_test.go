package page

import (
	"context"
	"encoding/binary"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPagedFile_AllocatePage(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t, WithBufferSize(100))
	)

	for i := range 50 {
		aPage, err := aFile.AllocatePage(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), aPage.Num)
		assert.Equal(t, fillByte, aPage.Data[0])
	}
	assert.Equal(t, uint32(50), aFile.NumPages())
	assert.Equal(t, 50, aFile.NumBuffered())
}

func TestPagedFile_DisposePage_ReuseLIFO(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t)
	)

	allocatePages(t, aFile, 10)
	unpinPages(aFile, 10)

	require.NoError(t, aFile.DisposePage(ctx, 3))
	require.NoError(t, aFile.DisposePage(ctx, 7))
	require.NoError(t, aFile.DisposePage(ctx, 5))

	for _, expected := range []uint32{5, 7, 3, 10} {
		aPage, err := aFile.AllocatePage(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, aPage.Num)
	}
	assert.Equal(t, uint32(11), aFile.NumPages())
}

func TestPagedFile_DisposePage_Errors(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t)
	)

	allocatePages(t, aFile, 3)

	t.Run("pinned page", func(t *testing.T) {
		err := aFile.DisposePage(ctx, 1)
		assert.ErrorIs(t, err, ErrPagePinned)
	})

	t.Run("out of range", func(t *testing.T) {
		err := aFile.DisposePage(ctx, 3)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	})

	t.Run("already disposed", func(t *testing.T) {
		aFile.UnpinPage(2)
		require.NoError(t, aFile.DisposePage(ctx, 2))
		err := aFile.DisposePage(ctx, 2)
		assert.ErrorIs(t, err, ErrPageDisposed)
	})

	t.Run("get disposed page", func(t *testing.T) {
		_, err := aFile.GetPage(ctx, 2)
		assert.ErrorIs(t, err, ErrPageDisposed)
	})

	t.Run("get out of range page", func(t *testing.T) {
		_, err := aFile.GetPage(ctx, 42)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	})
}

func TestPagedFile_Iterate(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t)
	)

	allocatePages(t, aFile, 10)
	unpinPages(aFile, 10)

	for _, num := range []uint32{0, 5, 9} {
		require.NoError(t, aFile.DisposePage(ctx, num))
	}

	t.Run("next skips disposed page", func(t *testing.T) {
		aPage, ok, err := aFile.GetNextPage(ctx, 4)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint32(6), aPage.Num)
		aFile.UnpinPage(aPage.Num)
	})

	t.Run("previous skips disposed page", func(t *testing.T) {
		aPage, ok, err := aFile.GetPreviousPage(ctx, 6)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint32(4), aPage.Num)
		aFile.UnpinPage(aPage.Num)
	})

	t.Run("first and last skip disposed pages", func(t *testing.T) {
		aPage, ok, err := aFile.GetFirstPage(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint32(1), aPage.Num)
		aFile.UnpinPage(aPage.Num)

		aPage, ok, err = aFile.GetLastPage(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint32(8), aPage.Num)
		aFile.UnpinPage(aPage.Num)
	})

	t.Run("no page past the boundaries", func(t *testing.T) {
		_, ok, err := aFile.GetNextPage(ctx, 8)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = aFile.GetPreviousPage(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = aFile.GetNextPage(ctx, 10)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	})

	t.Run("forward walk visits live pages only", func(t *testing.T) {
		var visited []uint32
		aPage, ok, err := aFile.GetFirstPage(ctx)
		for ; ok && err == nil; aPage, ok, err = aFile.GetNextPage(ctx, aPage.Num) {
			visited = append(visited, aPage.Num)
			aFile.UnpinPage(aPage.Num)
		}
		require.NoError(t, err)
		assert.Equal(t, []uint32{1, 2, 3, 4, 6, 7, 8}, visited)
	})
}

func TestPagedFile_NoLivePage(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t)
	)

	allocatePages(t, aFile, 2)
	unpinPages(aFile, 2)
	require.NoError(t, aFile.DisposePage(ctx, 0))
	require.NoError(t, aFile.DisposePage(ctx, 1))

	_, ok, err := aFile.GetFirstPage(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = aFile.GetLastPage(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPagedFile_WriteBack(t *testing.T) {
	t.Parallel()

	var (
		ctx         = context.Background()
		aFile, path = newTestFile(t)
		forced      = []byte(gen.LetterN(128))
		closeForced = []byte(gen.LetterN(128))
		notDirty    = []byte(gen.LetterN(128))
	)

	allocatePages(t, aFile, 3)

	// Page 0 is marked dirty and forced explicitly
	aPage, err := aFile.GetPage(ctx, 0)
	require.NoError(t, err)
	copy(aPage.Data, forced)
	require.NoError(t, aFile.MarkDirty(0))
	require.NoError(t, aFile.ForcePage(ctx, 0))

	// Page 1 is marked dirty and left for close to force
	aPage, err = aFile.GetPage(ctx, 1)
	require.NoError(t, err)
	copy(aPage.Data, closeForced)
	require.NoError(t, aFile.MarkDirty(1))

	// Page 2 is modified but never marked dirty
	aPage, err = aFile.GetPage(ctx, 2)
	require.NoError(t, err)
	copy(aPage.Data, notDirty)

	// The live buffer sees the modification
	aPage, err = aFile.GetPage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, notDirty, aPage.Data[:len(notDirty)])

	unpinPages(aFile, 3)
	require.NoError(t, aFile.Close())

	aFile, err = Open(testLogger, path)
	require.NoError(t, err)
	defer aFile.Close()

	assert.Equal(t, uint32(3), aFile.NumPages())

	aPage, err = aFile.GetPage(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, forced, aPage.Data[:len(forced)])

	aPage, err = aFile.GetPage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, closeForced, aPage.Data[:len(closeForced)])

	aPage, err = aFile.GetPage(ctx, 2)
	require.NoError(t, err)
	for _, b := range aPage.Data {
		require.Equal(t, fillByte, b)
	}
}

func TestPagedFile_MarkDirty_Errors(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t, WithBufferSize(1))
	)

	allocatePages(t, aFile, 1)
	aFile.UnpinPage(0)

	err := aFile.MarkDirty(0)
	assert.ErrorIs(t, err, ErrPageNotPinned)

	// Page 0 gets evicted to make room for page 1
	allocatePages(t, aFile, 1)
	err = aFile.MarkDirty(0)
	assert.ErrorIs(t, err, ErrPageNotBuffered)

	// Force of an unbuffered page is a no-op
	assert.NoError(t, aFile.ForcePage(ctx, 0))
}

func TestPagedFile_UnpinIdempotent(t *testing.T) {
	t.Parallel()

	aFile, _ := newTestFile(t)

	allocatePages(t, aFile, 1)
	aFile.UnpinPage(0)
	aFile.UnpinPage(0)
	aFile.UnpinPage(99)

	assert.Equal(t, 0, aFile.buffer.numPinned())
	assert.ErrorIs(t, aFile.MarkDirty(0), ErrPageNotPinned)
}

func TestPagedFile_BufferFull(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t, WithBufferSize(3))
	)

	allocatePages(t, aFile, 3)

	_, err := aFile.AllocatePage(ctx)
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, uint32(3), aFile.NumPages(), "failed allocation must not consume a page number")

	// Releasing a single page is enough to make progress
	aFile.UnpinPage(1)
	aPage, err := aFile.AllocatePage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), aPage.Num)
	assert.Equal(t, 3, aFile.NumBuffered())

	_, err = aFile.GetPage(ctx, 1)
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestPagedFile_EvictionWritesBackDirtyPage(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		aFile, _ = newTestFile(t, WithBufferSize(2))
		data     = []byte(gen.LetterN(256))
	)

	aPage, err := aFile.AllocatePage(ctx)
	require.NoError(t, err)
	copy(aPage.Data, data)
	require.NoError(t, aFile.MarkDirty(aPage.Num))
	aFile.UnpinPage(aPage.Num)

	// Pages 1 and 2 push page 0 out of the buffer
	allocatePages(t, aFile, 1)
	aFile.UnpinPage(1)
	allocatePages(t, aFile, 1)

	_, ok := aFile.buffer.get(0)
	require.False(t, ok)

	aPage, err = aFile.GetPage(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, data, aPage.Data[:len(data)])
}

func TestPagedFile_EvictsLeastRecentlyUnpinned(t *testing.T) {
	t.Parallel()

	aFile, _ := newTestFile(t, WithBufferSize(3))

	allocatePages(t, aFile, 3)
	aFile.UnpinPage(2)
	aFile.UnpinPage(0)
	aFile.UnpinPage(1)

	allocatePages(t, aFile, 1)
	_, ok := aFile.buffer.get(2)
	assert.False(t, ok, "page 2 was unpinned first")

	allocatePages(t, aFile, 1)
	_, ok = aFile.buffer.get(0)
	assert.False(t, ok, "page 0 was unpinned second")

	_, ok = aFile.buffer.get(1)
	assert.True(t, ok)
}

func TestPagedFile_ReopenKeepsDisposedPages(t *testing.T) {
	t.Parallel()

	var (
		ctx         = context.Background()
		aFile, path = newTestFile(t)
	)

	allocatePages(t, aFile, 5)
	unpinPages(aFile, 5)
	require.NoError(t, aFile.DisposePage(ctx, 3))
	require.NoError(t, aFile.DisposePage(ctx, 1))
	require.NoError(t, aFile.Close())

	aFile, err := Open(testLogger, path)
	require.NoError(t, err)
	defer aFile.Close()

	assert.Equal(t, uint32(5), aFile.NumPages())

	_, err = aFile.GetPage(ctx, 1)
	assert.ErrorIs(t, err, ErrPageDisposed)

	for _, expected := range []uint32{3, 1, 5} {
		aPage, err := aFile.AllocatePage(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, aPage.Num)
	}
}

func TestPagedFile_CorruptTag(t *testing.T) {
	t.Parallel()

	var (
		ctx         = context.Background()
		aFile, path = newTestFile(t)
	)

	allocatePages(t, aFile, 2)
	require.NoError(t, aFile.Close())

	raw, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	tag := make([]byte, TagSize)
	binary.LittleEndian.PutUint32(tag, 7)
	_, err = raw.WriteAt(tag, slotOffset(1))
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	aFile, err = Open(testLogger, path)
	require.NoError(t, err)
	defer aFile.Close()

	_, err = aFile.GetPage(ctx, 1)
	assert.ErrorIs(t, err, ErrCorruptPage)
}

func TestPagedFile_TrailingBytes(t *testing.T) {
	t.Parallel()

	aFile, path := newTestFile(t)
	allocatePages(t, aFile, 2)
	require.NoError(t, aFile.Close())

	raw, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = raw.Write([]byte("trailing"))
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	core, logs := observer.New(zapcore.WarnLevel)
	aFile, err = Open(zap.New(core), path)
	require.NoError(t, err)
	defer aFile.Close()

	assert.Equal(t, uint32(2), aFile.NumPages())
	assert.Equal(t, 1, logs.FilterMessage("paged file size is not divisible by page size").Len())
}

func TestPagedFile_Locked(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" {
		t.Skip("flock semantics checked on linux only")
	}

	aFile, path := newTestFile(t)

	_, err := Open(testLogger, path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, aFile.Close())

	aFile, err = Open(testLogger, path)
	require.NoError(t, err)
	assert.NoError(t, aFile.Close())
}

func TestPagedFile_ClosePinnedPagesWarns(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	aFile, err := Create(zap.New(core), t.TempDir()+"/paged_file")
	require.NoError(t, err)

	allocatePages(t, aFile, 2)
	require.NoError(t, aFile.Close())

	entries := logs.FilterMessage("closing paged file with pinned pages").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["pinned"])
}

func TestPagedFile_CloseForcesPastFailingPage(t *testing.T) {
	t.Parallel()

	aFile, path := newTestFile(t)

	allocatePages(t, aFile, 3)
	for _, num := range []uint32{0, 2} {
		require.NoError(t, aFile.MarkDirty(num))
	}
	unpinPages(aFile, 3)

	// Writes through a read-only handle fail for every dirty page
	readOnly, err := os.Open(path)
	require.NoError(t, err)
	writable := aFile.file
	aFile.file = readOnly
	defer writable.Close()

	err = aFile.Close()
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "force page 0")
	assert.ErrorContains(t, errs[1], "force page 2")
}

func TestPagedFile_DoneContext(t *testing.T) {
	t.Parallel()

	var (
		aFile, _    = newTestFile(t, WithBufferSize(1))
		ctx, cancel = context.WithCancel(context.Background())
	)
	cancel()

	// Page 0 ends up evicted, page 1 buffered
	allocatePages(t, aFile, 1)
	unpinPages(aFile, 1)
	allocatePages(t, aFile, 1)
	require.NoError(t, aFile.MarkDirty(1))
	aFile.UnpinPage(1)

	_, err := aFile.AllocatePage(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(2), aFile.NumPages())

	err = aFile.DisposePage(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = aFile.GetPage(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, aFile.ForcePage(ctx, 1), context.Canceled)
	assert.ErrorIs(t, aFile.ForceAllPages(ctx), context.Canceled)

	// A buffered page needs no disk access
	aPage, err := aFile.GetPage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), aPage.Num)
	aFile.UnpinPage(1)

	// Nothing was disposed and the dirty page is still written on close
	_, err = aFile.GetPage(context.Background(), 0)
	require.NoError(t, err)
	aFile.UnpinPage(0)
	assert.NoError(t, aFile.Close())
}
