package page

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	gen        = gofakeit.New(time.Now().Unix())
	testLogger = zap.NewNop()
)

func newTestFile(t *testing.T, opts ...Option) (*PagedFile, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "paged_file")
	aFile, err := Create(testLogger, path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { aFile.Close() })

	return aFile, path
}

func allocatePages(t *testing.T, aFile *PagedFile, n int) {
	t.Helper()

	for range n {
		_, err := aFile.AllocatePage(context.Background())
		require.NoError(t, err)
	}
}

func unpinPages(aFile *PagedFile, n int) {
	for i := range n {
		aFile.UnpinPage(uint32(i))
	}
}

func TestPage_Marshal(t *testing.T) {
	t.Parallel()

	aPage := newPage(17)
	assert.Len(t, aPage.Data, DataSize)
	assert.Equal(t, fillByte, aPage.Data[0])
	assert.Equal(t, fillByte, aPage.Data[DataSize-1])

	copy(aPage.Data, []byte(gen.LetterN(100)))

	buf, err := aPage.Marshal(nil)
	require.NoError(t, err)
	assert.Len(t, buf, PageSize)
	assert.Equal(t, []byte{17, 0, 0, 0}, buf[:TagSize])

	recreated := new(Page)
	tag := recreated.Unmarshal(buf)
	assert.Equal(t, uint32(17), tag)
	assert.Equal(t, aPage, recreated)
}

func TestCreate_AlreadyExists(t *testing.T) {
	t.Parallel()

	_, path := newTestFile(t)

	_, err := Create(testLogger, path)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// The existing file must survive the failed create
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_NotFound(t *testing.T) {
	t.Parallel()

	_, err := Open(testLogger, filepath.Join(t.TempDir(), "bogus"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_InvalidBufferSize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "paged_file")
	_, err := Create(testLogger, path, WithBufferSize(0))
	require.Error(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_Empty(t *testing.T) {
	t.Parallel()

	aFile, path := newTestFile(t)
	require.NoError(t, aFile.Close())

	aFile, err := Open(testLogger, path)
	require.NoError(t, err)
	defer aFile.Close()

	assert.Equal(t, uint32(0), aFile.NumPages())
	assert.Equal(t, path, aFile.Path())

	_, ok, err := aFile.GetFirstPage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClose_Twice(t *testing.T) {
	t.Parallel()

	aFile, _ := newTestFile(t)
	require.NoError(t, aFile.Close())
	assert.NoError(t, aFile.Close())

	_, err := aFile.AllocatePage(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = aFile.GetPage(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, aFile.MarkDirty(0), ErrClosed)
	aFile.UnpinPage(0)
}
