package page

import (
	"errors"

	"github.com/nettee/pancake/internal/sys"
)

var (
	ErrAlreadyExists   = errors.New("paged file already exists")
	ErrNotFound        = errors.New("paged file does not exist")
	ErrClosed          = errors.New("paged file is closed")
	ErrLocked          = sys.ErrLocked
	ErrBufferFull      = errors.New("page buffer is full")
	ErrPageOutOfRange  = errors.New("page number out of range")
	ErrPageDisposed    = errors.New("page is disposed")
	ErrPagePinned      = errors.New("page is pinned")
	ErrPageNotBuffered = errors.New("page is not buffered")
	ErrPageNotPinned   = errors.New("page is not pinned")
	ErrCorruptPage     = errors.New("corrupt page")
)
