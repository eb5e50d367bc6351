package index

import "fmt"

var (
	ErrDataFileNotFound       = fmt.Errorf("data file does not exist")
	ErrInvalidIndexNo         = fmt.Errorf("index number must not be negative")
	ErrIndexExists            = fmt.Errorf("index already exists")
	ErrIndexNotFound          = fmt.Errorf("index does not exist")
	ErrIndexClosed            = fmt.Errorf("index is closed")
	ErrCorruptHeader          = fmt.Errorf("corrupt index header")
	ErrCorruptNode            = fmt.Errorf("corrupt index node")
	ErrInvalidBranchingFactor = fmt.Errorf("invalid branching factor")
	ErrDuplicateKey           = fmt.Errorf("duplicate key")
	ErrEntryNotFound          = fmt.Errorf("index entry not found")
	ErrNodeOverflow           = fmt.Errorf("index node overflow")
	ErrCheckFailed            = fmt.Errorf("index check failed")

	errNoReservedPage = fmt.Errorf("no reserved page")
)
