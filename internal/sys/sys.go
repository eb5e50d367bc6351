// Package sys wraps the platform specific file calls used by the paged file.
package sys

import "errors"

var ErrLocked = errors.New("file is locked by another handle")
