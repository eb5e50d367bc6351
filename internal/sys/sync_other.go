//go:build !linux

package sys

import "os"

func Datasync(f *os.File) error {
	return f.Sync()
}
