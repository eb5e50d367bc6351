//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package sys

import "os"

func Lock(f *os.File) error {
	return nil
}

func Unlock(f *os.File) error {
	return nil
}
