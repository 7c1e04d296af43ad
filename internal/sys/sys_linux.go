//go:build linux

package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

// DataSync flushes the file's data to stable storage without forcing a
// metadata sync.
func DataSync(file *os.File) error {
	return unix.Fdatasync(int(file.Fd()))
}
