//go:build unix && !linux

package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

// DataSync flushes the file to stable storage; non-linux unixes have no
// fdatasync, a full fsync stands in.
func DataSync(file *os.File) error {
	return unix.Fsync(int(file.Fd()))
}
