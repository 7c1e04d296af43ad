//go:build windows

package sys

import (
	"os"
)

func DataSync(file *os.File) error {
	return file.Sync()
}
