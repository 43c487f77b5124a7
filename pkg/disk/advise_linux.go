//go:build linux
// +build linux

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// Linux: sequential access hint for freshly created segments.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
