//go:build darwin || linux

package mmapfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile creates a shared read-only mapping of the whole file.
func mapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

// unmapFile releases a mapping created by mapFile.
func unmapFile(data []byte) error {
	return unix.Munmap(data)
}
