//go:build !darwin && !linux

package mmapfile

import (
	"errors"
	"os"
)

// mapFile always fails on platforms without mmap support; callers fall
// back to positioned reads.
func mapFile(_ *os.File, _ int64) ([]byte, error) {
	return nil, errors.New("grimoire: memory mapping not supported")
}

func unmapFile(_ []byte) error { return nil }
