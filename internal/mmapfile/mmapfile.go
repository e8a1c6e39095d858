// Package mmapfile provides read-only random access to a file through a
// shared memory map, with a plain pread fallback when mapping is
// unavailable.
//
// A mapped File serves Slice calls as zero-copy views into the mapping,
// so concurrent readers share pages without coordination. The fallback
// path uses positioned reads (ReadAt), which are also safe for concurrent
// use on a single descriptor.
package mmapfile

import (
	"fmt"
	"os"
)

// File is a read-only random-access file.
type File struct {
	f    *os.File
	data []byte // non-nil when memory-mapped
	size int64
}

// Open opens path for random access, preferring a read-only memory map.
// Mapping failures are not fatal; the File silently falls back to pread.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	mf := &File{f: f, size: info.Size()}
	if mf.size > 0 {
		if data, err := mapFile(f, mf.size); err == nil {
			mf.data = data
		}
	}
	return mf, nil
}

// OpenUnmapped opens path without attempting a memory map. Used when the
// caller explicitly wants the pread path.
func OpenUnmapped(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: info.Size()}, nil
}

// Size returns the file size in bytes.
func (f *File) Size() int64 { return f.size }

// Mapped reports whether the file is served from a memory map.
func (f *File) Mapped() bool { return f.data != nil }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.data != nil {
		if off < 0 || off >= f.size {
			return 0, fmt.Errorf("grimoire: read at %d beyond size %d", off, f.size)
		}
		n := copy(p, f.data[off:])
		if n < len(p) {
			return n, fmt.Errorf("grimoire: short read at %d", off)
		}
		return n, nil
	}
	return f.f.ReadAt(p, off)
}

// Slice returns n bytes starting at off. When mapped, the returned slice
// aliases the mapping and must be treated as immutable; otherwise a fresh
// buffer is read via pread.
func (f *File) Slice(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > f.size {
		return nil, fmt.Errorf("grimoire: slice [%d,%d) out of bounds (size %d)", off, off+int64(n), f.size)
	}
	if f.data != nil {
		return f.data[off : off+int64(n) : off+int64(n)], nil
	}
	buf := make([]byte, n)
	if _, err := f.f.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close unmaps and closes the file.
func (f *File) Close() error {
	if f.data != nil {
		err := unmapFile(f.data)
		f.data = nil
		if err != nil {
			f.f.Close()
			return err
		}
	}
	return f.f.Close()
}
