// Package binaryio provides little-endian cursor codecs over byte sinks
// and sources.
//
// Every on-disk structure in the container format is written and read
// through these cursors, so higher layers never touch file positions or
// encoding/binary directly.
package binaryio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors.
var (
	// ErrTruncated is returned when a read requests more bytes than the
	// source has left.
	ErrTruncated = errors.New("grimoire: truncated input")

	// ErrStringTooLong is returned when a string exceeds the 65535-byte
	// limit of the u16 length prefix.
	ErrStringTooLong = errors.New("grimoire: string exceeds 65535 bytes")
)

// Writer is a sequential little-endian writer with position tracking.
//
// When the underlying sink also implements io.WriteSeeker, Writer supports
// seeking and patching previously written regions.
type Writer struct {
	w   io.Writer
	pos int64
}

// NewWriter creates a Writer over w. The sink is assumed to be positioned
// at offset zero.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Position returns the current write offset.
func (w *Writer) Position() int64 { return w.pos }

// Write writes raw bytes and advances the position.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}

// WriteU8 writes an unsigned 8-bit integer.
func (w *Writer) WriteU8(v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteU16 writes an unsigned 16-bit little-endian integer.
func (w *Writer) WriteU16(v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteU32 writes an unsigned 32-bit little-endian integer.
func (w *Writer) WriteU32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteU64 writes an unsigned 64-bit little-endian integer.
func (w *Writer) WriteU64(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteI8 writes a signed 8-bit integer.
func (w *Writer) WriteI8(v int8) error { return w.WriteU8(uint8(v)) }

// WriteI16 writes a signed 16-bit little-endian integer.
func (w *Writer) WriteI16(v int16) error { return w.WriteU16(uint16(v)) }

// WriteI32 writes a signed 32-bit little-endian integer.
func (w *Writer) WriteI32(v int32) error { return w.WriteU32(uint32(v)) }

// WriteI64 writes a signed 64-bit little-endian integer.
func (w *Writer) WriteI64(v int64) error { return w.WriteU64(uint64(v)) }

// WriteString writes a u16-length-prefixed UTF-8 string.
//
// Strings longer than 65535 encoded bytes return ErrStringTooLong.
func (w *Writer) WriteString(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	if err := w.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// Reserve writes n zero bytes and returns the offset where they start.
// The region can be filled in later with Patch.
func (w *Writer) Reserve(n int) (int64, error) {
	start := w.pos
	_, err := w.Write(make([]byte, n))
	return start, err
}

// Seek moves the cursor to an absolute offset. The underlying sink must
// implement io.Seeker.
func (w *Writer) Seek(pos int64) error {
	s, ok := w.w.(io.Seeker)
	if !ok {
		return errors.New("grimoire: writer sink does not support seeking")
	}
	if _, err := s.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	w.pos = pos
	return nil
}

// Patch overwrites bytes at an earlier offset and restores the current
// position afterwards.
func (w *Writer) Patch(pos int64, p []byte) error {
	cur := w.pos
	if err := w.Seek(pos); err != nil {
		return err
	}
	if _, err := w.Write(p); err != nil {
		return err
	}
	return w.Seek(cur)
}

// PatchU32 overwrites a u32 at an earlier offset.
func (w *Writer) PatchU32(pos int64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return w.Patch(pos, buf[:])
}

// PatchU64 overwrites a u64 at an earlier offset.
func (w *Writer) PatchU64(pos int64, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return w.Patch(pos, buf[:])
}

// Reader is a sequential little-endian reader with position tracking.
//
// Short reads are never silent: reading past the end of the source
// returns ErrTruncated.
type Reader struct {
	r   io.Reader
	pos int64
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Position returns the current read offset.
func (r *Reader) Position() int64 { return r.pos }

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.pos += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrTruncated, n, read)
		}
		return nil, err
	}
	return buf, nil
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads an unsigned 16-bit little-endian integer.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads an unsigned 32-bit little-endian integer.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads an unsigned 64-bit little-endian integer.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadString reads a u16-length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if s, ok := r.r.(io.Seeker); ok {
		if _, err := s.Seek(int64(n), io.SeekCurrent); err != nil {
			return err
		}
		r.pos += int64(n)
		return nil
	}
	_, err := r.ReadBytes(n)
	return err
}

// Seek moves the cursor to an absolute offset. The underlying source must
// implement io.Seeker.
func (r *Reader) Seek(pos int64) error {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return errors.New("grimoire: reader source does not support seeking")
	}
	if _, err := s.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	r.pos = pos
	return nil
}
