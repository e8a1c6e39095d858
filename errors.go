package grimoire

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/grimoire-vfs/grimoire/internal/binaryio"
)

// Sentinel errors re-exported from internal/binaryio.
var (
	// ErrTruncated is returned when a container ends before a record does.
	ErrTruncated = binaryio.ErrTruncated

	// ErrStringTooLong is returned when a path fragment exceeds the
	// 65535-byte limit of the u16 length prefix.
	ErrStringTooLong = binaryio.ErrStringTooLong
)

// Sentinel errors.
var (
	// ErrInvalidFormat is returned when magic, version, or structure does
	// not match the container format.
	ErrInvalidFormat = errors.New("grimoire: invalid container format")

	// ErrWrongMode is returned when a manifest is opened as an archive or
	// vice versa.
	ErrWrongMode = errors.New("grimoire: wrong container mode")

	// ErrNotFound is returned when a virtual path is not in the container.
	ErrNotFound = errors.New("grimoire: path not found")

	// ErrIndexLocked is returned by path-producing operations when the
	// index region is encrypted and no crypto hook was supplied.
	ErrIndexLocked = errors.New("grimoire: index locked, crypto hook required")

	// ErrHashCollision is returned when two distinct normalized paths
	// produce the same 64-bit path hash.
	ErrHashCollision = errors.New("grimoire: path hash collision")

	// ErrUnknownAlgorithm is returned when a persisted algorithm id has no
	// registered hook.
	ErrUnknownAlgorithm = errors.New("grimoire: unknown algorithm id")

	// ErrCorrupted is returned when stored content fails checksum
	// verification.
	ErrCorrupted = errors.New("grimoire: checksum mismatch")

	// ErrBuilderSealed is returned when Add is called after Build.
	ErrBuilderSealed = errors.New("grimoire: builder already built")
)

// CollisionError reports two distinct normalized paths hashing to the same
// value. It matches ErrHashCollision with errors.Is.
type CollisionError struct {
	Existing string
	Added    string
	Hash     uint64
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("grimoire: path hash collision: %q and %q both hash to %#016x",
		e.Existing, e.Added, e.Hash)
}

func (e *CollisionError) Unwrap() error { return ErrHashCollision }

// UnknownAlgorithmError reports an unregistered algorithm id. Kind is
// "checksum", "compression", or "index crypto". It matches
// ErrUnknownAlgorithm with errors.Is.
type UnknownAlgorithmError struct {
	Kind string
	ID   uint8
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("grimoire: unknown %s algorithm id %d", e.Kind, e.ID)
}

func (e *UnknownAlgorithmError) Unwrap() error { return ErrUnknownAlgorithm }

// CorruptionError reports a checksum mismatch, carrying both digests so
// callers can log or diff them. It matches ErrCorrupted with errors.Is.
type CorruptionError struct {
	Path     string
	Expected []byte
	Actual   []byte
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("grimoire: %s: checksum mismatch: expected %s, got %s",
		e.Path, hex.EncodeToString(e.Expected), hex.EncodeToString(e.Actual))
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupted }
