package grimoire

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/grimoire-vfs/grimoire/internal/pathutil"
)

// ChecksumHook computes per-entry content digests. Implementations are
// identified on the wire by a one-byte algorithm id stored in the file
// header; id 0 is reserved for "no checksum".
type ChecksumHook interface {
	// AlgoID returns the persisted algorithm id (1-255).
	AlgoID() uint8

	// DigestSize returns the digest length in bytes. Every entry in a
	// container stores exactly this many checksum bytes.
	DigestSize() int

	// Compute returns the digest of data.
	Compute(data []byte) []byte
}

// ChecksumVerifier is an optional extension of ChecksumHook for
// implementations with a cheaper verification path than
// recompute-and-compare.
type ChecksumVerifier interface {
	Verify(data, expected []byte) bool
}

// verifyChecksum checks data against an expected digest, using the hook's
// own Verify when it provides one.
func verifyChecksum(h ChecksumHook, data, expected []byte) bool {
	if v, ok := h.(ChecksumVerifier); ok {
		return v.Verify(data, expected)
	}
	return bytes.Equal(h.Compute(data), expected)
}

// CompressionHook compresses entry payloads. Implementations are
// identified by a one-byte algorithm id stored per entry; id 0 is
// reserved for "stored" (uncompressed).
type CompressionHook interface {
	// AlgoID returns the persisted algorithm id (1-255).
	AlgoID() uint8

	// Compress returns the compressed form of data.
	Compress(data []byte) ([]byte, error)

	// Decompress inverts Compress. rawSize is the expected decompressed
	// length, usable for buffer preallocation and as an integrity bound.
	Decompress(data []byte, rawSize int) ([]byte, error)
}

// IndexCryptoHook transforms the packed string-table region as a whole.
// It is never applied to entry records or payload. The flags id is stored
// in the file header's flags byte; 0 means no transform.
type IndexCryptoHook interface {
	// FlagsID returns the persisted flags value (1-255).
	FlagsID() uint8

	// Encrypt transforms the packed string-table blob for storage.
	Encrypt(data []byte) ([]byte, error)

	// Decrypt inverts Encrypt.
	Decrypt(data []byte) ([]byte, error)
}

// PathHash maps a normalized virtual path to the 64-bit hash entries are
// keyed by. Implementations must be deterministic; the builder detects
// collisions, so the hash need not be collision-free.
type PathHash interface {
	Hash(path string) uint64
}

// PathHashFunc adapts a plain function to the PathHash interface.
type PathHashFunc func(path string) uint64

// Hash implements PathHash.
func (f PathHashFunc) Hash(path string) uint64 { return f(path) }

// DefaultPathHash is the built-in path hash: the first 8 bytes of the
// BLAKE3 digest of the normalized path, little-endian.
var DefaultPathHash PathHash = PathHashFunc(pathutil.Hash)

// XXHashPath is a faster non-cryptographic alternative to
// DefaultPathHash: xxHash64 of the normalized path. Containers built
// with it must be opened with it.
var XXHashPath PathHash = PathHashFunc(func(path string) uint64 {
	return xxhash.Sum64String(pathutil.Normalize(path))
})

// Registry resolves persisted algorithm ids back to hook implementations.
//
// A Registry is plain data shared by builders and readers; it is not safe
// for concurrent mutation, so register everything up front.
type Registry struct {
	checksums    map[uint8]ChecksumHook
	compressors  map[uint8]CompressionHook
	indexCryptos map[uint8]IndexCryptoHook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checksums:    make(map[uint8]ChecksumHook),
		compressors:  make(map[uint8]CompressionHook),
		indexCryptos: make(map[uint8]IndexCryptoHook),
	}
}

// RegisterChecksum adds a checksum hook. Id 0 is reserved and duplicate
// ids are rejected.
func (r *Registry) RegisterChecksum(h ChecksumHook) error {
	id := h.AlgoID()
	if id == 0 {
		return fmt.Errorf("grimoire: checksum algorithm id 0 is reserved")
	}
	if _, ok := r.checksums[id]; ok {
		return fmt.Errorf("grimoire: checksum algorithm id %d already registered", id)
	}
	r.checksums[id] = h
	return nil
}

// RegisterCompression adds a compression hook. Id 0 is reserved and
// duplicate ids are rejected.
func (r *Registry) RegisterCompression(h CompressionHook) error {
	id := h.AlgoID()
	if id == 0 {
		return fmt.Errorf("grimoire: compression algorithm id 0 is reserved")
	}
	if _, ok := r.compressors[id]; ok {
		return fmt.Errorf("grimoire: compression algorithm id %d already registered", id)
	}
	r.compressors[id] = h
	return nil
}

// RegisterIndexCrypto adds an index-crypto hook. Flags id 0 is reserved
// and duplicate ids are rejected.
func (r *Registry) RegisterIndexCrypto(h IndexCryptoHook) error {
	id := h.FlagsID()
	if id == 0 {
		return fmt.Errorf("grimoire: index crypto flags id 0 is reserved")
	}
	if _, ok := r.indexCryptos[id]; ok {
		return fmt.Errorf("grimoire: index crypto flags id %d already registered", id)
	}
	r.indexCryptos[id] = h
	return nil
}

// Checksum resolves a checksum hook by id.
func (r *Registry) Checksum(id uint8) (ChecksumHook, error) {
	if h, ok := r.checksums[id]; ok {
		return h, nil
	}
	return nil, &UnknownAlgorithmError{Kind: "checksum", ID: id}
}

// Compression resolves a compression hook by id.
func (r *Registry) Compression(id uint8) (CompressionHook, error) {
	if h, ok := r.compressors[id]; ok {
		return h, nil
	}
	return nil, &UnknownAlgorithmError{Kind: "compression", ID: id}
}

// IndexCrypto resolves an index-crypto hook by flags id.
func (r *Registry) IndexCrypto(id uint8) (IndexCryptoHook, error) {
	if h, ok := r.indexCryptos[id]; ok {
		return h, nil
	}
	return nil, &UnknownAlgorithmError{Kind: "index crypto", ID: id}
}
