package grimoire

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/grimoire-vfs/grimoire/internal/binaryio"
	"github.com/grimoire-vfs/grimoire/internal/pathutil"
	"github.com/grimoire-vfs/grimoire/internal/schema"
	"github.com/grimoire-vfs/grimoire/internal/stringtable"
)

// ManifestBuilder accumulates (virtual path, payload) pairs and writes an
// index-only container describing them.
//
// A builder is single-writer: Add and Build must not be called
// concurrently. After Build succeeds the builder is sealed and further
// calls return ErrBuilderSealed.
type ManifestBuilder struct {
	cfg        builderConfig
	dict       *stringtable.Dictionary
	entries    []schema.ManifestEntry
	hashToPath map[uint64]string
	sealed     bool
}

// NewManifestBuilder creates a builder for an index-only container.
func NewManifestBuilder(opts ...BuilderOption) *ManifestBuilder {
	return &ManifestBuilder{
		cfg:        newBuilderConfig(opts),
		dict:       stringtable.NewDictionary(),
		hashToPath: make(map[uint64]string),
	}
}

func (b *ManifestBuilder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

// Add records a virtual path with the given payload. The payload is only
// read to measure and checksum it; manifests do not store content.
//
// Re-adding an identical normalized path is a no-op. A distinct path
// hashing to an existing entry's value returns a CollisionError.
func (b *ManifestBuilder) Add(vfsPath string, data []byte) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	var checksum []byte
	if b.cfg.checksum != nil {
		checksum = b.cfg.checksum.Compute(data)
	}
	return b.AddEntry(vfsPath, uint64(len(data)), checksum)
}

// AddEntry records a virtual path with a precomputed size and checksum.
// Used by tooling (JSON import, manifest merge) that already holds entry
// metadata. The checksum length must match the configured hook's digest
// size.
func (b *ManifestBuilder) AddEntry(vfsPath string, rawSize uint64, checksum []byte) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if b.cfg.checksum != nil {
		if len(checksum) != b.cfg.checksum.DigestSize() {
			return fmt.Errorf("grimoire: checksum for %s is %d bytes, hook %d expects %d",
				vfsPath, len(checksum), b.cfg.checksum.AlgoID(), b.cfg.checksum.DigestSize())
		}
	} else if len(checksum) != 0 {
		return fmt.Errorf("grimoire: checksum supplied for %s but no checksum hook configured", vfsPath)
	}

	normalized := pathutil.Normalize(vfsPath)
	hash := b.cfg.pathHash.Hash(normalized)
	if existing, ok := b.hashToPath[hash]; ok {
		if existing == normalized {
			return nil
		}
		return &CollisionError{Existing: existing, Added: normalized, Hash: hash}
	}

	dir, name, ext := pathutil.Split(normalized)
	dirID, nameID, extID := b.dict.AddPath(dir, name, ext)
	if dirID > math.MaxUint16 || extID > math.MaxUint16 {
		return fmt.Errorf("grimoire: path dictionary overflow adding %s", normalized)
	}
	if nameID > math.MaxUint32 || len(b.entries) >= math.MaxUint32 {
		return fmt.Errorf("grimoire: entry count overflow adding %s", normalized)
	}

	b.hashToPath[hash] = normalized
	b.entries = append(b.entries, schema.ManifestEntry{
		PathHash: hash,
		DirID:    uint16(dirID),
		NameID:   uint32(nameID),
		ExtID:    uint16(extID),
		RawSize:  rawSize,
		Checksum: checksum,
	})
	return nil
}

// AddFile reads a local file and records it under vfsPath. An empty
// vfsPath mounts the file at the root under its base name.
func (b *ManifestBuilder) AddFile(localPath, vfsPath string) error {
	if vfsPath == "" {
		vfsPath = "/" + filepath.Base(localPath)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("grimoire: read %s: %w", localPath, err)
	}
	return b.Add(vfsPath, data)
}

// AddFS walks fsys and adds every regular file under mountPoint.
// Returns the number of entries added; files that were already present
// (duplicate no-ops) are not counted.
func (b *ManifestBuilder) AddFS(fsys fs.FS, mountPoint string) (int, error) {
	mount := pathutil.Normalize(mountPoint)
	before := b.Len()
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("grimoire: read %s: %w", path, err)
		}
		return b.Add(joinMount(mount, path), data)
	})
	return b.Len() - before, err
}

// AddDir adds every regular file under a local directory, mounted at
// mountPoint. Returns the number of files added.
func (b *ManifestBuilder) AddDir(dir, mountPoint string) (int, error) {
	return b.AddFS(os.DirFS(dir), mountPoint)
}

// Len returns the number of entries added so far.
func (b *ManifestBuilder) Len() int { return len(b.entries) }

// PathStats returns the sizes of the three dictionary tables.
func (b *ManifestBuilder) PathStats() (dirs, names, exts int) {
	return b.dict.Dirs.Len(), b.dict.Names.Len(), b.dict.Exts.Len()
}

// Build lays out and writes the container. The layout is computed in full
// before the first byte is written, so the output is produced in one
// sequential pass. Build seals the builder.
//
// A write error leaves the output in an undefined partial state; callers
// must treat it as unusable.
func (b *ManifestBuilder) Build(w io.Writer) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if len(b.cfg.magic) != 4 {
		return fmt.Errorf("%w: magic %q is not 4 bytes", ErrInvalidFormat, b.cfg.magic)
	}

	stringBlob, flags, err := packDictionary(b.dict, b.cfg.indexCrypto)
	if err != nil {
		return err
	}

	checksumSize := 0
	checksumAlgo := uint8(0)
	if b.cfg.checksum != nil {
		checksumSize = b.cfg.checksum.DigestSize()
		checksumAlgo = b.cfg.checksum.AlgoID()
	}
	entryTableSize := schema.ManifestEntrySize(checksumSize) * len(b.entries)
	indexSize := schema.IndexHeaderSize + len(stringBlob) + entryTableSize

	b.log().Info("building manifest",
		"entries", len(b.entries), "index_size", indexSize, "checksum_algo", checksumAlgo)

	bw := binaryio.NewWriter(w)
	header := schema.FileHeader{
		Version:      schema.Version,
		Mode:         schema.ModeManifest,
		Flags:        flags,
		ChecksumAlgo: checksumAlgo,
		IndexOffset:  schema.FileHeaderSize,
		IndexSize:    uint32(indexSize),
		DataOffset:   0,
		EntryCount:   uint32(len(b.entries)),
	}
	copy(header.Magic[:], b.cfg.magic)
	if err := header.Encode(bw); err != nil {
		return err
	}

	if err := b.writeIndex(bw, stringBlob, checksumSize); err != nil {
		return err
	}

	b.sealed = true
	return nil
}

// writeIndex writes the index header, string-table blob, and entry table.
func (b *ManifestBuilder) writeIndex(bw *binaryio.Writer, stringBlob []byte, checksumSize int) error {
	indexHeader := schema.IndexHeader{
		DirCount:        uint16(b.dict.Dirs.Len()),
		NameCount:       uint32(b.dict.Names.Len()),
		ExtCount:        uint16(b.dict.Exts.Len()),
		StringTableSize: uint32(len(stringBlob)),
		ChecksumSize:    uint8(checksumSize),
	}
	if err := indexHeader.Encode(bw); err != nil {
		return err
	}
	if _, err := bw.Write(stringBlob); err != nil {
		return err
	}
	for i := range b.entries {
		if err := b.entries[i].Encode(bw); err != nil {
			return err
		}
	}
	return nil
}

// packDictionary serializes the path dictionary and applies the optional
// index-crypto transform. The returned flags value is what the file
// header must record.
func packDictionary(dict *stringtable.Dictionary, crypto IndexCryptoHook) ([]byte, uint8, error) {
	var buf bytes.Buffer
	if err := dict.Pack(binaryio.NewWriter(&buf)); err != nil {
		return nil, 0, err
	}
	blob := buf.Bytes()
	if crypto == nil {
		return blob, 0, nil
	}
	transformed, err := crypto.Encrypt(blob)
	if err != nil {
		return nil, 0, fmt.Errorf("grimoire: index encrypt: %w", err)
	}
	return transformed, crypto.FlagsID(), nil
}

// joinMount joins a normalized mount point and a slash-separated relative
// path from fs.WalkDir.
func joinMount(mount, rel string) string {
	if mount == "/" {
		return "/" + rel
	}
	return mount + "/" + rel
}
