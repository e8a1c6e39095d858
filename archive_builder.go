package grimoire

import (
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

// ArchiveBuilder accumulates (virtual path, payload) pairs and writes a
// container embedding both the index and the payload bytes.
//
// Payloads are buffered in memory (after optional compression) until
// Build, because every entry's absolute payload offset must be known
// before the entry table is written. Memory use scales with total stored
// size.
//
// A builder is single-writer: Add and Build must not be called
// concurrently. After Build succeeds the builder is sealed.
type ArchiveBuilder struct {
	cfg        builderConfig
	dict       *stringtable.Dictionary
	entries    []schema.ArchiveEntry
	blobs      [][]byte
	hashToPath map[uint64]string
	sealed     bool
}

// NewArchiveBuilder creates a builder for an archive container.
// Compression hooks requested by Add must be supplied up front via
// BuildWithCompression or BuildWithRegistry.
func NewArchiveBuilder(opts ...BuilderOption) *ArchiveBuilder {
	return &ArchiveBuilder{
		cfg:        newBuilderConfig(opts),
		dict:       stringtable.NewDictionary(),
		hashToPath: make(map[uint64]string),
	}
}

func (b *ArchiveBuilder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

// Add records a virtual path with its payload. compression selects a
// registered compression hook by id; CompressionNone stores the payload
// as-is. The checksum always covers the raw (uncompressed) bytes.
//
// Re-adding an identical normalized path is a no-op. A distinct path
// hashing to an existing entry's value returns a CollisionError, and an
// unregistered compression id returns an UnknownAlgorithmError; both are
// detected before any state changes.
func (b *ArchiveBuilder) Add(vfsPath string, data []byte, compression uint8) error {
	if b.sealed {
		return ErrBuilderSealed
	}

	var hook CompressionHook
	if compression != CompressionNone {
		var ok bool
		hook, ok = b.cfg.compressors[compression]
		if !ok {
			return &UnknownAlgorithmError{Kind: "compression", ID: compression}
		}
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

	var checksum []byte
	if b.cfg.checksum != nil {
		checksum = b.cfg.checksum.Compute(data)
	}

	packed := data
	var flags uint8
	if hook != nil {
		compressed, err := hook.Compress(data)
		if err != nil {
			return fmt.Errorf("grimoire: compress %s: %w", normalized, err)
		}
		packed = compressed
		flags = schema.EntryFlagCompressed
	}

	b.hashToPath[hash] = normalized
	b.blobs = append(b.blobs, packed)
	b.entries = append(b.entries, schema.ArchiveEntry{
		PathHash:   hash,
		DirID:      uint16(dirID),
		NameID:     uint32(nameID),
		ExtID:      uint16(extID),
		PackedSize: uint64(len(packed)),
		RawSize:    uint64(len(data)),
		AlgoID:     compression,
		Flags:      flags,
		Checksum:   checksum,
	})
	return nil
}

// AddFile reads a local file and records it under vfsPath. An empty
// vfsPath mounts the file at the root under its base name.
func (b *ArchiveBuilder) AddFile(localPath, vfsPath string, compression uint8) error {
	if vfsPath == "" {
		vfsPath = "/" + filepath.Base(localPath)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("grimoire: read %s: %w", localPath, err)
	}
	return b.Add(vfsPath, data, compression)
}

// AddFS walks fsys and adds every regular file under mountPoint with the
// given compression. Returns the number of entries added; files that
// were already present (duplicate no-ops) are not counted.
func (b *ArchiveBuilder) AddFS(fsys fs.FS, mountPoint string, compression uint8) (int, error) {
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
		return b.Add(joinMount(mount, path), data, compression)
	})
	return b.Len() - before, err
}

// AddDir adds every regular file under a local directory, mounted at
// mountPoint. Returns the number of files added.
func (b *ArchiveBuilder) AddDir(dir, mountPoint string, compression uint8) (int, error) {
	return b.AddFS(os.DirFS(dir), mountPoint, compression)
}

// Len returns the number of entries added so far.
func (b *ArchiveBuilder) Len() int { return len(b.entries) }

// PathStats returns the sizes of the three dictionary tables.
func (b *ArchiveBuilder) PathStats() (dirs, names, exts int) {
	return b.dict.Dirs.Len(), b.dict.Names.Len(), b.dict.Exts.Len()
}

// CompressionStats returns the total raw and stored payload sizes.
func (b *ArchiveBuilder) CompressionStats() (raw, packed uint64) {
	for i := range b.entries {
		raw += b.entries[i].RawSize
		packed += b.entries[i].PackedSize
	}
	return raw, packed
}

// Build lays out and writes the container.
//
// Phase one computes, purely from accumulated sizes, the absolute offset
// of every region and payload block; phase two writes the file in one
// sequential pass. No backward seek is needed because every entry's
// offset field is assigned before the entry table is written. Build
// seals the builder.
//
// A write error leaves the output in an undefined partial state; callers
// must treat it as unusable.
func (b *ArchiveBuilder) Build(w io.Writer) error {
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

	// Phase one: layout.
	entryTableSize := schema.ArchiveEntrySize(checksumSize) * len(b.entries)
	indexStart := int64(schema.FileHeaderSize)
	stringStart := indexStart + schema.IndexHeaderSize
	entryStart := stringStart + int64(len(stringBlob))
	dataHeaderStart := entryStart + int64(entryTableSize)
	dataStart := dataHeaderStart + schema.DataHeaderSize
	indexSize := dataHeaderStart - indexStart

	offset := uint64(dataStart)
	var dataTotal uint64
	for i := range b.entries {
		b.entries[i].Offset = offset
		offset += b.entries[i].PackedSize
		dataTotal += b.entries[i].PackedSize
	}

	b.log().Info("building archive",
		"entries", len(b.entries), "index_size", indexSize, "data_size", dataTotal)

	// Phase two: sequential write.
	bw := binaryio.NewWriter(w)
	header := schema.FileHeader{
		Version:      schema.Version,
		Mode:         schema.ModeArchive,
		Flags:        flags,
		ChecksumAlgo: checksumAlgo,
		IndexOffset:  uint64(indexStart),
		IndexSize:    uint32(indexSize),
		DataOffset:   uint64(dataHeaderStart),
		EntryCount:   uint32(len(b.entries)),
	}
	copy(header.Magic[:], b.cfg.magic)
	if err := header.Encode(bw); err != nil {
		return err
	}

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

	dataHeader := schema.DataHeader{
		Magic:      schema.DataMagic,
		BlockCount: uint32(len(b.entries)),
		TotalSize:  dataTotal,
	}
	if err := dataHeader.Encode(bw); err != nil {
		return err
	}
	for _, blob := range b.blobs {
		if _, err := bw.Write(blob); err != nil {
			return err
		}
	}

	b.sealed = true
	return nil
}
