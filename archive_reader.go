package grimoire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/grimoire-vfs/grimoire/internal/binaryio"
	"github.com/grimoire-vfs/grimoire/internal/mmapfile"
	"github.com/grimoire-vfs/grimoire/internal/pathutil"
	"github.com/grimoire-vfs/grimoire/internal/schema"
	"github.com/grimoire-vfs/grimoire/internal/stringtable"
)

// Archive is an opened index-plus-payload container.
//
// The file is memory-mapped where the platform allows it, so payload
// reads of stored (uncompressed) entries are zero-copy slices of the
// mapping. Like Manifest, an encrypted index with no matching crypto
// hook opens in the locked state: hash-keyed reads work, path-producing
// operations return ErrIndexLocked.
//
// An Archive is immutable after open and safe for concurrent use until
// Close.
type Archive struct {
	cfg         readerConfig
	file        *mmapfile.File
	header      schema.FileHeader
	indexHeader schema.IndexHeader
	dataHeader  schema.DataHeader
	entries     []schema.ArchiveEntry
	byHash      map[uint64]int
	dict        *stringtable.Dictionary // nil when locked
	paths       []string                // per entry, empty when locked
	locked      bool
}

// OpenArchive opens an archive container for random-access reads.
func OpenArchive(path string, opts ...ReaderOption) (*Archive, error) {
	cfg := newReaderConfig(opts)

	var file *mmapfile.File
	var err error
	if cfg.noMmap {
		file, err = mmapfile.OpenUnmapped(path)
	} else {
		file, err = mmapfile.Open(path)
	}
	if err != nil {
		return nil, err
	}

	a, err := loadArchive(cfg, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return a, nil
}

func loadArchive(cfg readerConfig, file *mmapfile.File) (*Archive, error) {
	headerBytes, err := file.Slice(0, schema.FileHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	header, err := schema.DecodeFileHeader(binaryio.NewReader(bytes.NewReader(headerBytes)))
	if err != nil {
		return nil, err
	}
	if err := validateHeader(&header, cfg.magic, schema.ModeArchive); err != nil {
		return nil, err
	}

	indexBytes, err := file.Slice(int64(header.IndexOffset), int(header.IndexSize))
	if err != nil {
		return nil, fmt.Errorf("%w: index region: %v", ErrTruncated, err)
	}
	r := binaryio.NewReader(bytes.NewReader(indexBytes))
	indexHeader, err := schema.DecodeIndexHeader(r)
	if err != nil {
		return nil, err
	}
	dict, locked, err := loadDictionary(&cfg, header.Flags, &indexHeader, r)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		cfg:         cfg,
		file:        file,
		header:      header,
		indexHeader: indexHeader,
		entries:     make([]schema.ArchiveEntry, 0, header.EntryCount),
		byHash:      make(map[uint64]int, header.EntryCount),
		dict:        dict,
		locked:      locked,
	}
	checksumSize := int(indexHeader.ChecksumSize)
	for i := uint32(0); i < header.EntryCount; i++ {
		entry, err := schema.DecodeArchiveEntry(r, checksumSize)
		if err != nil {
			return nil, err
		}
		a.byHash[entry.PathHash] = len(a.entries)
		a.entries = append(a.entries, entry)
	}

	dataBytes, err := file.Slice(int64(header.DataOffset), schema.DataHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: data header: %v", ErrTruncated, err)
	}
	a.dataHeader, err = schema.DecodeDataHeader(binaryio.NewReader(bytes.NewReader(dataBytes)))
	if err != nil {
		return nil, err
	}
	if a.dataHeader.Magic != schema.DataMagic {
		return nil, fmt.Errorf("%w: data region magic %q", ErrInvalidFormat, a.dataHeader.Magic[:])
	}
	if a.dataHeader.BlockCount != header.EntryCount {
		return nil, fmt.Errorf("%w: data block count %d, entry count %d",
			ErrInvalidFormat, a.dataHeader.BlockCount, header.EntryCount)
	}

	if !locked {
		a.paths = make([]string, len(a.entries))
		for i := range a.entries {
			e := &a.entries[i]
			p, err := dict.GetPath(int(e.DirID), int(e.NameID), int(e.ExtID))
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidFormat, i, err)
			}
			a.paths[i] = p
		}
	}

	a.log().Debug("opened archive",
		"entries", len(a.entries), "locked", locked, "mapped", file.Mapped(),
		"data_size", a.dataHeader.TotalSize)
	return a, nil
}

func (a *Archive) log() *slog.Logger {
	if a.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.cfg.logger
}

// Header returns the parsed file header.
func (a *Archive) Header() FileHeader { return a.header }

// DataHeader returns the parsed payload region header.
func (a *Archive) DataHeader() DataHeader { return a.dataHeader }

// Len returns the number of entries.
func (a *Archive) Len() int { return len(a.entries) }

// Locked reports whether the string-table region is encrypted and no
// matching crypto hook was supplied.
func (a *Archive) Locked() bool { return a.locked }

// Mapped reports whether payload reads are served from a memory map.
func (a *Archive) Mapped() bool { return a.file.Mapped() }

// Exists reports whether a virtual path is present. Works in the locked
// state because lookup is keyed by path hash.
func (a *Archive) Exists(vfsPath string) bool {
	_, ok := a.byHash[a.cfg.pathHash.Hash(pathutil.Normalize(vfsPath))]
	return ok
}

// Entry looks up a virtual path. Works in the locked state.
func (a *Archive) Entry(vfsPath string) (ArchiveEntry, error) {
	normalized := pathutil.Normalize(vfsPath)
	idx, ok := a.byHash[a.cfg.pathHash.Hash(normalized)]
	if !ok {
		return ArchiveEntry{}, fmt.Errorf("%w: %s", ErrNotFound, normalized)
	}
	return a.entries[idx], nil
}

// EntryByHash looks up an entry by its 64-bit path hash.
func (a *Archive) EntryByHash(hash uint64) (ArchiveEntry, error) {
	idx, ok := a.byHash[hash]
	if !ok {
		return ArchiveEntry{}, fmt.Errorf("%w: hash %#016x", ErrNotFound, hash)
	}
	return a.entries[idx], nil
}

// Hashes returns all path hashes in entry order. Works in the locked
// state.
func (a *Archive) Hashes() []uint64 {
	hashes := make([]uint64, len(a.entries))
	for i := range a.entries {
		hashes[i] = a.entries[i].PathHash
	}
	return hashes
}

// Paths returns all virtual paths in entry order. Returns ErrIndexLocked
// when the container is locked.
func (a *Archive) Paths() ([]string, error) {
	if a.locked {
		return nil, ErrIndexLocked
	}
	out := make([]string, len(a.paths))
	copy(out, a.paths)
	return out, nil
}

// Entries iterates over (path, entry) pairs in entry order. Returns
// ErrIndexLocked when the container is locked.
func (a *Archive) Entries() (iter.Seq2[string, ArchiveEntry], error) {
	if a.locked {
		return nil, ErrIndexLocked
	}
	return func(yield func(string, ArchiveEntry) bool) {
		for i := range a.entries {
			if !yield(a.paths[i], a.entries[i]) {
				return
			}
		}
	}, nil
}

// Read returns the decompressed, verified payload of a virtual path.
// Works in the locked state.
//
// The returned slice may alias the memory map for stored entries; treat
// it as read-only.
func (a *Archive) Read(vfsPath string) ([]byte, error) {
	normalized := pathutil.Normalize(vfsPath)
	idx, ok := a.byHash[a.cfg.pathHash.Hash(normalized)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, normalized)
	}
	return a.readEntry(idx, normalized)
}

// ReadByHash returns the payload of the entry with the given path hash.
func (a *Archive) ReadByHash(hash uint64) ([]byte, error) {
	idx, ok := a.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("%w: hash %#016x", ErrNotFound, hash)
	}
	return a.readEntry(idx, fmt.Sprintf("%#016x", hash))
}

// Open returns an io.Reader over the payload of a virtual path. The
// payload is fully decoded and verified up front; Open is a convenience
// over Read for io-oriented callers.
func (a *Archive) Open(vfsPath string) (io.Reader, error) {
	data, err := a.Read(vfsPath)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// readEntry loads, decompresses, and verifies one payload. label is the
// path when known, otherwise the formatted hash; it only feeds error
// reports.
func (a *Archive) readEntry(idx int, label string) ([]byte, error) {
	e := &a.entries[idx]
	data, err := a.file.Slice(int64(e.Offset), int(e.PackedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: payload of %s: %v", ErrTruncated, label, err)
	}

	if e.Flags&schema.EntryFlagCompressed != 0 {
		hook, err := a.cfg.compressionFor(e.AlgoID)
		if err != nil {
			return nil, err
		}
		data, err = hook.Decompress(data, int(e.RawSize))
		if err != nil {
			return nil, fmt.Errorf("grimoire: decompress %s: %w", label, err)
		}
	}
	if uint64(len(data)) != e.RawSize {
		return nil, fmt.Errorf("%w: %s: payload is %d bytes, index records %d",
			ErrCorrupted, label, len(data), e.RawSize)
	}

	if a.cfg.verify && a.header.ChecksumAlgo != 0 {
		hook, err := a.cfg.checksumFor(a.header.ChecksumAlgo)
		if err != nil {
			return nil, err
		}
		if !verifyChecksum(hook, data, e.Checksum) {
			return nil, &CorruptionError{
				Path:     label,
				Expected: e.Checksum,
				Actual:   hook.Compute(data),
			}
		}
	}
	return data, nil
}

// ExtractAll writes every entry to destDir, recreating the virtual
// directory structure. Entries are extracted concurrently; the first
// failure cancels the rest. Returns the number of files written.
// Requires the unlocked state.
func (a *Archive) ExtractAll(ctx context.Context, destDir string) (int, error) {
	if a.locked {
		return 0, ErrIndexLocked
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range a.entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Archive paths are untrusted input; a ".." segment must not
			// place the file outside destDir.
			rel := filepath.FromSlash(strings.TrimPrefix(a.paths[i], "/"))
			if !filepath.IsLocal(rel) {
				return fmt.Errorf("%w: entry path %q escapes the destination directory",
					ErrInvalidFormat, a.paths[i])
			}
			data, err := a.readEntry(i, a.paths[i])
			if err != nil {
				return err
			}
			target := filepath.Join(destDir, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return os.WriteFile(target, data, 0o644)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	a.log().Info("extracted archive", "entries", len(a.entries), "dest", destDir)
	return len(a.entries), nil
}

// Close unmaps and closes the underlying file. Slices previously
// returned by Read must not be used afterwards.
func (a *Archive) Close() error {
	return a.file.Close()
}
