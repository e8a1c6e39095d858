package grimoire

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"os"

	"github.com/grimoire-vfs/grimoire/internal/binaryio"
	"github.com/grimoire-vfs/grimoire/internal/pathutil"
	"github.com/grimoire-vfs/grimoire/internal/schema"
	"github.com/grimoire-vfs/grimoire/internal/stringtable"
)

// Manifest is an opened index-only container.
//
// A manifest whose string-table region is encrypted and for which no
// matching crypto hook was supplied opens in the locked state: hash-keyed
// operations (Exists, Entry, EntryByHash, Hashes) still work, while
// path-producing operations return ErrIndexLocked.
//
// A Manifest is immutable after open and safe for concurrent use.
type Manifest struct {
	cfg         readerConfig
	header      schema.FileHeader
	indexHeader schema.IndexHeader
	entries     []schema.ManifestEntry
	byHash      map[uint64]int
	dict        *stringtable.Dictionary // nil when locked
	paths       []string                // per entry, empty when locked
	locked      bool
}

// OpenManifest reads and parses a manifest container from a file.
func OpenManifest(path string, opts ...ReaderOption) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return OpenManifestBytes(data, opts...)
}

// OpenManifestBytes parses a manifest container held in memory.
func OpenManifestBytes(data []byte, opts ...ReaderOption) (*Manifest, error) {
	cfg := newReaderConfig(opts)

	r := binaryio.NewReader(bytes.NewReader(data))
	header, err := schema.DecodeFileHeader(r)
	if err != nil {
		return nil, err
	}
	if err := validateHeader(&header, cfg.magic, schema.ModeManifest); err != nil {
		return nil, err
	}

	indexHeader, err := schema.DecodeIndexHeader(r)
	if err != nil {
		return nil, err
	}
	dict, locked, err := loadDictionary(&cfg, header.Flags, &indexHeader, r)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		cfg:         cfg,
		header:      header,
		indexHeader: indexHeader,
		entries:     make([]schema.ManifestEntry, 0, header.EntryCount),
		byHash:      make(map[uint64]int, header.EntryCount),
		dict:        dict,
		locked:      locked,
	}
	checksumSize := int(indexHeader.ChecksumSize)
	for i := uint32(0); i < header.EntryCount; i++ {
		entry, err := schema.DecodeManifestEntry(r, checksumSize)
		if err != nil {
			return nil, err
		}
		m.byHash[entry.PathHash] = len(m.entries)
		m.entries = append(m.entries, entry)
	}

	if !locked {
		m.paths = make([]string, len(m.entries))
		for i := range m.entries {
			e := &m.entries[i]
			p, err := dict.GetPath(int(e.DirID), int(e.NameID), int(e.ExtID))
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidFormat, i, err)
			}
			m.paths[i] = p
		}
	}

	m.log().Debug("opened manifest",
		"entries", len(m.entries), "locked", locked, "checksum_algo", header.ChecksumAlgo)
	return m, nil
}

func (m *Manifest) log() *slog.Logger {
	if m.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.cfg.logger
}

// Header returns the parsed file header.
func (m *Manifest) Header() FileHeader { return m.header }

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.entries) }

// Locked reports whether the string-table region is encrypted and no
// matching crypto hook was supplied.
func (m *Manifest) Locked() bool { return m.locked }

// Exists reports whether a virtual path is present. Works in the locked
// state because lookup is keyed by path hash.
func (m *Manifest) Exists(vfsPath string) bool {
	_, ok := m.byHash[m.cfg.pathHash.Hash(pathutil.Normalize(vfsPath))]
	return ok
}

// Entry looks up a virtual path. Works in the locked state.
func (m *Manifest) Entry(vfsPath string) (ManifestEntry, error) {
	normalized := pathutil.Normalize(vfsPath)
	idx, ok := m.byHash[m.cfg.pathHash.Hash(normalized)]
	if !ok {
		return ManifestEntry{}, fmt.Errorf("%w: %s", ErrNotFound, normalized)
	}
	return m.entries[idx], nil
}

// EntryByHash looks up an entry by its 64-bit path hash.
func (m *Manifest) EntryByHash(hash uint64) (ManifestEntry, error) {
	idx, ok := m.byHash[hash]
	if !ok {
		return ManifestEntry{}, fmt.Errorf("%w: hash %#016x", ErrNotFound, hash)
	}
	return m.entries[idx], nil
}

// Hashes returns all path hashes in entry order. Works in the locked
// state.
func (m *Manifest) Hashes() []uint64 {
	hashes := make([]uint64, len(m.entries))
	for i := range m.entries {
		hashes[i] = m.entries[i].PathHash
	}
	return hashes
}

// Paths returns all virtual paths in entry order. Returns ErrIndexLocked
// when the container is locked.
func (m *Manifest) Paths() ([]string, error) {
	if m.locked {
		return nil, ErrIndexLocked
	}
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out, nil
}

// Path returns the virtual path of the entry with the given hash.
// Returns ErrIndexLocked when the container is locked.
func (m *Manifest) Path(hash uint64) (string, error) {
	if m.locked {
		return "", ErrIndexLocked
	}
	idx, ok := m.byHash[hash]
	if !ok {
		return "", fmt.Errorf("%w: hash %#016x", ErrNotFound, hash)
	}
	return m.paths[idx], nil
}

// Entries iterates over (path, entry) pairs in entry order. Returns
// ErrIndexLocked when the container is locked.
func (m *Manifest) Entries() (iter.Seq2[string, ManifestEntry], error) {
	if m.locked {
		return nil, ErrIndexLocked
	}
	return func(yield func(string, ManifestEntry) bool) {
		for i := range m.entries {
			if !yield(m.paths[i], m.entries[i]) {
				return
			}
		}
	}, nil
}

// VerifyFile checks a local file against the manifest entry for vfsPath:
// first by size, then by checksum when the container records one.
// A checksum mismatch is reported as a CorruptionError.
func (m *Manifest) VerifyFile(vfsPath, localPath string) error {
	entry, err := m.Entry(vfsPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("grimoire: read %s: %w", localPath, err)
	}
	if uint64(len(data)) != entry.RawSize {
		return fmt.Errorf("%w: %s: size %d, manifest records %d",
			ErrCorrupted, vfsPath, len(data), entry.RawSize)
	}
	if m.header.ChecksumAlgo == 0 {
		return nil
	}
	hook, err := m.checksumHook()
	if err != nil {
		return err
	}
	if !verifyChecksum(hook, data, entry.Checksum) {
		return &CorruptionError{
			Path:     pathutil.Normalize(vfsPath),
			Expected: entry.Checksum,
			Actual:   hook.Compute(data),
		}
	}
	return nil
}

func (m *Manifest) checksumHook() (ChecksumHook, error) {
	return m.cfg.checksumFor(m.header.ChecksumAlgo)
}

// validateHeader checks magic, version, and mode. A recognized container
// of the other mode returns ErrWrongMode so callers can retry with the
// right open function.
func validateHeader(h *schema.FileHeader, magic string, wantMode uint8) error {
	if string(h.Magic[:]) != magic {
		return fmt.Errorf("%w: magic %q, want %q", ErrInvalidFormat, h.Magic[:], magic)
	}
	if h.Version != schema.Version {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalidFormat, h.Version, schema.Version)
	}
	if h.Mode != wantMode {
		if h.Mode == schema.ModeManifest || h.Mode == schema.ModeArchive {
			return fmt.Errorf("%w: container mode %d, want %d", ErrWrongMode, h.Mode, wantMode)
		}
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidFormat, h.Mode)
	}
	return nil
}

// loadDictionary reads the string-table blob, applies the index-crypto
// transform recorded in flags when a matching hook is available, and
// unpacks the path dictionary. A nonzero flags value with no hook yields
// the locked state rather than an error.
func loadDictionary(cfg *readerConfig, flags uint8, ih *schema.IndexHeader, r *binaryio.Reader) (*stringtable.Dictionary, bool, error) {
	blob, err := r.ReadBytes(int(ih.StringTableSize))
	if err != nil {
		return nil, false, err
	}
	if flags != 0 {
		hook, ok := cfg.indexCryptoFor(flags)
		if !ok {
			return nil, true, nil
		}
		blob, err = hook.Decrypt(blob)
		if err != nil {
			return nil, false, fmt.Errorf("grimoire: index decrypt: %w", err)
		}
	}
	dict, err := stringtable.UnpackDictionary(binaryio.NewReader(bytes.NewReader(blob)),
		int(ih.DirCount), int(ih.NameCount), int(ih.ExtCount))
	if err != nil {
		return nil, false, fmt.Errorf("%w: path dictionary: %v", ErrInvalidFormat, err)
	}
	return dict, false, nil
}
