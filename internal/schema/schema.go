// Package schema defines the fixed-size on-disk records of the container
// format: file header, index header, data header, and the two entry kinds.
//
// All integers are little-endian. Each record knows its own exact byte
// size so the builder can compute the full file layout before writing a
// single byte.
package schema

import (
	"github.com/grimoire-vfs/grimoire/internal/binaryio"
)

// Container modes.
const (
	ModeManifest uint8 = 1
	ModeArchive  uint8 = 2
)

// Entry flag bits.
const (
	EntryFlagCompressed uint8 = 0x01
)

// Record sizes in bytes.
const (
	FileHeaderSize  = 32
	IndexHeaderSize = 16
	DataHeaderSize  = 16

	ManifestEntryBaseSize = 24
	ArchiveEntryBaseSize  = 42
)

// Version is the container format version written by this package.
const Version = 3

// DataMagic tags the start of the payload region in archive mode.
var DataMagic = [4]byte{'D', 'A', 'T', 'A'}

// FileHeader is the 32-byte header at offset zero.
type FileHeader struct {
	Magic        [4]byte
	Version      uint8
	Mode         uint8
	Flags        uint8
	ChecksumAlgo uint8
	IndexOffset  uint64
	IndexSize    uint32
	DataOffset   uint64 // zero in manifest mode
	EntryCount   uint32
}

// Encode writes the header.
func (h *FileHeader) Encode(w *binaryio.Writer) error {
	if _, err := w.Write(h.Magic[:]); err != nil {
		return err
	}
	for _, b := range []uint8{h.Version, h.Mode, h.Flags, h.ChecksumAlgo} {
		if err := w.WriteU8(b); err != nil {
			return err
		}
	}
	if err := w.WriteU64(h.IndexOffset); err != nil {
		return err
	}
	if err := w.WriteU32(h.IndexSize); err != nil {
		return err
	}
	if err := w.WriteU64(h.DataOffset); err != nil {
		return err
	}
	return w.WriteU32(h.EntryCount)
}

// DecodeFileHeader reads a FileHeader.
func DecodeFileHeader(r *binaryio.Reader) (FileHeader, error) {
	var h FileHeader
	magic, err := r.ReadBytes(4)
	if err != nil {
		return h, err
	}
	copy(h.Magic[:], magic)
	if h.Version, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.Mode, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.Flags, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.ChecksumAlgo, err = r.ReadU8(); err != nil {
		return h, err
	}
	if h.IndexOffset, err = r.ReadU64(); err != nil {
		return h, err
	}
	if h.IndexSize, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.DataOffset, err = r.ReadU64(); err != nil {
		return h, err
	}
	if h.EntryCount, err = r.ReadU32(); err != nil {
		return h, err
	}
	return h, nil
}

// IndexHeader is the 16-byte header of the index region.
//
// StringTableSize is the size of the string-table blob as stored on disk,
// after any index-crypto transform, not the logical decoded size.
type IndexHeader struct {
	DirCount        uint16
	NameCount       uint32
	ExtCount        uint16
	StringTableSize uint32
	ChecksumSize    uint8
}

// Encode writes the header, including the three reserved zero bytes.
func (h *IndexHeader) Encode(w *binaryio.Writer) error {
	if err := w.WriteU16(h.DirCount); err != nil {
		return err
	}
	if err := w.WriteU32(h.NameCount); err != nil {
		return err
	}
	if err := w.WriteU16(h.ExtCount); err != nil {
		return err
	}
	if err := w.WriteU32(h.StringTableSize); err != nil {
		return err
	}
	if err := w.WriteU8(h.ChecksumSize); err != nil {
		return err
	}
	_, err := w.Write([]byte{0, 0, 0})
	return err
}

// DecodeIndexHeader reads an IndexHeader.
func DecodeIndexHeader(r *binaryio.Reader) (IndexHeader, error) {
	var h IndexHeader
	var err error
	if h.DirCount, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.NameCount, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.ExtCount, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.StringTableSize, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.ChecksumSize, err = r.ReadU8(); err != nil {
		return h, err
	}
	if _, err = r.ReadBytes(3); err != nil {
		return h, err
	}
	return h, nil
}

// DataHeader is the 16-byte header preceding the payload region.
type DataHeader struct {
	Magic      [4]byte
	BlockCount uint32
	TotalSize  uint64
}

// Encode writes the header.
func (h *DataHeader) Encode(w *binaryio.Writer) error {
	if _, err := w.Write(h.Magic[:]); err != nil {
		return err
	}
	if err := w.WriteU32(h.BlockCount); err != nil {
		return err
	}
	return w.WriteU64(h.TotalSize)
}

// DecodeDataHeader reads a DataHeader.
func DecodeDataHeader(r *binaryio.Reader) (DataHeader, error) {
	var h DataHeader
	magic, err := r.ReadBytes(4)
	if err != nil {
		return h, err
	}
	copy(h.Magic[:], magic)
	if h.BlockCount, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.TotalSize, err = r.ReadU64(); err != nil {
		return h, err
	}
	return h, nil
}

// ManifestEntry is one index record in manifest mode: 24 fixed bytes
// followed by the container-wide fixed-length checksum.
type ManifestEntry struct {
	PathHash uint64
	DirID    uint16
	NameID   uint32
	ExtID    uint16
	RawSize  uint64
	Checksum []byte
}

// ManifestEntrySize returns the full record size for a container with the
// given checksum length.
func ManifestEntrySize(checksumSize int) int {
	return ManifestEntryBaseSize + checksumSize
}

// Encode writes the entry.
func (e *ManifestEntry) Encode(w *binaryio.Writer) error {
	if err := w.WriteU64(e.PathHash); err != nil {
		return err
	}
	if err := w.WriteU16(e.DirID); err != nil {
		return err
	}
	if err := w.WriteU32(e.NameID); err != nil {
		return err
	}
	if err := w.WriteU16(e.ExtID); err != nil {
		return err
	}
	if err := w.WriteU64(e.RawSize); err != nil {
		return err
	}
	_, err := w.Write(e.Checksum)
	return err
}

// DecodeManifestEntry reads one entry with the given checksum length.
func DecodeManifestEntry(r *binaryio.Reader, checksumSize int) (ManifestEntry, error) {
	var e ManifestEntry
	var err error
	if e.PathHash, err = r.ReadU64(); err != nil {
		return e, err
	}
	if e.DirID, err = r.ReadU16(); err != nil {
		return e, err
	}
	if e.NameID, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.ExtID, err = r.ReadU16(); err != nil {
		return e, err
	}
	if e.RawSize, err = r.ReadU64(); err != nil {
		return e, err
	}
	if checksumSize > 0 {
		if e.Checksum, err = r.ReadBytes(checksumSize); err != nil {
			return e, err
		}
	}
	return e, nil
}

// ArchiveEntry is one index record in archive mode: 42 fixed bytes
// followed by the container-wide fixed-length checksum.
//
// Offset is the absolute byte offset of the entry's payload within the
// container file; PackedSize is the stored (possibly compressed) length.
type ArchiveEntry struct {
	PathHash   uint64
	DirID      uint16
	NameID     uint32
	ExtID      uint16
	Offset     uint64
	PackedSize uint64
	RawSize    uint64
	AlgoID     uint8
	Flags      uint8
	Checksum   []byte
}

// ArchiveEntrySize returns the full record size for a container with the
// given checksum length.
func ArchiveEntrySize(checksumSize int) int {
	return ArchiveEntryBaseSize + checksumSize
}

// Encode writes the entry.
func (e *ArchiveEntry) Encode(w *binaryio.Writer) error {
	if err := w.WriteU64(e.PathHash); err != nil {
		return err
	}
	if err := w.WriteU16(e.DirID); err != nil {
		return err
	}
	if err := w.WriteU32(e.NameID); err != nil {
		return err
	}
	if err := w.WriteU16(e.ExtID); err != nil {
		return err
	}
	if err := w.WriteU64(e.Offset); err != nil {
		return err
	}
	if err := w.WriteU64(e.PackedSize); err != nil {
		return err
	}
	if err := w.WriteU64(e.RawSize); err != nil {
		return err
	}
	if err := w.WriteU8(e.AlgoID); err != nil {
		return err
	}
	if err := w.WriteU8(e.Flags); err != nil {
		return err
	}
	_, err := w.Write(e.Checksum)
	return err
}

// DecodeArchiveEntry reads one entry with the given checksum length.
func DecodeArchiveEntry(r *binaryio.Reader, checksumSize int) (ArchiveEntry, error) {
	var e ArchiveEntry
	var err error
	if e.PathHash, err = r.ReadU64(); err != nil {
		return e, err
	}
	if e.DirID, err = r.ReadU16(); err != nil {
		return e, err
	}
	if e.NameID, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.ExtID, err = r.ReadU16(); err != nil {
		return e, err
	}
	if e.Offset, err = r.ReadU64(); err != nil {
		return e, err
	}
	if e.PackedSize, err = r.ReadU64(); err != nil {
		return e, err
	}
	if e.RawSize, err = r.ReadU64(); err != nil {
		return e, err
	}
	if e.AlgoID, err = r.ReadU8(); err != nil {
		return e, err
	}
	if e.Flags, err = r.ReadU8(); err != nil {
		return e, err
	}
	if checksumSize > 0 {
		if e.Checksum, err = r.ReadBytes(checksumSize); err != nil {
			return e, err
		}
	}
	return e, nil
}
