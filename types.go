package grimoire

import (
	"github.com/grimoire-vfs/grimoire/internal/pathutil"
	"github.com/grimoire-vfs/grimoire/internal/schema"
)

// Re-export record types from internal/schema for the public API.
type (
	// FileHeader is the 32-byte header at the start of every container.
	FileHeader = schema.FileHeader

	// IndexHeader describes the path dictionary and entry table.
	IndexHeader = schema.IndexHeader

	// DataHeader precedes the payload region of an archive.
	DataHeader = schema.DataHeader

	// ManifestEntry describes one virtual path in a manifest container.
	ManifestEntry = schema.ManifestEntry

	// ArchiveEntry describes one virtual path and its payload location in
	// an archive container.
	ArchiveEntry = schema.ArchiveEntry
)

// Container modes.
const (
	ModeManifest = schema.ModeManifest
	ModeArchive  = schema.ModeArchive
)

// CompressionNone is the reserved "stored" compression id.
const CompressionNone uint8 = 0

// EntryFlagCompressed marks an archive entry whose payload was compressed.
const EntryFlagCompressed = schema.EntryFlagCompressed

// FormatVersion is the container format version written by this package.
const FormatVersion = schema.Version

// DefaultMagic is the magic tag written when no custom magic is set.
const DefaultMagic = "GRIM"

// NormalizePath converts a virtual path to canonical form: backslashes
// become forward slashes, runs of slashes collapse, a leading slash is
// enforced, and the trailing slash is stripped.
func NormalizePath(path string) string { return pathutil.Normalize(path) }

// SplitPath breaks a virtual path into directory, bare name, and
// extension-with-dot components after normalizing it.
func SplitPath(path string) (dir, name, ext string) { return pathutil.Split(path) }
