// Package grimoire reads and writes a compact binary container format
// for virtual file trees.
//
// A container is either a manifest (index only: paths, sizes, checksums)
// or an archive (index plus embedded payloads). Paths are stored once in
// a deduplicating three-level dictionary and every entry is keyed by a
// 64-bit hash of its normalized path, so lookups never scan.
//
// Containers are built write-once with ManifestBuilder or ArchiveBuilder
// and read with OpenManifest or OpenArchive. Checksums, compression, and
// index encryption are pluggable hooks; the built-in implementations
// live in the checksum, compress, and indexcrypto subpackages.
package grimoire
