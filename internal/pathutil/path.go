// Package pathutil provides normalization, splitting, and hashing for
// slash-separated virtual paths.
//
// Every path stored in a container is normalized to the absolute form
// "/dir/name.ext" before hashing or dictionary insertion, so lookups are
// insensitive to backslashes, duplicate slashes, and trailing slashes.
package pathutil

import (
	"encoding/binary"
	"strings"

	"github.com/zeebo/blake3"
)

// Normalize converts a user-provided virtual path to canonical form:
//
//   - backslashes become forward slashes
//   - runs of slashes collapse to one
//   - a leading slash is enforced
//   - the trailing slash is stripped (the root stays "/")
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")

	var b strings.Builder
	b.Grow(len(path) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if !prevSlash {
				b.WriteByte('/')
			}
			prevSlash = true
			continue
		}
		b.WriteByte(c)
		prevSlash = false
	}

	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// Split breaks a path into (dir, name, ext).
//
// The path is normalized first. The extension includes its leading dot or
// is empty; the name excludes the extension. Multi-dot names split at the
// last dot only, and dotfiles ("/.gitignore") keep the dot in the name.
func Split(path string) (dir, name, ext string) {
	normalized := Normalize(path)

	base := normalized
	dir = "/"
	if i := strings.LastIndexByte(normalized, '/'); i >= 0 {
		base = normalized[i+1:]
		if i > 0 {
			dir = normalized[:i]
		}
	}

	name = base
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		name = base[:i]
		ext = base[i:]
	}
	return dir, name, ext
}

// Hash computes the default 64-bit path hash: the first 8 bytes of the
// BLAKE3 digest of the normalized path, little-endian.
//
// The digest is collision-resistant but the 64-bit truncation is not
// collision-proof; builders detect collisions explicitly rather than
// assuming uniqueness.
func Hash(path string) uint64 {
	sum := blake3.Sum256([]byte(Normalize(path)))
	return binary.LittleEndian.Uint64(sum[:8])
}
