package grimoire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// ManifestDoc is the JSON interchange form of a manifest container.
// It carries everything needed to rebuild a byte-equivalent manifest,
// except the checksum hook itself, which is resolved by algorithm id.
type ManifestDoc struct {
	Version      int                `json:"version"`
	Magic        string             `json:"magic"`
	ChecksumAlgo uint8              `json:"checksum_algo"`
	Entries      []ManifestDocEntry `json:"entries"`
}

// ManifestDocEntry is one entry of a ManifestDoc. Checksum is
// hex-encoded, empty when the container records none.
type ManifestDocEntry struct {
	Path     string `json:"path"`
	Size     uint64 `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// ManifestToJSON renders an opened manifest as indented JSON. Returns
// ErrIndexLocked when the container is locked, since paths are required.
func ManifestToJSON(m *Manifest) ([]byte, error) {
	entries, err := m.Entries()
	if err != nil {
		return nil, err
	}
	doc := ManifestDoc{
		Version:      int(m.header.Version),
		Magic:        string(m.header.Magic[:]),
		ChecksumAlgo: m.header.ChecksumAlgo,
		Entries:      make([]ManifestDocEntry, 0, m.Len()),
	}
	for path, entry := range entries {
		doc.Entries = append(doc.Entries, ManifestDocEntry{
			Path:     path,
			Size:     entry.RawSize,
			Checksum: hex.EncodeToString(entry.Checksum),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ManifestFromJSON rebuilds a manifest container from its JSON form and
// writes it to w. The checksum hook named by the document's algorithm id
// is resolved through reg; a document without checksums needs no
// registry.
func ManifestFromJSON(data []byte, w io.Writer, reg *Registry, opts ...BuilderOption) error {
	var doc ManifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("grimoire: manifest json: %w", err)
	}
	if doc.Version != FormatVersion {
		return fmt.Errorf("%w: json document version %d, want %d", ErrInvalidFormat, doc.Version, FormatVersion)
	}

	all := []BuilderOption{BuildWithMagic(doc.Magic)}
	if doc.ChecksumAlgo != 0 {
		if reg == nil {
			return &UnknownAlgorithmError{Kind: "checksum", ID: doc.ChecksumAlgo}
		}
		hook, err := reg.Checksum(doc.ChecksumAlgo)
		if err != nil {
			return err
		}
		all = append(all, BuildWithChecksum(hook))
	}
	all = append(all, opts...)

	b := NewManifestBuilder(all...)
	for _, entry := range doc.Entries {
		var checksum []byte
		if entry.Checksum != "" {
			var err error
			checksum, err = hex.DecodeString(entry.Checksum)
			if err != nil {
				return fmt.Errorf("grimoire: manifest json: checksum of %s: %w", entry.Path, err)
			}
		}
		if err := b.AddEntry(entry.Path, entry.Size, checksum); err != nil {
			return err
		}
	}
	return b.Build(w)
}
