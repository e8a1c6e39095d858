// Package stringtable implements the deduplicating string tables backing
// the container's path dictionary.
//
// A Table assigns dense zero-based indices in insertion order; re-adding
// an existing string returns its original index. A Dictionary composes
// three tables (directories, names, extensions) so repeated path fragments
// are stored once and referenced by small integer ids.
package stringtable

import (
	"fmt"

	"github.com/grimoire-vfs/grimoire/internal/binaryio"
)

// Table is an ordered, deduplicating string table.
type Table struct {
	strings []string
	index   map[string]int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Add inserts s and returns its index. If s is already present, the
// original index is returned and nothing is stored.
func (t *Table) Add(s string) int {
	if idx, ok := t.index[s]; ok {
		return idx
	}
	idx := len(t.strings)
	t.strings = append(t.strings, s)
	t.index[s] = idx
	return idx
}

// Get returns the string at index.
func (t *Table) Get(index int) (string, error) {
	if index < 0 || index >= len(t.strings) {
		return "", fmt.Errorf("grimoire: string index %d out of range [0,%d)", index, len(t.strings))
	}
	return t.strings[index], nil
}

// Contains reports whether s is in the table.
func (t *Table) Contains(s string) bool {
	_, ok := t.index[s]
	return ok
}

// Len returns the number of stored strings.
func (t *Table) Len() int { return len(t.strings) }

// Pack writes all strings in insertion order as u16-length-prefixed UTF-8.
func (t *Table) Pack(w *binaryio.Writer) error {
	for _, s := range t.strings {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

// UnpackTable reads count strings from r, rebuilding the reverse map.
func UnpackTable(r *binaryio.Reader, count int) (*Table, error) {
	t := NewTable()
	for i := 0; i < count; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		t.strings = append(t.strings, s)
		t.index[s] = len(t.strings) - 1
	}
	return t, nil
}

// Dictionary is the three-level path dictionary: directory paths, bare
// file names, and extensions-with-dot.
type Dictionary struct {
	Dirs  *Table
	Names *Table
	Exts  *Table
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		Dirs:  NewTable(),
		Names: NewTable(),
		Exts:  NewTable(),
	}
}

// AddPath inserts the three path components and returns their indices.
func (d *Dictionary) AddPath(dir, name, ext string) (dirID, nameID, extID int) {
	return d.Dirs.Add(dir), d.Names.Add(name), d.Exts.Add(ext)
}

// GetPath rebuilds a full path from component indices. The root directory
// renders as "/name.ext", any other directory as "dir/name.ext".
func (d *Dictionary) GetPath(dirID, nameID, extID int) (string, error) {
	dir, err := d.Dirs.Get(dirID)
	if err != nil {
		return "", err
	}
	name, err := d.Names.Get(nameID)
	if err != nil {
		return "", err
	}
	ext, err := d.Exts.Get(extID)
	if err != nil {
		return "", err
	}
	if dir == "/" {
		return "/" + name + ext, nil
	}
	return dir + "/" + name + ext, nil
}

// Pack writes the three tables in order: dirs, names, exts.
func (d *Dictionary) Pack(w *binaryio.Writer) error {
	if err := d.Dirs.Pack(w); err != nil {
		return err
	}
	if err := d.Names.Pack(w); err != nil {
		return err
	}
	return d.Exts.Pack(w)
}

// UnpackDictionary reads a dictionary written by Pack.
func UnpackDictionary(r *binaryio.Reader, dirCount, nameCount, extCount int) (*Dictionary, error) {
	dirs, err := UnpackTable(r, dirCount)
	if err != nil {
		return nil, err
	}
	names, err := UnpackTable(r, nameCount)
	if err != nil {
		return nil, err
	}
	exts, err := UnpackTable(r, extCount)
	if err != nil {
		return nil, err
	}
	return &Dictionary{Dirs: dirs, Names: names, Exts: exts}, nil
}
