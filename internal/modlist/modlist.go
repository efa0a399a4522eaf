// Package modlist reads and writes the game's mod-list.json, which records
// which installed mods are enabled.
package modlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/frederic-klein/fml/internal/mod"
)

// FileName is the name of the list inside the mods directory.
const FileName = "mod-list.json"

// Entry is one mod in the list.
type Entry struct {
	Name    string  `json:"name"`
	Enabled bool    `json:"enabled"`
	Version *string `json:"version,omitempty"`
}

type file struct {
	Mods []Entry `json:"mods"`
}

// List is the in-memory mod list, keyed by mod name.
type List struct {
	mods map[string]Entry
}

// New returns a list holding only the enabled base mod.
func New() *List {
	return &List{mods: map[string]Entry{
		mod.BaseName: {Name: mod.BaseName, Enabled: true},
	}}
}

// Read decodes a mod list from r.
func Read(r io.Reader) (*List, error) {
	var f file
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing mod list: %w", err)
	}
	l := &List{mods: make(map[string]Entry, len(f.Mods))}
	for _, e := range f.Mods {
		if e.Name == "" {
			continue
		}
		l.mods[e.Name] = e
	}
	return l, nil
}

// LoadOrCreate reads dir/mod-list.json, or returns New when it does not exist.
func LoadOrCreate(dir string) (*List, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Write encodes the list as indented JSON, base first, then by name.
func (l *List) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(file{Mods: l.Entries()})
}

// Save writes the list to dir/mod-list.json.
func (l *List) Save(dir string) error {
	path := filepath.Join(dir, FileName)

	// Write to temp file first, then rename
	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating mod list: %w", err)
	}
	if err := l.Write(out); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing mod list: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing mod list: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming mod list: %w", err)
	}
	return nil
}

// Entries returns the list in file order.
func (l *List) Entries() []Entry {
	entries := make([]Entry, 0, len(l.mods))
	for _, e := range l.mods {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Name == mod.BaseName) != (entries[j].Name == mod.BaseName) {
			return entries[i].Name == mod.BaseName
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// SetEnabled enables or disables name, adding it when missing.
func (l *List) SetEnabled(name string, enabled bool) {
	e, ok := l.mods[name]
	if !ok {
		e = Entry{Name: name}
	}
	e.Enabled = enabled
	l.mods[name] = e
}

// IsEnabled reports whether name is listed and enabled.
func (l *List) IsEnabled(name string) bool {
	return l.mods[name].Enabled
}

// Contains reports whether name is listed.
func (l *List) Contains(name string) bool {
	_, ok := l.mods[name]
	return ok
}

// Remove drops name from the list. Removing base is a no-op.
func (l *List) Remove(name string) {
	if name == mod.BaseName {
		return
	}
	delete(l.mods, name)
}
