// Package inventory reads the mod archives installed in a mods directory.
package inventory

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/mod"
	"github.com/frederic-klein/fml/internal/version"
)

// ErrNotInstalled is returned by Delete when no archive matches.
var ErrNotInstalled = errors.New("mod file not found")

// InstalledMod is one archive found in the mods directory.
type InstalledMod struct {
	Name        string
	Title       string
	Version     version.Version
	GameVersion string
	File        string
}

// infoFile is the subset of a mod's info.json we read.
type infoFile struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Title           string `json:"title"`
	FactorioVersion string `json:"factorio_version"`
}

// ReadInstalled scans dir for *.zip archives. Archives that cannot be read
// are logged and skipped. The result is sorted by title, ignoring case.
func ReadInstalled(dir string, logger *log.Logger) ([]InstalledMod, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading mods directory: %w", err)
	}

	var installed []InstalledMod
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		m, err := ReadArchive(p)
		if err != nil {
			logger.Warn("Skipping unreadable mod archive", "file", e.Name(), "err", err)
			continue
		}
		installed = append(installed, m)
	}

	sort.SliceStable(installed, func(i, j int) bool {
		return strings.ToLower(installed[i].Title) < strings.ToLower(installed[j].Title)
	})
	return installed, nil
}

// ReadArchive reads the info.json of a single mod archive. info.json may
// sit at the archive root or one directory deep.
func ReadArchive(archivePath string) (InstalledMod, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return InstalledMod{}, fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	var info *zip.File
	for _, f := range zr.File {
		if path.Base(f.Name) == "info.json" && strings.Count(strings.TrimPrefix(f.Name, "/"), "/") <= 1 {
			info = f
			break
		}
	}
	if info == nil {
		return InstalledMod{}, fmt.Errorf("no info.json in %s", filepath.Base(archivePath))
	}

	rc, err := info.Open()
	if err != nil {
		return InstalledMod{}, fmt.Errorf("opening info.json: %w", err)
	}
	defer rc.Close()

	// info.json is tiny, anything larger is not a mod manifest
	data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
	if err != nil {
		return InstalledMod{}, fmt.Errorf("reading info.json: %w", err)
	}

	var meta infoFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return InstalledMod{}, fmt.Errorf("parsing info.json: %w", err)
	}
	if meta.Name == "" {
		return InstalledMod{}, fmt.Errorf("info.json in %s has no name", filepath.Base(archivePath))
	}
	v, err := version.Parse(meta.Version)
	if err != nil {
		return InstalledMod{}, fmt.Errorf("invalid version %q: %w", meta.Version, err)
	}

	title := meta.Title
	if title == "" {
		title = meta.Name
	}
	return InstalledMod{
		Name:        meta.Name,
		Title:       title,
		Version:     v,
		GameVersion: meta.FactorioVersion,
		File:        archivePath,
	}, nil
}

// State builds the installed-state snapshot the resolver consumes. If two
// archives carry the same mod, the newer version wins.
func State(mods []InstalledMod) mod.InstalledState {
	state := make(mod.InstalledState, len(mods))
	for _, m := range mods {
		if cur, ok := state[m.Name]; ok && !cur.Less(m.Version) {
			continue
		}
		state[m.Name] = m.Version
	}
	return state
}

// FileName is the archive name the portal uses for a release.
func FileName(name string, v version.Version) string {
	return fmt.Sprintf("%s_%s.zip", name, v)
}

// Delete removes exactly <name>_<version>.zip from dir. Archives of other
// mods sharing a name prefix are never touched.
func Delete(dir, name string, v version.Version) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid mod name %q", name)
	}
	p := filepath.Join(dir, FileName(name, v))
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s in %s: %w", filepath.Base(p), dir, ErrNotInstalled)
		}
		return fmt.Errorf("deleting %s: %w", filepath.Base(p), err)
	}
	return nil
}
