package mod

import (
	"sort"

	"github.com/frederic-klein/fml/internal/dependency"
	"github.com/frederic-klein/fml/internal/version"
)

// BaseName is the pseudo-mod that stands for the game itself. It is never
// downloadable from the portal.
const BaseName = "base"

// Mod is a portal mod with all of its releases.
type Mod struct {
	Name          string
	Title         string
	Summary       string
	DownloadCount int64
	Releases      []Release // any order; use SortedReleases for newest-first
}

// Release is one downloadable version of a mod.
type Release struct {
	DownloadURL  string // portal-relative path, e.g. /download/mod-a/5a5f1ae6
	FileName     string // e.g. mod-a_1.0.0.zip
	Version      version.Version
	GameVersion  string // e.g. "1.1"
	SHA1         string // may be empty
	Dependencies []dependency.Dependency
}

// Entry is one row of the portal mod list.
type Entry struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	DownloadCount int64  `json:"downloads_count"`
}

// InstalledState maps mod name to installed version.
type InstalledState map[string]version.Version

// SortedReleases returns a copy of the releases, newest version first.
func (m *Mod) SortedReleases() []Release {
	sorted := make([]Release, len(m.Releases))
	copy(sorted, m.Releases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].Version.Less(sorted[i].Version)
	})
	return sorted
}

// LatestRelease returns the newest release, if any.
func (m *Mod) LatestRelease() (Release, bool) {
	if len(m.Releases) == 0 {
		return Release{}, false
	}
	return m.SortedReleases()[0], true
}

// BestRelease returns the newest release for gameVersion whose version
// satisfies c.
func (m *Mod) BestRelease(gameVersion string, c version.Constraint) (Release, bool) {
	for _, r := range m.SortedReleases() {
		if r.GameVersion == gameVersion && c.Matches(r.Version) {
			return r, true
		}
	}
	return Release{}, false
}

// DependenciesOf returns the release's dependencies of kind k in declaration order.
func (r Release) DependenciesOf(k dependency.Kind) []dependency.Dependency {
	var out []dependency.Dependency
	for _, d := range r.Dependencies {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// SortByDownloads orders entries by download count, most downloaded first.
func SortByDownloads(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DownloadCount > entries[j].DownloadCount
	})
}
