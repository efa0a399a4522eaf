package resolver

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/dependency"
	"github.com/frederic-klein/fml/internal/mod"
	"github.com/frederic-klein/fml/internal/version"
)

// Fetcher retrieves full mod details, including every release, by name.
type Fetcher interface {
	GetMod(ctx context.Context, name string) (*mod.Mod, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, name string) (*mod.Mod, error)

// GetMod calls f.
func (f FetcherFunc) GetMod(ctx context.Context, name string) (*mod.Mod, error) {
	return f(ctx, name)
}

// Entry is one release to download.
type Entry struct {
	Name    string
	Release mod.Release
}

// Plan lists releases to download in dependency-first order: every
// required dependency of an entry that is not installed (and is not the
// base game) appears before it. No name appears twice.
type Plan struct {
	Entries []Entry
}

// Len returns the number of entries.
func (p *Plan) Len() int {
	return len(p.Entries)
}

// Names returns entry names in plan order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		names[i] = e.Name
	}
	return names
}

// Resolver turns "install X" into a Plan.
type Resolver struct {
	fetch  Fetcher
	logger *log.Logger
}

// NewResolver creates a resolver that looks mods up through fetch.
func NewResolver(fetch Fetcher, logger *log.Logger) *Resolver {
	return &Resolver{
		fetch:  fetch,
		logger: logger,
	}
}

// resolveContext is the state of a single Resolve call. It is threaded
// through the recursion and never shared between calls.
type resolveContext struct {
	root        string
	gameVersion string
	installed   mod.InstalledState
	visited     map[string]bool
	planned     map[string]bool
	path        []string // ancestors of the mod currently being resolved
	plan        *Plan
}

func (rc *resolveContext) trail() []string {
	if len(rc.path) == 0 {
		return nil
	}
	return append([]string(nil), rc.path...)
}

// Resolve walks target's required dependencies depth-first and returns the
// releases that must be downloaded for gameVersion. installed is read only.
// The walk is sequential: each dependency finishes before the next starts.
func (r *Resolver) Resolve(ctx context.Context, target, gameVersion string, installed mod.InstalledState) (*Plan, error) {
	rc := &resolveContext{
		root:        target,
		gameVersion: gameVersion,
		installed:   installed,
		visited:     make(map[string]bool),
		planned:     make(map[string]bool),
		plan:        &Plan{},
	}

	if err := r.resolveOne(ctx, rc, target, version.Any); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", target, err)
	}

	r.logger.Debug("Resolved plan", "target", target, "entries", rc.plan.Names())
	return rc.plan, nil
}

func (r *Resolver) resolveOne(ctx context.Context, rc *resolveContext, name string, required version.Constraint) error {
	// The game itself is never downloadable
	if name == mod.BaseName {
		return nil
	}

	// Covers both diamonds and cycles
	if rc.visited[name] {
		r.logger.Debug("Already visited", "mod", name)
		return nil
	}
	rc.visited[name] = true

	if have, ok := rc.installed[name]; ok {
		if required.Matches(have) {
			r.logger.Debug("Already installed", "mod", name, "version", have)
			return nil
		}
		return &VersionConflictError{Name: name, Installed: have, Required: required, Path: rc.trail()}
	}

	r.logger.Debug("Resolving", "mod", name, "constraint", required)
	m, err := r.fetch.GetMod(ctx, name)
	if err != nil {
		return &CatalogFetchError{Name: name, Root: rc.root, Err: err}
	}

	release, ok := m.BestRelease(rc.gameVersion, required)
	if !ok {
		return &NoCompatibleReleaseError{Name: name, GameVersion: rc.gameVersion, Required: required, Path: rc.trail()}
	}
	r.logger.Debug("Selected release", "mod", name, "version", release.Version)

	for _, dep := range release.Dependencies {
		switch dep.Kind {
		case dependency.Optional:
			continue
		case dependency.Incompatible:
			if _, ok := rc.installed[dep.Name]; ok {
				return &IncompatibleModError{Name: name, Other: dep.Name, Path: rc.trail()}
			}
			if rc.planned[dep.Name] {
				return &IncompatibleModError{Name: name, Other: dep.Name, Planned: true, Path: rc.trail()}
			}
		case dependency.Required:
			rc.path = append(rc.path, name)
			err := r.resolveOne(ctx, rc, dep.Name, dep.Constraint)
			rc.path = rc.path[:len(rc.path)-1]
			if err != nil {
				return err
			}
		}
	}

	// Every required dependency is already in the plan
	rc.plan.Entries = append(rc.plan.Entries, Entry{Name: name, Release: release})
	rc.planned[name] = true
	return nil
}
