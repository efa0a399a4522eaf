package resolver

import (
	"fmt"
	"strings"

	"github.com/frederic-klein/fml/internal/version"
)

// via renders the chain of mods that led to a failure, e.g. " (required via mod-a -> mod-b)".
func via(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return fmt.Sprintf(" (required via %s)", strings.Join(path, " -> "))
}

// VersionConflictError means an installed mod does not satisfy a requirement.
// Resolution never upgrades in place; the installed mod must be removed first.
type VersionConflictError struct {
	Name      string
	Installed version.Version
	Required  version.Constraint
	Path      []string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("installed version %s of mod %q does not satisfy required %s; remove it first and retry%s",
		e.Installed, e.Name, e.Required, via(e.Path))
}

// NoCompatibleReleaseError means no release matched both the game version and the constraint.
type NoCompatibleReleaseError struct {
	Name        string
	GameVersion string
	Required    version.Constraint
	Path        []string
}

func (e *NoCompatibleReleaseError) Error() string {
	return fmt.Sprintf("no compatible release found for mod %q (need game version %s, version %s)%s",
		e.Name, e.GameVersion, e.Required, via(e.Path))
}

// IncompatibleModError means Name declares Other incompatible while Other is
// installed or already planned.
type IncompatibleModError struct {
	Name    string
	Other   string
	Planned bool
	Path    []string
}

func (e *IncompatibleModError) Error() string {
	if e.Planned {
		return fmt.Sprintf("cannot install %q: it is incompatible with mod %q, which is also being installed%s",
			e.Name, e.Other, via(e.Path))
	}
	return fmt.Sprintf("cannot install %q: it is incompatible with installed mod %q%s", e.Name, e.Other, via(e.Path))
}

// CatalogFetchError wraps a portal failure for a mod needed by Root.
type CatalogFetchError struct {
	Name string
	Root string
	Err  error
}

func (e *CatalogFetchError) Error() string {
	return fmt.Sprintf("failed to fetch dependency %q (needed by %q): %v", e.Name, e.Root, e.Err)
}

func (e *CatalogFetchError) Unwrap() error {
	return e.Err
}
