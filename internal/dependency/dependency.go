package dependency

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/frederic-klein/fml/internal/version"
)

// ErrMalformed is wrapped by every Parse failure.
var ErrMalformed = errors.New("malformed dependency")

// Kind is the resolution semantics of a dependency declaration.
type Kind int

const (
	Required Kind = iota
	Optional
	Incompatible
)

func (k Kind) String() string {
	switch k {
	case Required:
		return "required"
	case Optional:
		return "optional"
	case Incompatible:
		return "incompatible"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Dependency is one parsed entry from a release's info.json dependencies.
type Dependency struct {
	Name       string
	Constraint version.Constraint
	Kind       Kind
	// NoLoadOrder is set for "~" declarations. It affects load ordering
	// only and resolves exactly like Required.
	NoLoadOrder bool
	// Hidden is set for "(?)" declarations, which resolve like Optional.
	Hidden bool
}

func (d Dependency) String() string {
	var b strings.Builder
	switch {
	case d.Hidden:
		b.WriteString("(?) ")
	case d.NoLoadOrder:
		b.WriteString("~ ")
	case d.Kind == Optional:
		b.WriteString("? ")
	case d.Kind == Incompatible:
		b.WriteString("! ")
	}
	b.WriteString(d.Name)
	if !d.Constraint.IsAny() {
		b.WriteString(" ")
		b.WriteString(d.Constraint.String())
	}
	return b.String()
}

// prefix, name (letters, digits, _ - and interior spaces), optional operator + version
var declRe = regexp.MustCompile(`^\s*(\(\?\)|[!?~])?\s*([A-Za-z0-9_-](?:[A-Za-z0-9_ -]*[A-Za-z0-9_-])?)\s*(?:(<=|>=|<|>|=)\s*(\d+(?:\.\d+){0,2}))?\s*$`)

// Parse converts one raw declaration such as "? Krastorio 2 >= 1.1.0".
func Parse(s string) (Dependency, error) {
	m := declRe.FindStringSubmatch(s)
	if m == nil {
		return Dependency{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	d := Dependency{
		Name:       strings.TrimSpace(m[2]),
		Constraint: version.Any,
	}

	switch m[1] {
	case "":
		d.Kind = Required
	case "~":
		d.Kind = Required
		d.NoLoadOrder = true
	case "?":
		d.Kind = Optional
	case "(?)":
		d.Kind = Optional
		d.Hidden = true
	case "!":
		d.Kind = Incompatible
	}

	if m[3] != "" {
		v, err := version.Parse(m[4])
		if err != nil {
			return Dependency{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
		}
		c, err := version.NewConstraint(m[3], v)
		if err != nil {
			return Dependency{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
		}
		d.Constraint = c
	}

	return d, nil
}

// ParseAll parses every declaration independently. Malformed entries are
// returned in errs and left out of deps; they never affect the others.
func ParseAll(raw []string) (deps []Dependency, errs []error) {
	deps = make([]Dependency, 0, len(raw))
	for _, s := range raw {
		d, err := Parse(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		deps = append(deps, d)
	}
	return deps, errs
}
