package version

import "fmt"

// Op is a comparison operator in a dependency constraint.
type Op string

const (
	OpAny          Op = ""
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpEqual        Op = "="
)

// Constraint is a single-operator predicate over versions. The zero value
// is the wildcard and matches every version.
type Constraint struct {
	Op      Op
	Version Version
}

// Any is the unconstrained wildcard.
var Any = Constraint{}

// NewConstraint builds a constraint from an operator string such as ">=".
func NewConstraint(op string, v Version) (Constraint, error) {
	switch o := Op(op); o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
		return Constraint{Op: o, Version: v}, nil
	default:
		return Constraint{}, fmt.Errorf("unknown operator %q", op)
	}
}

// IsAny reports whether c is the wildcard.
func (c Constraint) IsAny() bool {
	return c.Op == OpAny
}

// Matches reports whether v satisfies c.
func (c Constraint) Matches(v Version) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpAny:
		return true
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpEqual:
		return cmp == 0
	}
	return false
}

func (c Constraint) String() string {
	if c.IsAny() {
		return "*"
	}
	return fmt.Sprintf("%s %s", c.Op, c.Version)
}
