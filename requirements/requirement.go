// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package requirements

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/apparentlymart/go-versions/versions"
)

// Requirement is one declared package dependency: a package name plus an
// optional set of version constraint clauses.
//
// A Requirement is always held in canonical form: the name is normalized the
// way Python package indexes normalize project names (lowercase, with runs
// of ".", "_" and "-" collapsed to a single "-"), and the constraint clauses
// are normalized and sorted. Construct values with [Parse]; the zero value
// is not a valid requirement.
type Requirement struct {
	name      string
	extras    []string
	specifier string
	allowed   versions.Set
}

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?`)
	nameSeparator = regexp.MustCompile(`[-_.]+`)
	clausePattern = regexp.MustCompile(`^(===|==|!=|<=|>=|~=|<|>)\s*([^\s<>=!~,]+)$`)
)

// Parse interprets the given string as a pip-style requirement, or returns
// an error if it cannot be interpreted as such.
//
// The supported syntax is a package name, an optional bracketed extras list,
// and an optional comma-separated list of version constraint clauses using
// the operators ==, !=, <, <=, >, >= and ~=, with "==" also accepting a
// trailing ".*" wildcard. Environment markers (a trailing ";" section) are
// not supported, since a requirement whose meaning varies by install
// environment cannot be compared for conflicts at assembly time.
func Parse(given string) (Requirement, error) {
	if strings.TrimSpace(given) != given {
		return Requirement{}, fmt.Errorf("requirement must not have leading or trailing spaces")
	}
	if len(given) == 0 {
		return Requirement{}, fmt.Errorf("a valid requirement is required")
	}
	if idx := strings.Index(given, ";"); idx >= 0 {
		return Requirement{}, fmt.Errorf("environment markers are not supported")
	}

	rawName := namePattern.FindString(given)
	if rawName == "" {
		return Requirement{}, fmt.Errorf("must start with a package name")
	}
	rest := strings.TrimSpace(given[len(rawName):])

	var extras []string
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Requirement{}, fmt.Errorf("unterminated extras list")
		}
		var err error
		extras, err = parseExtras(rest[1:end])
		if err != nil {
			return Requirement{}, err
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	ret := Requirement{
		name:    NormalizeName(rawName),
		extras:  extras,
		allowed: versions.All,
	}
	if rest == "" {
		return ret, nil
	}

	clauses, rubyClauses, err := parseSpecifier(rest)
	if err != nil {
		return Requirement{}, err
	}
	ret.specifier = strings.Join(clauses, ",")

	allowed, err := versions.MeetingConstraintsStringRuby(strings.Join(rubyClauses, ", "))
	if err != nil {
		return Requirement{}, fmt.Errorf("invalid version constraint %q: %w", rest, err)
	}
	ret.allowed = allowed

	return ret, nil
}

// MustParse is a thin wrapper around [Parse] that panics if it returns an
// error, or returns its result if not.
func MustParse(given string) Requirement {
	ret, err := Parse(given)
	if err != nil {
		panic(err)
	}
	return ret
}

// NormalizeName returns the canonical form of a Python package name: it is
// lowercased, and each run of ".", "_" and "-" characters becomes a single
// "-", so that "Flask_SQLAlchemy" and "flask.sqlalchemy" name one package.
func NormalizeName(name string) string {
	return nameSeparator.ReplaceAllString(strings.ToLower(name), "-")
}

// parseExtras normalizes a comma-separated extras list into sorted canonical
// names.
func parseExtras(given string) ([]string, error) {
	seen := make(map[string]bool)
	var ret []string
	for _, raw := range strings.Split(given, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" || namePattern.FindString(raw) != raw {
			return nil, fmt.Errorf("invalid extra name %q", raw)
		}
		extra := NormalizeName(raw)
		if !seen[extra] {
			seen[extra] = true
			ret = append(ret, extra)
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// parseSpecifier normalizes the comma-separated constraint clauses of a
// requirement, returning both the canonical pip-syntax clauses (sorted and
// deduplicated) and their translation into the ruby-style syntax that our
// version constraint library accepts.
func parseSpecifier(given string) ([]string, []string, error) {
	rawClauses := strings.Split(given, ",")
	seen := make(map[string]bool)
	clauses := make([]string, 0, len(rawClauses))
	rubyClauses := make([]string, 0, len(rawClauses))

	for _, raw := range rawClauses {
		raw = strings.TrimSpace(raw)
		match := clausePattern.FindStringSubmatch(raw)
		if match == nil {
			return nil, nil, fmt.Errorf("invalid constraint clause %q", raw)
		}
		op, ver := match[1], match[2]

		ruby, err := rubyStyleClause(op, ver)
		if err != nil {
			return nil, nil, err
		}

		clause := op + ver
		if !seen[clause] {
			seen[clause] = true
			clauses = append(clauses, clause)
			rubyClauses = append(rubyClauses, ruby)
		}
	}

	sort.Strings(clauses)
	return clauses, rubyClauses, nil
}

// rubyStyleClause translates one pip-syntax constraint clause into the
// equivalent ruby-style clause.
func rubyStyleClause(op, ver string) (string, error) {
	wildcard := strings.HasSuffix(ver, ".*")
	if wildcard && op != "==" {
		return "", fmt.Errorf("a .* wildcard version may only be used with the == operator, not %q", op)
	}

	switch op {
	case "==":
		if wildcard {
			// "==2.2.*" allows any version in the 2.2 series, which is what
			// the pessimistic operator expresses as "~> 2.2.0".
			return "~> " + strings.TrimSuffix(ver, ".*") + ".0", nil
		}
		return "= " + ver, nil
	case "===":
		return "", fmt.Errorf("arbitrary equality %q is not supported", op+ver)
	case "~=":
		// The compatible-release operator needs at least two release
		// segments to say which segment is allowed to float.
		if !strings.Contains(ver, ".") {
			return "", fmt.Errorf("the ~= operator requires a version with at least two segments, not %q", ver)
		}
		return "~> " + ver, nil
	case "!=", "<", "<=", ">", ">=":
		return op + " " + ver, nil
	default:
		// clausePattern only matches the operators above.
		return "", fmt.Errorf("unsupported constraint operator %q", op)
	}
}

// Name returns the canonical package name.
func (r Requirement) Name() string {
	return r.name
}

// Extras returns the canonical extras list, sorted, or nil if the
// requirement declares no extras.
func (r Requirement) Extras() []string {
	return r.extras
}

// Specifier returns the canonical constraint clauses in pip syntax, joined
// with commas, or the empty string for an unconstrained requirement.
func (r Requirement) Specifier() string {
	return r.specifier
}

// Constrained returns true if the requirement carries any version
// constraint clauses.
func (r Requirement) Constrained() bool {
	return r.specifier != ""
}

// Allows returns true if the given version satisfies every constraint
// clause of the requirement. An unconstrained requirement allows all
// versions.
func (r Requirement) Allows(v versions.Version) bool {
	if r.specifier == "" {
		// Unconstrained, including the zero-value Requirement.
		return true
	}
	return r.allowed.Has(v)
}

// ConflictsWith returns true if the other requirement names the same package
// but carries a different constraint set, which is the situation that makes
// a requirement list ambiguous.
func (r Requirement) ConflictsWith(other Requirement) bool {
	return r.name == other.name && r.specifier != other.specifier
}

// String returns the requirement in canonical pip syntax, suitable for a
// requirements.txt line.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.name)
	if len(r.extras) != 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(r.extras, ","))
		b.WriteString("]")
	}
	b.WriteString(r.specifier)
	return b.String()
}
