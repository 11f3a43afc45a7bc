// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package requirements

import (
	"fmt"
	"sort"
	"strings"
)

// List is an ordered collection of requirements, in whatever order the
// caller declared them.
type List []Requirement

// ParseList parses each of the given requirement strings with [Parse],
// preserving declaration order. It returns an error for the first string
// that does not parse; it does not check for conflicts between entries,
// which is [List.Normalize]'s job.
func ParseList(given []string) (List, error) {
	if len(given) == 0 {
		return nil, nil
	}
	ret := make(List, 0, len(given))
	for _, raw := range given {
		req, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid requirement %q: %w", raw, err)
		}
		ret = append(ret, req)
	}
	return ret, nil
}

// Normalize returns a copy of the list sorted by package name with exact
// duplicates collapsed, or an error if two entries name the same package
// with different constraint sets.
//
// Two entries conflict only when their canonical constraint clauses differ;
// the same declaration written twice, even with different spelling, is
// merged silently. Extras do not participate in conflict detection, so a
// package wanted both plain and with an extra resolves to the union of the
// declared extras.
func (l List) Normalize() (List, error) {
	if len(l) == 0 {
		return nil, nil
	}

	byName := make(map[string]Requirement, len(l))
	names := make([]string, 0, len(l))
	for _, req := range l {
		prev, exists := byName[req.name]
		if !exists {
			byName[req.name] = req
			names = append(names, req.name)
			continue
		}
		if prev.ConflictsWith(req) {
			return nil, fmt.Errorf("conflicting version constraints for package %q: %q and %q",
				req.name, prev.String(), req.String())
		}
		byName[req.name] = mergeExtras(prev, req)
	}

	sort.Strings(names)
	ret := make(List, 0, len(names))
	for _, name := range names {
		ret = append(ret, byName[name])
	}
	return ret, nil
}

// mergeExtras combines two equal-constraint requirements for the same
// package into one carrying the union of their extras.
func mergeExtras(a, b Requirement) Requirement {
	if len(b.extras) == 0 {
		return a
	}
	if len(a.extras) == 0 {
		a.extras = b.extras
		return a
	}
	seen := make(map[string]bool, len(a.extras))
	merged := make([]string, 0, len(a.extras)+len(b.extras))
	for _, extra := range a.extras {
		seen[extra] = true
		merged = append(merged, extra)
	}
	for _, extra := range b.extras {
		if !seen[extra] {
			merged = append(merged, extra)
		}
	}
	sort.Strings(merged)
	a.extras = merged
	return a
}

// String returns the list in requirements.txt form: one canonical
// requirement per line, in the list's own order, with no trailing newline.
func (l List) String() string {
	lines := make([]string, len(l))
	for i, req := range l {
		lines[i] = req.String()
	}
	return strings.Join(lines, "\n")
}
