// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sourceset

import (
	"fmt"
	"sort"
)

// Set is a collection of sources keyed by target filename.
//
// Target filenames are unique within a Set: adding a second source for a
// target that is already present is an error, rather than a replacement,
// because silently losing a declared source would make the resulting bundle
// depend on declaration order.
//
// The zero value of Set is an empty set ready for use.
type Set struct {
	entries map[string]Source
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{}
}

// Add records src as the content for the given target filename.
//
// The target must be a valid slash-separated relative path as defined by
// [ValidTarget]. As a special case, a [DirSource] may be added with an empty
// target, which merges the directory's contents at the root of the bundle;
// the other content types always need a non-empty target to name the file
// they produce.
func (s *Set) Add(target string, src Source) error {
	if src == nil {
		return fmt.Errorf("a source value is required")
	}

	normTarget, err := normalizeTarget(target)
	if err != nil {
		return fmt.Errorf("invalid target filename %q: %w", target, err)
	}
	if normTarget == "" {
		if _, isDir := src.(DirSource); !isDir {
			return fmt.Errorf("a non-empty target filename is required for %s", src)
		}
	}

	if _, exists := s.entries[normTarget]; exists {
		return fmt.Errorf("duplicate target filename %q", normTarget)
	}

	if s.entries == nil {
		s.entries = make(map[string]Source)
	}
	s.entries[normTarget] = src
	return nil
}

// Get returns the source for the given target filename, or (nil, false) if
// the set has no entry for it.
func (s *Set) Get(target string) (Source, bool) {
	if s == nil {
		return nil, false
	}
	src, ok := s.entries[target]
	return src, ok
}

// Has returns true if the set has an entry for the given target filename.
func (s *Set) Has(target string) bool {
	_, ok := s.Get(target)
	return ok
}

// Len returns the number of entries in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Targets returns the target filenames of all entries, sorted, so that
// callers iterating over a set visit its entries in a deterministic order.
func (s *Set) Targets() []string {
	if s == nil || len(s.entries) == 0 {
		return nil
	}
	ret := make([]string, 0, len(s.entries))
	for target := range s.entries {
		ret = append(ret, target)
	}
	sort.Strings(ret)
	return ret
}
