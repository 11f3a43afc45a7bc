// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package ignorefiles deals with the ".foundryignore" file format, which
// is a convention resembling Git's ".gitignore" format that allows
// excluding irrelevant files from a packaged function bundle.
package ignorefiles

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// A Ruleset is the result of reading, parsing, and compiling a
// ".foundryignore" file.
type Ruleset struct {
	rules []rule
}

// DefaultRuleset is the effective ruleset for a bundle directory that has
// no ".foundryignore" file of its own.
var DefaultRuleset *Ruleset

// IgnoreFilename is the name of the ignore file sought in the root of a
// bundle directory.
const IgnoreFilename = ".foundryignore"

// LoadPackageIgnoreRules tries to read the ".foundryignore" file from the
// given directory, returning the default ruleset if it's absent.
func LoadPackageIgnoreRules(packageDir string) (*Ruleset, error) {
	file, err := os.Open(filepath.Join(packageDir, IgnoreFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuleset, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", IgnoreFilename, err)
	}
	defer file.Close()

	ret, err := ParseIgnoreFileContent(file)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", IgnoreFilename, err)
	}
	return ret, nil
}

// ParseIgnoreFileContent parses ignore rules from a reader whose content
// follows the ".foundryignore" format. The default exclusions always come
// first, so explicit rules can override them.
func ParseIgnoreFileContent(r io.Reader) (*Ruleset, error) {
	rules, err := readRules(r)
	if err != nil {
		return nil, err
	}
	return &Ruleset{rules: rules}, nil
}

// ExcludesResult is a description of whether and how a path matched a
// ruleset.
type ExcludesResult struct {
	// Excluded is true if the path matched an exclusion rule.
	Excluded bool

	// Dominating is true when the matching rule is not followed by any
	// negated rule, so a match on a directory can prune its whole
	// subtree without consulting the ruleset again.
	Dominating bool
}

// Excludes tests whether the ruleset excludes the given path, which must
// be relative to the bundle root and in slash form.
func (r *Ruleset) Excludes(path string) (ExcludesResult, error) {
	if r == nil {
		return ExcludesResult{}, nil
	}

	matched := false
	dominating := false
	for i := range r.rules {
		rule := &r.rules[i]
		match, err := rule.matches(path)
		if err != nil {
			return ExcludesResult{}, fmt.Errorf("invalid ignore rule %q", rule.val)
		}
		if match {
			matched = !rule.negated
			dominating = matched && !rule.negationsAfter
		}
	}
	return ExcludesResult{
		Excluded:   matched,
		Dominating: dominating,
	}, nil
}

// Includes is the inverse of Excludes, for callers that filter rather
// than skip.
func (r *Ruleset) Includes(path string) (bool, error) {
	result, err := r.Excludes(path)
	return !result.Excluded, err
}

func init() {
	rules := defaultExclusions()
	for i := range rules {
		if err := rules[i].ensureCompiled(); err != nil {
			panic(err)
		}
	}
	DefaultRuleset = &Ruleset{rules: rules}
}
