// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ignorefiles

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"text/scanner"
)

type rule struct {
	val            string         // the pattern as written, without any leading "!"
	negated        bool           // "!" prefix: matching paths are re-included
	negationsAfter bool           // a negated rule appears later in the ruleset
	regex          *regexp.Regexp // compiled from val
	rootedRegex    *regexp.Regexp // compiled from val minus its leading "/", when rooted
}

// defaultExclusions returns a fresh copy of the rules that apply to every
// bundle directory: version control internals, the staging directory, and
// Python bytecode caches, none of which belong in a deployable unit.
func defaultExclusions() []rule {
	return []rule{
		{val: ".git/"},
		{val: "**/.foundry/"},
		{val: "**/__pycache__/"},
		{val: "**/*.pyc"},
	}
}

func readRules(input io.Reader) ([]rule, error) {
	rules := defaultExclusions()
	scanner := bufio.NewScanner(input)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		pattern := strings.TrimSpace(scanner.Text())
		if len(pattern) == 0 {
			continue
		}
		if pattern[0] == '#' {
			continue
		}

		rule := rule{}
		if pattern[0] == '!' {
			rule.negated = true
			pattern = pattern[1:]
		}
		rule.val = pattern
		rules = append(rules, rule)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("syntax error in ignore rules: %w", err)
	}

	// Record, for each rule, whether any negated rule follows it. A match
	// on a rule with no negations after it can never be overturned.
	negated := false
	for i := len(rules) - 1; i >= 0; i-- {
		rules[i].negationsAfter = negated
		if rules[i].negated {
			negated = true
		}
	}

	// Compile eagerly so a bad pattern fails at load time, and so rulesets
	// shared between builders are never mutated during matching.
	for i := range rules {
		if err := rules[i].ensureCompiled(); err != nil {
			return nil, fmt.Errorf("invalid ignore rule %q", rules[i].val)
		}
	}

	return rules, nil
}

// matches applies the rule to a slash-form path relative to the bundle
// root, trying the full path, the bare filename, each parent directory,
// and finally the root-anchored forms for patterns that begin with "/".
func (r *rule) matches(p string) (bool, error) {
	if err := r.ensureCompiled(); err != nil {
		return false, err
	}

	if r.regex.MatchString(p) {
		return true, nil
	}

	dir, filename := path.Split(p)
	rooted := r.rootedRegex != nil

	if !rooted && r.regex.MatchString(filename) {
		return true, nil
	}

	// Does some combination of the path's parents match the rule? This is
	// how a directory pattern like "vendor/docs/" catches everything
	// beneath it.
	dirParts := strings.Split(dir, "/")
	for i := range dirParts {
		if r.regex.MatchString(strings.Join(dirParts[:i], "/") + "/") {
			return true, nil
		}
	}

	if rooted {
		// A leading "/" anchors the pattern to the bundle root: match the
		// bare filename only at the top level, or the immediate directory
		// prefix. This distinguishes ignoring "dist.d" everywhere from
		// re-including the root "./dist.d/".
		if dir == "" {
			return r.rootedRegex.MatchString(filename), nil
		}
		return r.rootedRegex.MatchString(dir), nil
	}

	return false, nil
}

func (r *rule) ensureCompiled() error {
	if r.regex != nil {
		return nil
	}

	re, err := compilePattern(r.val)
	if err != nil {
		return err
	}
	r.regex = re

	if strings.HasPrefix(r.val, "/") {
		bare, err := compilePattern(r.val[1:])
		if err != nil {
			return err
		}
		r.rootedRegex = bare
	}
	return nil
}

// compilePattern converts a ".foundryignore" pattern into an anchored
// regular expression. Paths are always compared in slash form, so the
// separator never varies by platform. A scanner is used so multibyte
// characters in patterns survive intact.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	regStr := "^"

	var scan scanner.Scanner
	scan.Init(strings.NewReader(pattern))

	for scan.Peek() != scanner.EOF {
		ch := scan.Next()
		switch {
		case ch == '*':
			if scan.Peek() == '*' {
				// is some flavor of "**"
				scan.Next()

				// Treat **/ as ** so eat the "/"
				if scan.Peek() == '/' {
					scan.Next()
				}

				if scan.Peek() == scanner.EOF {
					// is "**EOF" - to align with .gitignore just accept all
					regStr += ".*"
				} else {
					// is "**"
					// Note that this allows for any # of /'s (even 0) because
					// the .* will eat everything, even /'s
					regStr += "(.*/)?"
				}
			} else {
				// is "*" so map it to anything but "/"
				regStr += "[^/]*"
			}
		case ch == '?':
			// "?" is any char except "/"
			regStr += "[^/]"
		case ch == '.' || ch == '$':
			// Escape regexp special chars that have no special meaning in
			// ignore patterns
			regStr += `\` + string(ch)
		case ch == '\\':
			// escape next char. Note that a trailing \ in the pattern
			// will be left alone (but need to escape it)
			if scan.Peek() != scanner.EOF {
				regStr += `\` + string(scan.Next())
			} else {
				regStr += `\\`
			}
		default:
			regStr += string(ch)
		}
	}

	regStr += "$"
	return regexp.Compile(regStr)
}
