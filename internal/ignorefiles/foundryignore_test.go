// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ignorefiles

import (
	"testing"
)

func TestLoadPackageIgnoreRules_defaults(t *testing.T) {
	// A directory without .foundryignore gets the shared default ruleset.
	rs, err := LoadPackageIgnoreRules("testdata/external-dir")
	if err != nil {
		t.Fatal(err)
	}
	if rs != DefaultRuleset {
		t.Fatal("expected the default ruleset")
	}
	if len(rs.rules) != 4 {
		t.Fatalf("expected 4 default rules, got %d", len(rs.rules))
	}
}

func TestExcludes(t *testing.T) {
	rs, err := LoadPackageIgnoreRules("testdata/archive-dir")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		path string
		want bool
	}{
		// staging directory and bytecode are excluded by default
		{".foundry/", true},
		{".foundry/staging/bundle", true},
		{".foundry/staging/bundle/more/directories/so/many", true},
		{".foundry/staging/ignored-subdirectory/", true},
		{"lib/util.pyc", true},
		{"lib/__pycache__/util.cpython-312.pyc", true},
		{"app.py", false},

		// a bare file name matches at any depth, but only whole names
		{"notes.txt", true},
		{"vendor/docs/notes.txt", true},
		{"something/with-notes.txt", false},
		{"something/notes.x", false},

		// a directory rule covers everything beneath it
		{"vendor/docs/conf.py", true},
		{"vendor/sdk/client.py", false},

		// wildcard and character group patterns
		{"docs/draft-doc.md", true},
		{"data/sample-a.csv", true},

		// nested dist.d directories are ignored, the root one is kept
		{"some-module/dist.d/x", true},
		{"dist.d/", false},
		{"dist.d/handler.py", false},
		// a plain file that happens to share the directory rule's name
		{"dist.d", false},

		// local.cfg is ignored everywhere except the root directory
		{"envs/local.cfg", true},
		{"local.cfg", false},
	}

	for _, tc := range cases {
		result, err := rs.Excludes(tc.path)
		if err != nil {
			t.Errorf("Excludes(%q): %v", tc.path, err)
			continue
		}
		if result.Excluded != tc.want {
			t.Errorf("Excludes(%q) = %t, want %t", tc.path, result.Excluded, tc.want)
		}
	}
}

func TestExcludes_negations(t *testing.T) {
	rs, err := LoadPackageIgnoreRules("testdata/with-exclusion")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.rules) != 8 {
		t.Fatalf("expected 8 rules, got %d", len(rs.rules))
	}

	// Only the rules before "!src/baz/keep/" have a negation after them.
	wantAfter := []bool{true, true, true, true, true, false, false, false}
	for i, r := range rs.rules {
		if r.negationsAfter != wantAfter[i] {
			t.Errorf("rule %d (%q): negationsAfter = %t, want %t",
				i, r.val, r.negationsAfter, wantAfter[i])
		}
	}

	// Rules with no negations after them dominate, so a walk can prune
	// whole subtrees on a match.
	for _, path := range []string{"logs/", "tmp/"} {
		result, err := rs.Excludes(path)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Excluded || !result.Dominating {
			t.Errorf("Excludes(%q) = %+v, want a dominating exclusion", path, result)
		}
	}

	// src/baz/ matches, but the negation below it may re-include files,
	// so the exclusion must not dominate.
	result, err := rs.Excludes("src/baz/ignored")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Excluded || result.Dominating {
		t.Errorf("Excludes(%q) = %+v, want a non-dominating exclusion", "src/baz/ignored", result)
	}

	result, err = rs.Excludes("src/baz/keep/file.py")
	if err != nil {
		t.Fatal(err)
	}
	if result.Excluded {
		t.Error("negated rule should re-include src/baz/keep/file.py")
	}
}
