// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sourceset

import (
	"fmt"
	"strings"
)

// Source acts as a tagged union over the three possible source content types,
// for situations where all three are acceptable.
//
// Source describes where the content for one bundle entry comes from. The
// content itself is not resolved until assembly time, so a Source carrying a
// path can be declared before the file it refers to exists.
//
// Only content types within this package can implement Source.
type Source interface {
	sourceSigil()

	String() string
	ReadsFromDisk() bool
}

// ParseSource attempts to parse the given string as any one of the three
// supported source content types, recognizing which type it belongs to based
// on the syntax differences between the forms.
//
// A string starting with either "./" or "../" is a filesystem reference: it
// becomes a [DirSource] if it ends with a slash, and a [FileSource] otherwise.
// Any other string, including the empty string, is taken verbatim as an
// [InlineSource].
//
// This syntax-based dispatch exists for configuration formats where each
// source is necessarily a single string. Callers constructing sources
// programmatically should use [Inline], [ParseFileSource], or
// [ParseDirSource] directly and avoid the ambiguity altogether.
func ParseSource(given string) (Source, error) {
	switch {
	case looksLikePathSource(given) || given == "." || given == "..":
		if strings.HasSuffix(given, "/") || given == "." || given == ".." {
			ret, err := ParseDirSource(given)
			if err != nil {
				return nil, fmt.Errorf("invalid directory source %q: %w", given, err)
			}
			return ret, nil
		}
		ret, err := ParseFileSource(given)
		if err != nil {
			return nil, fmt.Errorf("invalid file source %q: %w", given, err)
		}
		return ret, nil
	default:
		// Anything that doesn't look like a filesystem reference is inline
		// content, embedded exactly as given. Inline content that happens to
		// begin with "./" must be added with [Inline] directly.
		return Inline(given), nil
	}
}

// MustParseSource is a thin wrapper around [ParseSource] that panics if it
// returns an error, or returns its result if not.
func MustParseSource(given string) Source {
	ret, err := ParseSource(given)
	if err != nil {
		panic(err)
	}
	return ret
}

// looksLikePathSource recognizes the relative-path prefixes that distinguish
// filesystem references from inline content in the single-string syntax.
func looksLikePathSource(given string) bool {
	return strings.HasPrefix(given, "./") || strings.HasPrefix(given, "../")
}
