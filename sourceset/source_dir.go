// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sourceset

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// DirSource refers to a directory on the local filesystem whose contents are
// merged into a bundle beneath the declared target prefix.
//
// The directory is walked in sorted order at assembly time, applying the
// same ignore rules as archive packing, so the set of files it contributes
// is deterministic for a given directory state.
type DirSource struct {
	// relPath is a slash-separated path in the style of the Go standard
	// library package "path", stored in its "Clean" form plus a trailing
	// slash, aside from the mandatory "./" or "../" prefix. The trailing
	// slash is what distinguishes the written form of a directory source
	// from that of a file source.
	relPath string
}

var _ Source = DirSource{}

// sourceSigil implements Source
func (s DirSource) sourceSigil() {}

// ParseDirSource interprets the given path as a directory source, or returns
// an error if it cannot be interpreted as such.
func ParseDirSource(given string) (DirSource, error) {
	if strings.ContainsAny(given, ":\\") {
		return DirSource{}, fmt.Errorf("must be a relative path using forward-slash separators between segments, like in a relative URL")
	}

	if !looksLikePathSource(given) && given != "." && given != ".." {
		return DirSource{}, fmt.Errorf("must start with either ./ or ../ to indicate a local path")
	}

	clean := path.Clean(given)

	// We use the "path" package's definition of "clean" aside from two
	// exceptions:
	// - we need to retain the leading "./", if it was originally present, to
	//   disambiguate from inline content.
	// - we need a trailing slash because that's part of how we recognize a
	//   directory source as distinct from a file source.
	if clean == ".." {
		clean = "../"
	} else if clean == "." {
		clean = "./"
	}
	if !looksLikePathSource(clean) {
		clean = "./" + clean
	}
	if !strings.HasSuffix(clean, "/") {
		clean = clean + "/"
	}

	if clean != given {
		return DirSource{}, fmt.Errorf("directory path must be written in canonical form %q", clean)
	}

	return DirSource{relPath: clean}, nil
}

// String implements Source
func (s DirSource) String() string {
	return s.relPath
}

// ReadsFromDisk implements Source
func (s DirSource) ReadsFromDisk() bool {
	return true
}

// RelativePath returns the effective relative path for this source, in our
// platform-agnostic slash-separated canonical syntax, including the trailing
// slash that marks it as a directory.
func (s DirSource) RelativePath() string {
	return s.relPath
}

// LocalPath returns the platform-native filesystem path of the referenced
// directory, resolved against the given base directory.
func (s DirSource) LocalPath(baseDir string) string {
	return filepath.Join(baseDir, filepath.FromSlash(path.Clean(s.relPath)))
}
