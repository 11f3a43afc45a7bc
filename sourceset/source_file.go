// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sourceset

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// FileSource refers to a single file on the local filesystem whose bytes are
// embedded into a bundle under the declared target filename.
//
// The path is project-relative so that the same declaration resolves to the
// same content regardless of which machine performs the build; it is joined
// to a base directory only at assembly time.
type FileSource struct {
	// relPath is a slash-separated path in the style of the Go standard
	// library package "path", which should always be stored in its "Clean"
	// form, aside from the mandatory "./" or "../" prefix.
	relPath string
}

var _ Source = FileSource{}

// sourceSigil implements Source
func (s FileSource) sourceSigil() {}

// ParseFileSource interprets the given path as a file source, or returns an
// error if it cannot be interpreted as such.
func ParseFileSource(given string) (FileSource, error) {
	// First we'll catch some situations that seem likely to suggest that
	// the caller was trying to use a platform-native filesystem path
	// instead of the portable slash-separated form.
	if strings.ContainsAny(given, ":\\") {
		return FileSource{}, fmt.Errorf("must be a relative path using forward-slash separators between segments, like in a relative URL")
	}

	// We distinguish filesystem references from inline content by them
	// starting with some kind of relative path prefix.
	if !looksLikePathSource(given) {
		return FileSource{}, fmt.Errorf("must start with either ./ or ../ to indicate a local path")
	}

	// A trailing slash means the author was describing a directory, which
	// is a different content type with its own parser.
	if strings.HasSuffix(given, "/") {
		return FileSource{}, fmt.Errorf("refers to a directory; a directory source must be parsed with ParseDirSource")
	}

	clean := path.Clean(given)
	if !looksLikePathSource(clean) {
		clean = "./" + clean
	}

	if clean != given {
		return FileSource{}, fmt.Errorf("relative path must be written in canonical form %q", clean)
	}

	return FileSource{relPath: clean}, nil
}

// String implements Source
func (s FileSource) String() string {
	return s.relPath
}

// ReadsFromDisk implements Source
func (s FileSource) ReadsFromDisk() bool {
	return true
}

// RelativePath returns the effective relative path for this source, in our
// platform-agnostic slash-separated canonical syntax.
func (s FileSource) RelativePath() string {
	return s.relPath
}

// LocalPath returns the platform-native filesystem path of the referenced
// file, resolved against the given base directory.
func (s FileSource) LocalPath(baseDir string) string {
	return filepath.Join(baseDir, filepath.FromSlash(path.Clean(s.relPath)))
}
