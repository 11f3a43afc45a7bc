// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sourceset

import (
	"fmt"
	"io/fs"
	"path"
)

// ValidTarget returns true if the given string is a valid target filename
// as could be used as a key in a [Set].
//
// A target is valid if it's a slash-separated sequence of path segments
// without a leading or trailing slash and without any "." or ".." segments,
// since a target can only name a location downwards from the root of a
// bundle.
func ValidTarget(s string) bool {
	_, err := normalizeTarget(s)
	return err == nil
}

// normalizeTarget interprets the given string as a bundle target filename,
// returning a normalized form of the path or an error if the string does
// not use correct syntax.
func normalizeTarget(given string) (string, error) {
	if given == "" {
		// The empty string is how we represent the absense of a target,
		// which represents the root directory of a bundle. Whether that is
		// acceptable depends on the content type, so [Set.Add] decides.
		return "", nil
	}

	// Our definition of "target" aligns with the definition used by Go's
	// virtual filesystem abstraction, since a bundle is also essentially
	// just a virtual filesystem that later gets staged onto a real one.
	// This definition prohibits "." and ".." segments and therefore prevents
	// upward path traversal.
	if !fs.ValidPath(given) {
		return "", fmt.Errorf("must be slash-separated relative path without any .. or . segments")
	}

	clean := path.Clean(given)

	// Go's path wrangling uses "." to represent "root directory", but
	// we represent that by omitting the target entirely, so we forbid that
	// too even though Go would consider it valid.
	if clean == "." {
		return "", fmt.Errorf("must be slash-separated relative path without any .. or . segments")
	}

	return clean, nil
}
