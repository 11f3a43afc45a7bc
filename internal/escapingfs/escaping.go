// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package escapingfs

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TargetWithinRoot reports whether target, once cleaned, still falls at or
// below root. It works purely on lexical paths and does not consult the
// filesystem, so symlinks must be resolved by the caller first.
func TargetWithinRoot(root string, target string) (bool, error) {
	if len(target) == 0 || len(root) == 0 {
		return false, nil
	}

	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false, fmt.Errorf("couldn't find relative path: %w", err)
	}

	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return false, nil
	}
	return true, nil
}

// SafeRelativePath returns target's path relative to root in slash form,
// or an error if target escapes root. The result is suitable for use as
// an archive entry name or a bundle target path.
func SafeRelativePath(root string, target string) (string, error) {
	within, err := TargetWithinRoot(root, target)
	if err != nil {
		return "", err
	}
	if !within {
		return "", fmt.Errorf("path %q escapes the root directory", target)
	}

	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return "", fmt.Errorf("couldn't find relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}
