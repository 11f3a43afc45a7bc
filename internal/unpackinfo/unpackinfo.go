// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unpackinfo

import (
	"archive/tar"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-foundry/internal/escapingfs"
)

// UnpackInfo stores information about the file or directory being
// extracted from a bundle archive, so that permissions and timestamps
// can be restored once extraction finishes.
type UnpackInfo struct {
	Path               string
	OriginalAccessTime time.Time
	OriginalModTime    time.Time
	OriginalMode       fs.FileMode
	Typeflag           byte
}

// NewUnpackInfo validates the destination implied by a tar header and
// returns an UnpackInfo for it. It rejects names that traverse outside
// dst, destinations reached through an existing symlink, and entry types
// a bundle never contains.
func NewUnpackInfo(dst string, header *tar.Header) (UnpackInfo, error) {
	name := header.Name
	if strings.HasPrefix(name, "/") {
		name = name[1:]
	}
	target := filepath.Clean(filepath.Join(dst, name))

	within, err := escapingfs.TargetWithinRoot(dst, target)
	if err != nil {
		return UnpackInfo{}, fmt.Errorf("failed to evaluate path %q: %w", header.Name, err)
	}
	if !within {
		return UnpackInfo{}, errors.New("invalid filename, traversal with \"..\" outside of current directory")
	}

	// Walk the existing parents of the target. Extracting through a
	// symlinked directory would let an archive place files outside dst
	// (zipslip), so any symlink on the way is fatal.
	dirPath := filepath.Dir(target)
	for dirPath != filepath.Clean(dst) {
		fi, err := os.Lstat(dirPath)
		if os.IsNotExist(err) {
			// Parent directories don't exist yet; they will be created
			// fresh during extraction, so nothing older can interfere.
			break
		}
		if err != nil {
			return UnpackInfo{}, fmt.Errorf("failed to evaluate path %q: %w", header.Name, err)
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return UnpackInfo{}, fmt.Errorf("cannot extract %q through symlink", header.Name)
		}
		dirPath = filepath.Dir(dirPath)
	}

	result := UnpackInfo{
		Path:               target,
		OriginalAccessTime: header.AccessTime,
		OriginalModTime:    header.ModTime,
		OriginalMode:       header.FileInfo().Mode(),
		Typeflag:           header.Typeflag,
	}

	if !result.IsDirectory() && !result.IsSymlink() && !result.IsRegular() && !result.IsTypeX() {
		return UnpackInfo{}, fmt.Errorf("failed to extract %q: unsupported file type %q", name, result.Typeflag)
	}

	return result, nil
}

// IsSymlink describes whether the file being extracted is a symlink
func (i UnpackInfo) IsSymlink() bool {
	return i.Typeflag == tar.TypeSymlink
}

// IsDirectory describes whether the file being extracted is a directory
func (i UnpackInfo) IsDirectory() bool {
	return i.Typeflag == tar.TypeDir
}

// IsTypeX describes whether the file being extracted is a special
// TypeXHeader that can be ignored by the read loop
func (i UnpackInfo) IsTypeX() bool {
	return i.Typeflag == tar.TypeXGlobalHeader ||
		i.Typeflag == tar.TypeXHeader
}

// IsRegular describes whether the file being extracted is a regular file
func (i UnpackInfo) IsRegular() bool {
	return i.Typeflag == tar.TypeReg
}

// RestoreInfo changes the file mode and timestamps for the given
// UnpackInfo data
func (i UnpackInfo) RestoreInfo() error {
	switch {
	case i.IsDirectory() || i.IsRegular():
		if err := os.Chmod(i.Path, i.OriginalMode); err != nil {
			return fmt.Errorf("failed setting permissions on %q: %w", i.Path, err)
		}
		if err := os.Chtimes(i.Path, i.OriginalAccessTime, i.OriginalModTime); err != nil {
			return fmt.Errorf("failed setting times on %q: %w", i.Path, err)
		}
		return nil

	case i.IsSymlink():
		if CanMaintainSymlinkTimestamps() {
			if err := i.Lchtimes(); err != nil {
				return fmt.Errorf("failed setting times on symlink %q: %w", i.Path, err)
			}
		}
		return nil

	default:
		// Should never happen; NewUnpackInfo rejects other types.
		return fmt.Errorf("unexpected file type %q for %q", i.Typeflag, i.Path)
	}
}
