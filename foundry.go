// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package foundry packs directories of serverless function source code
// into gzip-compressed tar archives, and extracts such archives again,
// while defending against entries that would escape the target directory.
package foundry

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-foundry/internal/copyUtil"
	"github.com/hashicorp/go-foundry/internal/escapingfs"
	"github.com/hashicorp/go-foundry/internal/ignorefiles"
	"github.com/hashicorp/go-foundry/internal/unpackinfo"
)

// Meta provides detailed information about a bundle archive.
type Meta struct {
	// The list of files contained in the archive.
	Files []string

	// Total size of the archive in bytes.
	Size int64
}

// IllegalBundleError indicates the bundle contains a file or a link that
// would escape the directory it is packed from or extracted into.
type IllegalBundleError struct {
	Err error
}

func (e *IllegalBundleError) Error() string {
	return fmt.Sprintf("illegal bundle error: %v", e.Err)
}

// Unwrap returns the underlying issue with the provided bundle into the
// error chain.
func (e *IllegalBundleError) Unwrap() error {
	return e.Err
}

// externalSymlink is a representation of a symlink with an external target.
type externalSymlink struct {
	absTarget string
	target    string
	info      os.FileInfo
}

// PackerOption is a functional option type used to modify the behavior of
// the Packer.
type PackerOption func(*Packer) error

// ApplyIgnoreRules tells the Packer to exclude files and directories
// matched by the source directory's ".foundryignore" file, or by the
// default exclusions if no such file exists.
func ApplyIgnoreRules() PackerOption {
	return func(p *Packer) error {
		p.applyIgnoreRules = true
		return nil
	}
}

// DereferenceSymlinks tells the Packer to dereference symlinks whose
// target lies outside the source directory, packing the target's content
// in place of the link. Symlinks with targets inside the source directory
// are always preserved as links.
func DereferenceSymlinks() PackerOption {
	return func(p *Packer) error {
		p.dereference = true
		return nil
	}
}

// AllowSymlinkTarget allows the Packer to pack and unpack symlinks
// pointing at the given external target, which may name either a single
// file or a prefix ending in "/" that admits everything beneath it.
func AllowSymlinkTarget(path string) PackerOption {
	return func(p *Packer) error {
		p.allowSymlinkTargets = append(p.allowSymlinkTargets, path)
		return nil
	}
}

// Packer holds the appropriate configuration to pack and unpack bundle
// archives.
type Packer struct {
	dereference         bool
	applyIgnoreRules    bool
	allowSymlinkTargets []string
}

// NewPacker is a constructor for Packer.
func NewPacker(options ...PackerOption) (*Packer, error) {
	p := &Packer{}

	for _, opt := range options {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	return p, nil
}

// Pack at the package level creates a default Packer with ignore rules
// applied, and uses it to pack the src directory into the writer w.
func Pack(src string, w io.Writer, dereference bool) (*Meta, error) {
	p := &Packer{
		dereference:      dereference,
		applyIgnoreRules: true,
	}
	return p.Pack(src, w)
}

// Pack creates a bundle archive from the src directory and writes the
// compressed archive to w. Returned metadata lists every archived file
// along with the total byte size of all file bodies.
func (p *Packer) Pack(src string, w io.Writer) (*Meta, error) {
	// The source directory might be a symlink itself, in which case we
	// pack the target directory under the original name.
	info, err := os.Lstat(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %q: %w", src, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		src, err = filepath.EvalSymlinks(src)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source directory %q: %w", src, err)
		}
	}

	// Gzip compress all the output data.
	gzipW := gzip.NewWriter(w)

	// Tar the file contents.
	tarW := tar.NewWriter(gzipW)

	// Load the ignore rule configuration, which will use defaults if no
	// .foundryignore is present.
	var ignoreRules *ignorefiles.Ruleset
	if p.applyIgnoreRules {
		ignoreRules, err = ignorefiles.LoadPackageIgnoreRules(src)
		if err != nil {
			return nil, err
		}
	}

	// Track the metadata details as we go.
	meta := &Meta{}

	// Walk the tree of files.
	err = filepath.Walk(src, p.packWalkFn(src, src, src, tarW, meta, ignoreRules))
	if err != nil {
		return nil, err
	}

	// Flush the tar writer.
	if err := tarW.Close(); err != nil {
		return nil, fmt.Errorf("failed to close the tar archive: %w", err)
	}

	// Flush the gzip writer.
	if err := gzipW.Close(); err != nil {
		return nil, fmt.Errorf("failed to close the gzip writer: %w", err)
	}

	return meta, nil
}

func (p *Packer) packWalkFn(root, src, dst string, tarW *tar.Writer, meta *Meta, ignoreRules *ignorefiles.Ruleset) filepath.WalkFunc {
	return func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Get the relative path from the current src directory.
		subpath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for file %q: %w", path, err)
		}
		if subpath == "." {
			return nil
		}

		slashPath := filepath.ToSlash(subpath)

		if info.IsDir() {
			// Directories are matched with a trailing slash. A dominating
			// match can prune the whole subtree; otherwise a negated rule
			// further down may still re-include individual files, so we
			// must keep walking and just omit the directory entry itself.
			result, err := ignoreRules.Excludes(slashPath + "/")
			if err != nil {
				return err
			}
			if result.Excluded {
				if result.Dominating {
					return filepath.SkipDir
				}
				return nil
			}
		} else {
			result, err := ignoreRules.Excludes(slashPath)
			if err != nil {
				return err
			}
			if result.Excluded {
				return nil
			}
		}

		// Get the relative path from the initial root directory. When we
		// recurse into an external symlink target, entries are recorded
		// under the link's own path.
		subpath, err = filepath.Rel(root, strings.Replace(path, src, dst, 1))
		if err != nil {
			return fmt.Errorf("failed to get relative path for file %q: %w", path, err)
		}
		if subpath == "." {
			return nil
		}

		// Check the file type and if we need to write the body.
		keepFile, writeBody := checkFileMode(info.Mode())
		if !keepFile {
			return nil
		}

		fm := info.Mode()
		header := &tar.Header{
			Name:    filepath.ToSlash(subpath),
			ModTime: info.ModTime(),
			Mode:    int64(fm.Perm()),
		}

		switch {
		case info.IsDir():
			header.Typeflag = tar.TypeDir
			header.Name += "/"

		case fm.IsRegular():
			header.Typeflag = tar.TypeReg
			header.Size = info.Size()

		case fm&os.ModeSymlink != 0:
			// Read the symlink file to find the destination.
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink %q: %w", path, err)
			}

			// Check if the symlink's target falls within the root.
			if ok, err := p.validSymlink(root, path, target); ok {
				// We can simply copy the link.
				header.Typeflag = tar.TypeSymlink
				header.Linkname = filepath.ToSlash(target)
				break
			} else if !p.dereference {
				// If the target does not fall within the root and
				// dereferencing is not enabled, we can't resolve this
				// link without breaking the bundle's isolation.
				return err
			}

			// Attempt to follow the external target so we can copy its
			// contents into the archive.
			resolved, err := p.resolveExternalLink(root, path)
			if err != nil {
				return err
			}

			// If the target is a directory we can recurse into the
			// target directory by calling the packWalkFn with updated
			// arguments.
			if resolved.info.IsDir() {
				return filepath.Walk(resolved.absTarget, p.packWalkFn(
					root, resolved.absTarget, path, tarW, meta, ignoreRules))
			}

			// Dereference this symlink by updating the header with the
			// target file details and set writeBody to true so the body
			// will be written.
			header.Typeflag = tar.TypeReg
			header.ModTime = resolved.info.ModTime()
			header.Mode = int64(resolved.info.Mode().Perm())
			header.Size = resolved.info.Size()
			writeBody = true
			path = resolved.absTarget

		default:
			return fmt.Errorf("unexpected file mode %v", fm)
		}

		// Write the header first to the archive.
		if err := tarW.WriteHeader(header); err != nil {
			return fmt.Errorf("failed writing archive header for file %q: %w", path, err)
		}

		// Account for the file in the list.
		meta.Files = append(meta.Files, header.Name)

		// Skip writing file data for certain file types (above).
		if !writeBody {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed opening file %q for archiving: %w", path, err)
		}
		defer f.Close()

		size, err := io.Copy(tarW, f)
		if err != nil {
			return fmt.Errorf("failed copying file %q to archive: %w", path, err)
		}

		// Add the size we copied to the body.
		meta.Size += size

		return nil
	}
}

// resolveExternalLink reads the symlink at the given path and returns
// the absolute, fully resolved target along with its file info.
func (p *Packer) resolveExternalLink(root string, path string) (*externalSymlink, error) {
	// Read the symlink file to find the destination.
	target, err := os.Readlink(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symlink %q: %w", path, err)
	}

	// Get an absolute path to the target.
	absTarget := target
	if !filepath.IsAbs(absTarget) {
		absTarget = filepath.Join(filepath.Dir(path), target)
	}
	absTarget, err = filepath.EvalSymlinks(absTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path of symlink %q: %w", path, err)
	}

	info, err := os.Lstat(absTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info of symlink %q: %w", absTarget, err)
	}

	return &externalSymlink{
		absTarget: absTarget,
		target:    target,
		info:      info,
	}, nil
}

// Unpack at the package level unpacks the archive r into the dst
// directory using a default Packer.
func Unpack(r io.Reader, dst string) error {
	p := &Packer{}
	return p.Unpack(r, dst)
}

// Unpack extracts the compressed bundle archive r into the dst directory,
// restoring file modes and timestamps once all content is in place.
func (p *Packer) Unpack(r io.Reader, dst string) error {
	// Track directory entries so their metadata can be restored after all
	// files have been extracted; writing files into a directory updates
	// its timestamps.
	var directoriesExtracted []unpackinfo.UnpackInfo

	// Decompress as we read.
	uncompressed, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to decompress bundle: %w", err)
	}

	// Untar as we read.
	untar := tar.NewReader(uncompressed)

	// Unpackage all the contents into the directory.
	for {
		header, err := untar.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to untar bundle: %w", err)
		}

		// If the entry has no name, ignore it.
		if header.Name == "" {
			continue
		}

		info, err := unpackinfo.NewUnpackInfo(dst, header)
		if err != nil {
			return &IllegalBundleError{Err: err}
		}

		// Sometimes the first entry of an archive is not a directory, so
		// make sure the parents always exist.
		dir := filepath.Dir(info.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}

		// Handle symlinks.
		if info.IsSymlink() {
			if ok, err := p.validSymlink(dst, info.Path, header.Linkname); ok {
				// Create the symlink.
				if err = os.Symlink(header.Linkname, info.Path); err != nil {
					return fmt.Errorf("failed creating symlink (%q -> %q): %w",
						header.Name, header.Linkname, err)
				}
			} else {
				return err
			}

			if err := info.RestoreInfo(); err != nil {
				return err
			}
			continue
		}

		// Skip extended headers; they carry no file content of their own.
		if info.IsTypeX() {
			continue
		}

		// If the entry is a directory, create it and remember it for the
		// final metadata pass.
		if info.IsDirectory() {
			if err := os.MkdirAll(info.Path, 0755); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", info.Path, err)
			}
			directoriesExtracted = append(directoriesExtracted, info)
			continue
		}

		// Open a handle to the destination.
		fh, err := os.Create(info.Path)
		if err != nil {
			// This mimics tar's behavior when an archive contains the
			// same file twice: the earlier copy, possibly with read-only
			// permissions already restored, is replaced wholesale.
			if os.IsPermission(err) || os.IsExist(err) {
				if err := os.Remove(info.Path); err != nil {
					return fmt.Errorf("failed to replace file %q: %w", info.Path, err)
				}
				fh, err = os.Create(info.Path)
			}
			if err != nil {
				return fmt.Errorf("failed creating file %q: %w", info.Path, err)
			}
		}

		// Copy the file data in bounded chunks.
		if _, err := copyUtil.CopyWithLimit(fh, untar); err != nil {
			fh.Close()
			return fmt.Errorf("failed to copy bundle file %q: %w", info.Path, err)
		}

		if err := fh.Close(); err != nil {
			return fmt.Errorf("failed to close file %q: %w", info.Path, err)
		}

		if err := info.RestoreInfo(); err != nil {
			return err
		}
	}

	for _, dirInfo := range directoriesExtracted {
		if err := dirInfo.RestoreInfo(); err != nil {
			return err
		}
	}

	return nil
}

// validSymlink checks that the symlink at path with the given target is
// either contained within root or explicitly allowed by configuration.
// When neither holds, the returned error is an *IllegalBundleError.
func (p *Packer) validSymlink(root, path, target string) (bool, error) {
	// Get an absolute path to the target.
	absTarget := target
	if !filepath.IsAbs(absTarget) {
		absTarget = filepath.Join(filepath.Dir(path), target)
	}

	// Target falls within root?
	if ok, err := escapingfs.TargetWithinRoot(root, absTarget); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	// The link target may still be allowed by explicit configuration.
	// Exact entries admit one target; entries ending in "/" admit a whole
	// prefix, with embedded traversal resolved before comparison.
	cleanTarget := filepath.Clean(target)
	for _, prefix := range p.allowSymlinkTargets {
		if ok, err := escapingfs.TargetWithinRoot(prefix, cleanTarget); err == nil && ok {
			return true, nil
		}
	}

	return false, &IllegalBundleError{
		Err: fmt.Errorf(
			"bundle contains symlink %q -> %q, which has external target",
			path, target,
		),
	}
}

// checkFileMode is used to examine an os.FileMode and determine if it
// should be included in the archive, and if it has a data body which
// needs writing.
func checkFileMode(m os.FileMode) (keep bool, body bool) {
	switch {
	case m.IsRegular():
		return true, true

	case m.IsDir():
		return true, false

	case m&os.ModeSymlink != 0:
		return true, false
	}

	return false, false
}
