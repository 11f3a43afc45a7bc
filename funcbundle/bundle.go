// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/sumdb/dirhash"

	foundry "github.com/hashicorp/go-foundry"
)

const manifestFilename = "foundry-bundle.json"

// Bundle represents a finalized function bundle directory: one staged
// source tree per deployable unit, plus a manifest describing them all.
type Bundle struct {
	rootDir string

	manifestChecksum string

	units    map[string]*Manifest
	unitDirs map[string]string
}

// OpenDir opens a bundle rooted at the given base directory.
//
// If OpenDir succeeds then nothing else (inside or outside the calling
// program) may modify anything under the given base directory for the
// lifetime of the returned [Bundle] object. If the bundle directory is
// modified while the object is still alive then behavior is undefined.
func OpenDir(baseDir string) (*Bundle, error) {
	// We'll take the absolute form of the directory to be resilient in
	// case something else in this program rudely changes the current
	// working directory while the bundle is still alive.
	rootDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve base directory: %w", err)
	}

	ret := &Bundle{
		rootDir:  rootDir,
		units:    make(map[string]*Manifest),
		unitDirs: make(map[string]string),
	}

	manifestSrc, err := os.ReadFile(filepath.Join(rootDir, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest: %w", err)
	}

	checksum := sha256.Sum256(manifestSrc)
	ret.manifestChecksum = hex.EncodeToString(checksum[:])

	var manifest manifestRoot
	err = json.Unmarshal(manifestSrc, &manifest)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.FormatVersion != 1 {
		return nil, fmt.Errorf("invalid manifest: unsupported format version %d", manifest.FormatVersion)
	}

	for _, unit := range manifest.Units {
		// We'll be quite fussy about the local directory name to avoid a
		// crafted manifest sending us to other random places in the
		// filesystem. It must be just a single directory name, without
		// any path separators or any traversals.
		localDir := filepath.ToSlash(unit.LocalDir)
		if !fs.ValidPath(localDir) || localDir == "." || strings.IndexByte(localDir, '/') >= 0 {
			return nil, fmt.Errorf("invalid unit directory name %q", unit.LocalDir)
		}
		if _, exists := ret.units[unit.Name]; exists {
			return nil, fmt.Errorf("invalid manifest: duplicate unit %q", unit.Name)
		}

		unitManifest, err := manifestFromUnit(unit)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest for unit %q: %w", unit.Name, err)
		}
		ret.units[unit.Name] = unitManifest
		ret.unitDirs[unit.Name] = localDir
	}

	return ret, nil
}

// Units returns the manifests of all of the deployable units in the
// bundle, sorted by unit name.
func (b *Bundle) Units() []*Manifest {
	ret := make([]*Manifest, 0, len(b.units))
	for _, manifest := range b.units {
		ret = append(ret, manifest)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].name < ret[j].name
	})
	return ret
}

// Unit returns the manifest of the named unit, or nil if the bundle has
// no unit of that name.
func (b *Bundle) Unit(name string) *Manifest {
	return b.units[name]
}

// LocalPathForUnit returns the local path of the named unit's staged
// source tree, or an error if the bundle has no unit of that name.
func (b *Bundle) LocalPathForUnit(name string) (string, error) {
	localDir, ok := b.unitDirs[name]
	if !ok {
		return "", fmt.Errorf("function bundle does not include %q", name)
	}
	return filepath.Join(b.rootDir, localDir), nil
}

// ChecksumV1 returns a checksum of the contents of the function bundle
// that can be used to determine if another bundle is equivalent to this
// one.
//
// "Equivalent" means that it contains all of the same units with
// identical staged source trees each.
//
// A successful result is a string with the prefix "h1:" to indicate that
// it was built with checksum algorithm version 1. Future versions may
// introduce other checksum formats.
func (b *Bundle) ChecksumV1() (string, error) {
	// Our first checksum format assumes that the checksum of the manifest
	// is sufficient to cover the entire bundle, which in turn assumes that
	// the assembler encodes the checksum of each unit's source tree into
	// the manifest. The source_hash property of each unit serves that
	// purpose, so two bundles with equal manifests can differ only if one
	// of them has been modified since it was assembled, which [OpenDir]
	// forbids.
	return "h1:" + b.manifestChecksum, nil
}

// VerifyUnit recalculates the checksum of the named unit's staged source
// tree and returns an error if it does not match the checksum recorded in
// the manifest, or if the bundle has no unit of that name.
func (b *Bundle) VerifyUnit(name string) error {
	manifest := b.units[name]
	if manifest == nil {
		return fmt.Errorf("function bundle does not include %q", name)
	}
	localPath, err := b.LocalPathForUnit(name)
	if err != nil {
		return err
	}
	hash, err := dirhash.HashDir(localPath, "", dirhash.Hash1)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum for unit %q: %w", name, err)
	}
	if hash != manifest.sourceHash {
		return fmt.Errorf("unit %q does not match the checksum recorded when it was assembled", name)
	}
	return nil
}

// Verify recalculates the checksum of every unit's staged source tree,
// returning an error for the first unit that does not match the checksum
// recorded in the manifest.
func (b *Bundle) Verify() error {
	names := make([]string, 0, len(b.units))
	for name := range b.units {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.VerifyUnit(name); err != nil {
			return err
		}
	}
	return nil
}

// WriteArchive writes a function bundle archive containing the same
// contents as the bundle to the given writer.
//
// A function bundle archive is a gzip-compressed tar stream that can then
// be extracted in some other location to produce an equivalent function
// bundle directory.
func (b *Bundle) WriteArchive(w io.Writer) error {
	// For this part we just delegate to the main archive packer, since a
	// bundle archive is effectively just a plain source archive with
	// multiple units (and a manifest) inside it.
	packer, err := foundry.NewPacker(foundry.DereferenceSymlinks())
	if err != nil {
		return fmt.Errorf("can't instantiate archive packer: %w", err)
	}
	_, err = packer.Pack(b.rootDir, w)
	return err
}

// WriteUnitArchive writes an archive of just the named unit's staged
// source tree to the given writer, in the upload format that serverless
// platforms accept: the unit's files at the root of a gzip-compressed tar
// stream, with no bundle manifest.
func (b *Bundle) WriteUnitArchive(ctx context.Context, name string, w io.Writer) (err error) {
	trace := buildTraceFromContext(ctx)
	if cb := trace.ArchiveStart; cb != nil {
		archiveCtx := cb(ctx, name)
		if archiveCtx != nil {
			ctx = archiveCtx
		}
	}
	defer func() {
		if err == nil {
			if cb := trace.ArchiveSuccess; cb != nil {
				cb(ctx, name)
			}
		} else {
			if cb := trace.ArchiveFailure; cb != nil {
				cb(ctx, name, err)
			}
		}
	}()

	localPath, err := b.LocalPathForUnit(name)
	if err != nil {
		return err
	}
	packer, err := foundry.NewPacker(foundry.DereferenceSymlinks())
	if err != nil {
		return fmt.Errorf("can't instantiate archive packer: %w", err)
	}
	_, err = packer.Pack(localPath, w)
	return err
}

// ExtractArchive reads a function bundle archive from the given reader
// and extracts it into the given target directory, which must already
// exist and must be empty.
//
// If successful, it returns a [Bundle] value representing the created
// bundle, as if the given target directory were passed to [OpenDir].
func ExtractArchive(r io.Reader, targetDir string) (*Bundle, error) {
	// A bundle archive is just an archive created over a bundle directory,
	// so we can use the normal unpack function to deal with it.
	err := foundry.Unpack(r, targetDir)
	if err != nil {
		return nil, err
	}
	return OpenDir(targetDir)
}
