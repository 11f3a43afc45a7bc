// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/sumdb/dirhash"

	"github.com/hashicorp/go-foundry/internal/copyUtil"
	"github.com/hashicorp/go-foundry/internal/ignorefiles"
	"github.com/hashicorp/go-foundry/requirements"
	"github.com/hashicorp/go-foundry/sourceset"
)

// Assembler deals with the process of gathering the source code for a set
// of deployable function units into a single bundle directory.
type Assembler struct {
	// targetDir is the base directory of the function bundle we're writing
	// into.
	targetDir string

	// baseDir is the directory that file and directory sources with
	// relative paths are resolved against.
	baseDir string

	// units tracks the manifest of each unit assembled so far, keyed by
	// unit name. The keys of this map also serve as our memory of which
	// unit directories already exist under targetDir.
	units map[string]*Manifest

	mu sync.Mutex
}

// AssemblerOption is a functional option type used to modify the behavior
// of the Assembler.
type AssemblerOption func(*Assembler) error

// ResolveRelativeTo tells the Assembler to resolve the relative paths of
// file and directory sources against the given base directory, instead of
// the process working directory at the time of the NewAssembler call.
func ResolveRelativeTo(baseDir string) AssemblerOption {
	return func(a *Assembler) error {
		absDir, err := filepath.Abs(baseDir)
		if err != nil {
			return fmt.Errorf("invalid base directory: %w", err)
		}
		a.baseDir = absDir
		return nil
	}
}

// NewAssembler creates a new assembler that will construct a function
// bundle in the given target directory, which must already exist and be
// empty before any work begins.
//
// During the lifetime of an assembler the target directory must not be
// modified or moved by anything other than the assembler, including other
// concurrent processes running on the system. The target directory is not
// a valid function bundle until a call to [Assembler.Close] returns
// successfully; the directory may appear in an inconsistent state while
// the assembler is working.
func NewAssembler(targetDir string, options ...AssemblerOption) (*Assembler, error) {
	// We'll lock in our absolute paths here just in case someone changes
	// the process working directory out from under us for some reason.
	absDir, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("invalid target directory: %w", err)
	}
	baseDir, err := filepath.Abs(".")
	if err != nil {
		return nil, fmt.Errorf("invalid working directory: %w", err)
	}
	a := &Assembler{
		targetDir: absDir,
		baseDir:   baseDir,
		units:     make(map[string]*Manifest),
	}
	for _, opt := range options {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}
	return a, nil
}

// Assemble incorporates one deployable unit into the bundle: it resolves
// the given sources into a staged source tree under the bundle directory,
// normalizes the given requirements, and returns a [Manifest] describing
// the result.
//
// The name must be unique across all units assembled into the same bundle,
// and the handler must name a function in one of the unit's staged source
// files, in "module.function" form.
//
// Every error caused by the declaration itself, rather than by the
// environment, is a [ConfigurationError]. If Assemble returns an error
// then the unit contributes nothing to the bundle, and the assembler
// remains usable for further units.
func (a *Assembler) Assemble(ctx context.Context, name string, handler string, sources *sourceset.Set, reqs requirements.List) (*Manifest, error) {
	if a.targetDir == "" {
		// The assembler has been closed, so cannot be modified further.
		// This is always a bug in the caller, which should discard an
		// assembler as soon as it's been closed.
		panic("Assemble on closed funcbundle.Assembler")
	}

	trace := buildTraceFromContext(ctx)
	if cb := trace.UnitStart; cb != nil {
		unitCtx := cb(ctx, name)
		if unitCtx != nil {
			ctx = unitCtx
		}
	}

	a.mu.Lock()
	manifest, err := a.assembleUnit(ctx, trace, name, handler, sources, reqs)
	a.mu.Unlock()

	if err != nil {
		if cb := trace.UnitFailure; cb != nil {
			cb(ctx, name, err)
		}
		return nil, err
	}
	if cb := trace.UnitSuccess; cb != nil {
		cb(ctx, name, manifest.sourceHash)
	}
	return manifest, nil
}

// assembleUnit does the real work of [Assembler.Assemble]. It must be
// called with a.mu held.
func (a *Assembler) assembleUnit(ctx context.Context, trace *BuildTracer, name string, handler string, sources *sourceset.Set, reqs requirements.List) (*Manifest, error) {
	// We'll be quite fussy about the unit name because we use it directly
	// as the name of the unit's subdirectory of the bundle. It must be
	// just a single directory name, without any path separators or any
	// traversals.
	if !fs.ValidPath(name) || name == "." || strings.IndexByte(name, '/') >= 0 {
		return nil, &ConfigurationError{Unit: name, Err: errors.New("unit name must be a single filesystem-friendly path segment")}
	}
	if strings.HasPrefix(name, ".") || name == manifestFilename {
		return nil, &ConfigurationError{Unit: name, Err: fmt.Errorf("unit name %q is reserved", name)}
	}
	if _, exists := a.units[name]; exists {
		return nil, &ConfigurationError{Unit: name, Err: fmt.Errorf("a unit named %q was already assembled", name)}
	}

	handlerTarget, err := handlerSourceTarget(handler)
	if err != nil {
		return nil, &ConfigurationError{Unit: name, Err: err}
	}

	// Normalizing the requirements up front means that a conflicting
	// declaration fails before we've touched the filesystem at all.
	normalized, err := reqs.Normalize()
	if err != nil {
		return nil, &ConfigurationError{Unit: name, Err: err}
	}
	if cb := trace.RequirementsResolved; cb != nil {
		reqStrs := make([]string, len(normalized))
		for i, req := range normalized {
			reqStrs[i] = req.String()
		}
		cb(ctx, name, reqStrs)
	}

	// We'll stage the unit's source tree under a temporary name while we
	// work on populating it, so that a failed assembly never leaves a
	// half-written unit directory behind.
	workDir, err := os.MkdirTemp(a.targetDir, ".tmp-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if workDir != "" {
			os.RemoveAll(workDir)
		}
	}()

	staged := make(map[string]SourceEntry)
	addStaged := func(entry SourceEntry) error {
		if _, exists := staged[entry.Target]; exists {
			return &ConfigurationError{Unit: name, Err: fmt.Errorf("duplicate target filename %q", entry.Target)}
		}
		staged[entry.Target] = entry
		if cb := trace.SourceStaged; cb != nil {
			cb(ctx, name, entry.Target, entry.Size)
		}
		return nil
	}

	for _, target := range sources.Targets() {
		src, _ := sources.Get(target)
		switch src := src.(type) {
		case sourceset.InlineSource:
			entry, err := a.stageInlineSource(workDir, target, src)
			if err != nil {
				return nil, err
			}
			if err := addStaged(entry); err != nil {
				return nil, err
			}
		case sourceset.FileSource:
			entry, err := a.stageFileSource(name, workDir, target, src)
			if err != nil {
				return nil, err
			}
			if err := addStaged(entry); err != nil {
				return nil, err
			}
		case sourceset.DirSource:
			entries, err := a.stageDirSource(name, workDir, target, src)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				if err := addStaged(entry); err != nil {
					return nil, err
				}
			}
		default:
			// Should not get here, because the above cases are exhaustive
			// for all sourceset.Source implementations.
			return nil, fmt.Errorf("unsupported source type %T for target %q", src, target)
		}
	}

	if len(normalized) > 0 {
		const reqsTarget = "requirements.txt"
		if _, exists := staged[reqsTarget]; exists {
			return nil, &ConfigurationError{Unit: name, Err: fmt.Errorf("declared source for %q conflicts with the generated requirements file", reqsTarget)}
		}
		entry, err := a.stageInlineSource(workDir, reqsTarget, sourceset.Inline(normalized.String()+"\n"))
		if err != nil {
			return nil, err
		}
		if err := addStaged(entry); err != nil {
			return nil, err
		}
	}

	// The handler check must wait until everything is staged because the
	// handler's module may arrive via a directory source rather than being
	// declared as a target directly.
	if _, exists := staged[handlerTarget]; !exists {
		return nil, &ConfigurationError{Unit: name, Err: fmt.Errorf("handler %q requires a source file at %q", handler, handlerTarget)}
	}

	// If we got here then our workDir contains the final source tree of a
	// valid unit. We'll compute a checksum of its contents so that a later
	// consumer can cheaply decide whether the unit changed since it last
	// looked, reusing the same directory tree hashing scheme that Go uses
	// for its own modules.
	hash, err := dirhash.HashDir(workDir, "", dirhash.Hash1)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate source checksum: %w", err)
	}

	finalDir := filepath.Join(a.targetDir, name)
	err = os.Rename(workDir, finalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to place final unit directory: %w", err)
	}
	workDir = "" // disarms the deferred cleanup

	entries := make([]SourceEntry, 0, len(staged))
	for _, entry := range staged {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Target < entries[j].Target
	})

	manifest := &Manifest{
		name:         name,
		handler:      handler,
		sources:      entries,
		requirements: normalized,
		sourceHash:   hash,
	}
	a.units[name] = manifest
	return manifest, nil
}

// stageInlineSource writes literal source text to the given target
// filename under the staging directory.
func (a *Assembler) stageInlineSource(workDir string, target string, src sourceset.InlineSource) (SourceEntry, error) {
	content := []byte(src.Content())
	absPath := filepath.Join(workDir, filepath.FromSlash(target))
	err := os.MkdirAll(filepath.Dir(absPath), 0755)
	if err != nil {
		return SourceEntry{}, fmt.Errorf("failed to create directory for %q: %w", target, err)
	}
	err = os.WriteFile(absPath, content, 0644)
	if err != nil {
		return SourceEntry{}, fmt.Errorf("failed to write %q: %w", target, err)
	}
	sum := sha256.Sum256(content)
	return SourceEntry{
		Target: target,
		Size:   int64(len(content)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// stageFileSource copies a single local file to the given target filename
// under the staging directory.
func (a *Assembler) stageFileSource(name string, workDir string, target string, src sourceset.FileSource) (SourceEntry, error) {
	srcPath := src.LocalPath(a.baseDir)
	info, err := os.Stat(srcPath)
	if err != nil {
		return SourceEntry{}, &ConfigurationError{Unit: name, Err: fmt.Errorf("cannot read source for target %q: %w", target, err)}
	}
	if info.IsDir() {
		return SourceEntry{}, &ConfigurationError{Unit: name, Err: fmt.Errorf("source %s for target %q refers to a directory, not a file", src, target)}
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return SourceEntry{}, &ConfigurationError{Unit: name, Err: fmt.Errorf("cannot read source for target %q: %w", target, err)}
	}
	defer f.Close()

	entry, err := stageFileContent(workDir, target, f, info.Mode().Perm())
	if err != nil {
		return SourceEntry{}, err
	}
	return entry, nil
}

// stageDirSource copies the content of a local directory into the staging
// directory, placing each of its files beneath the given target prefix. An
// empty prefix places them at the root of the unit.
//
// Files matched by the directory's ".foundryignore" rules, or the default
// exclusions if it has no such file, are left out. Symlinks are resolved
// to their referents, which must be regular files inside the directory.
func (a *Assembler) stageDirSource(name string, workDir string, targetPrefix string, src sourceset.DirSource) ([]SourceEntry, error) {
	srcDir := src.LocalPath(a.baseDir)
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, &ConfigurationError{Unit: name, Err: fmt.Errorf("cannot read source directory %s: %w", src, err)}
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{Unit: name, Err: fmt.Errorf("source %s is not a directory", src)}
	}

	ignoreRules, err := ignorefiles.LoadPackageIgnoreRules(srcDir)
	if err != nil {
		return nil, &ConfigurationError{Unit: name, Err: err}
	}

	// NOTE: The symlink checks below are safe only if nothing else is
	// concurrently modifying the source directory. Bundle assembly should
	// only occur on hosts that are trusted by whoever will ultimately be
	// using the generated bundle.
	absRoot, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for source directory %q: %w", srcDir, err)
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for source directory %q: %w", srcDir, err)
	}

	var entries []SourceEntry
	err = filepath.Walk(srcDir, func(absPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, absPath)
		if err != nil {
			return fmt.Errorf("failed to get relative path for file %q: %w", absPath, err)
		}
		if relPath == "." {
			return nil
		}
		relSlash := filepath.ToSlash(relPath)

		if info.IsDir() {
			// Both the plain rule form and the directory rule form can
			// prune an entire subtree.
			for _, probe := range []string{relSlash, relSlash + "/"} {
				ignored, err := ignoreRules.Excludes(probe)
				if err != nil {
					return fmt.Errorf("invalid %s rules: %w", ignorefiles.IgnoreFilename, err)
				}
				if ignored.Excluded {
					return filepath.SkipDir
				}
			}
			return nil
		}

		ignored, err := ignoreRules.Excludes(relSlash)
		if err != nil {
			return fmt.Errorf("invalid %s rules: %w", ignorefiles.IgnoreFilename, err)
		}
		if ignored.Excluded {
			return nil
		}

		// We only stage regular files, resolved through any symlinks as
		// long as the referent stays inside the source directory. The
		// staged tree never contains symlinks of its own, so that its
		// checksum depends only on file names and contents.
		realPath, err := filepath.EvalSymlinks(absPath)
		if err != nil {
			return &ConfigurationError{Unit: name, Err: fmt.Errorf("cannot resolve source path %q: %w", relSlash, err)}
		}
		realPathRel, err := filepath.Rel(absRoot, realPath)
		if err != nil {
			return fmt.Errorf("failed to get real relative path for sub-path %q: %w", relSlash, err)
		}
		if !filepath.IsLocal(realPathRel) {
			return &ConfigurationError{Unit: name, Err: fmt.Errorf("source path %q is a symlink traversing out of the source directory", relSlash)}
		}
		lInfo, err := os.Lstat(realPath)
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", realPath, err)
		}
		if !lInfo.Mode().IsRegular() {
			return &ConfigurationError{Unit: name, Err: fmt.Errorf("source path %q is not a regular file", relSlash)}
		}

		f, err := os.Open(realPath)
		if err != nil {
			return &ConfigurationError{Unit: name, Err: fmt.Errorf("cannot read source path %q: %w", relSlash, err)}
		}
		defer f.Close()

		entry, err := stageFileContent(workDir, path.Join(targetPrefix, relSlash), f, lInfo.Mode().Perm())
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// stageFileContent copies one file body into the staging directory,
// hashing it as it goes.
func stageFileContent(workDir string, target string, r io.Reader, perm os.FileMode) (SourceEntry, error) {
	absPath := filepath.Join(workDir, filepath.FromSlash(target))
	err := os.MkdirAll(filepath.Dir(absPath), 0755)
	if err != nil {
		return SourceEntry{}, fmt.Errorf("failed to create directory for %q: %w", target, err)
	}
	out, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return SourceEntry{}, fmt.Errorf("failed to create %q: %w", target, err)
	}
	hash := sha256.New()
	size, err := copyUtil.CopyWithLimit(io.MultiWriter(out, hash), r)
	if err != nil {
		out.Close()
		return SourceEntry{}, fmt.Errorf("failed to copy %q: %w", target, err)
	}
	err = out.Close()
	if err != nil {
		return SourceEntry{}, fmt.Errorf("failed to write %q: %w", target, err)
	}
	return SourceEntry{
		Target: target,
		Size:   size,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// Close ensures that the target directory is in a valid and consistent
// state to be used as a function bundle and then returns an object
// providing the read-only API for that bundle.
//
// After calling Close the receiving assembler becomes invalid and must not
// be used any further.
func (a *Assembler) Close() (*Bundle, error) {
	a.mu.Lock()
	if a.targetDir == "" {
		a.mu.Unlock()
		panic("Close on already-closed funcbundle.Assembler")
	}
	baseDir := a.targetDir
	a.targetDir = "" // makes Assemble panic when called, to avoid mutating the finalized bundle
	a.mu.Unlock()

	// We need to freeze all of the metadata we've been tracking into the
	// manifest file so that OpenDir can discover equivalent metadata
	// itself when opening the finalized bundle.
	err := a.writeManifest(filepath.Join(baseDir, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to generate function bundle manifest: %w", err)
	}

	ret, err := OpenDir(baseDir)
	if err != nil {
		// If we get here then it suggests that we've left the bundle
		// directory in an inconsistent state which therefore made OpenDir
		// fail its early checks.
		return nil, fmt.Errorf("failed to open bundle after Close: %w", err)
	}
	return ret, nil
}

func (a *Assembler) writeManifest(filename string) error {
	var root manifestRoot
	root.FormatVersion = 1

	names := make([]string, 0, len(a.units))
	for name := range a.units {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		root.Units = append(root.Units, a.units[name].manifestUnit())
	}

	buf, err := json.MarshalIndent(&root, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize to JSON: %#w", err)
	}
	err = os.WriteFile(filename, buf, 0664)
	if err != nil {
		return fmt.Errorf("failed to write file: %#w", err)
	}
	return nil
}
