package foundry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestPack(t *testing.T) {
	bundle := bytes.NewBuffer(nil)
	meta, err := Pack("testdata/archive-dir", bundle, true)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	checkPackedFixture(t, bundle, meta)
}

func TestPack_rootIsSymlink(t *testing.T) {
	fixture, err := filepath.Abs("testdata/archive-dir")
	if err != nil {
		t.Fatal(err)
	}

	// Packing through a symlinked root must produce the same bundle as
	// packing the target directly.
	link := filepath.Join(t.TempDir(), "function")
	if err := os.Symlink(fixture, link); err != nil {
		t.Fatal(err)
	}

	bundle := bytes.NewBuffer(nil)
	meta, err := Pack(link, bundle, true)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	checkPackedFixture(t, bundle, meta)
}

func TestPack_withoutIgnoring(t *testing.T) {
	// A Packer built without options consults no ignore rules, so even
	// bytecode and the staging directory end up in the bundle.
	p, err := NewPacker()
	if err != nil {
		t.Fatal(err)
	}

	bundle := bytes.NewBuffer(nil)
	meta, err := p.Pack("testdata/archive-dir-no-external", bundle)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	names, _, size := readBundle(t, bundle)
	want := []string{
		".foundry/",
		".foundry/keep.txt",
		"bar.txt",
		"exe",
		"notes.pyc",
		"sub/",
		"sub/bar.txt",
		"sub/zip.txt",
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected entry list:\n got: %v\nwant: %v", names, want)
	}

	if !reflect.DeepEqual(meta, &Meta{Files: names, Size: size}) {
		t.Fatalf("metadata does not match bundle contents:\n%#v", meta)
	}
}

func TestPack_symlinks(t *testing.T) {
	cases := []struct {
		desc         string
		external     bool
		absolute     bool
		targetExists bool
		dereference  bool
		wantErr      string
		wantType     byte
	}{
		{
			desc:         "internal relative target",
			targetExists: true,
			wantType:     tar.TypeSymlink,
		},
		{
			desc:         "internal absolute target",
			absolute:     true,
			targetExists: true,
			wantType:     tar.TypeSymlink,
		},
		{
			desc:     "internal dangling target",
			wantType: tar.TypeSymlink,
		},
		{
			desc:         "internal target with dereferencing on",
			targetExists: true,
			dereference:  true,
			wantType:     tar.TypeSymlink,
		},
		{
			desc:         "external relative target",
			external:     true,
			targetExists: true,
			wantErr:      "has external target",
		},
		{
			desc:         "external absolute target",
			external:     true,
			absolute:     true,
			targetExists: true,
			wantErr:      "has external target",
		},
		{
			desc:         "external relative target dereferenced",
			external:     true,
			targetExists: true,
			dereference:  true,
			wantType:     tar.TypeReg,
		},
		{
			desc:         "external absolute target dereferenced",
			external:     true,
			absolute:     true,
			targetExists: true,
			dereference:  true,
			wantType:     tar.TypeReg,
		},
		{
			desc:        "external dangling target dereferenced",
			external:    true,
			dereference: true,
			wantErr:     "no such file or directory",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			td := t.TempDir()
			src := filepath.Join(td, "function")
			shared := filepath.Join(td, "shared")
			for _, dir := range []string{filepath.Join(src, "vendor"), shared} {
				if err := os.MkdirAll(dir, 0700); err != nil {
					t.Fatal(err)
				}
			}

			target := filepath.Join(src, "lib", "requests.py")
			if tc.external {
				target = filepath.Join(shared, "requests.py")
			}
			if tc.targetExists {
				if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(target, []byte("import requests\n"), 0644); err != nil {
					t.Fatal(err)
				}
			}

			// The link sits in a subdirectory so that relative targets
			// require upward traversal to resolve.
			link := filepath.Join(src, "vendor", "requests.py")
			if !tc.absolute {
				var err error
				if target, err = filepath.Rel(filepath.Dir(link), target); err != nil {
					t.Fatal(err)
				}
			}
			if err := os.Symlink(target, link); err != nil {
				t.Fatal(err)
			}

			bundle := bytes.NewBuffer(nil)
			_, err := Pack(src, bundle, tc.dereference)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			_, headers, _ := readBundle(t, bundle)
			hdr := headers["vendor/requests.py"]
			if hdr == nil {
				t.Fatal("link entry missing from bundle")
			}
			if hdr.Typeflag != tc.wantType {
				t.Fatalf("unexpected entry type %q, want %q", hdr.Typeflag, tc.wantType)
			}
			if tc.wantType == tar.TypeSymlink && hdr.Linkname != filepath.ToSlash(target) {
				t.Fatalf("unexpected link target %q, want %q", hdr.Linkname, target)
			}
			if tc.wantType == tar.TypeReg && hdr.Size != int64(len("import requests\n")) {
				t.Fatalf("dereferenced entry has size %d", hdr.Size)
			}
		})
	}
}

func TestAllowSymlinkTarget(t *testing.T) {
	cases := []struct {
		desc    string
		allow   string
		target  string
		wantErr bool
	}{
		{
			desc:   "exact absolute target",
			allow:  "/opt/python/requests.py",
			target: "/opt/python/requests.py",
		},
		{
			desc:   "exact relative target",
			allow:  "../layers/shared.py",
			target: "../layers/shared.py",
		},
		{
			desc:   "absolute prefix",
			allow:  "/opt/python/",
			target: "/opt/python/requests/__init__.py",
		},
		{
			desc:   "relative prefix",
			allow:  "../layers/",
			target: "../layers/numpy/core.py",
		},
		{
			desc:    "unrelated absolute target",
			allow:   "/opt/nodejs",
			target:  "/opt/python/requests.py",
			wantErr: true,
		},
		{
			desc:    "unrelated relative target",
			allow:   "../other/",
			target:  "../layers/requests.py",
			wantErr: true,
		},
		{
			desc:    "traversal escaping the prefix",
			allow:   "/opt/python/",
			target:  "/opt/python/../../etc/passwd",
			wantErr: true,
		},
		{
			desc:   "traversal inside the prefix",
			allow:  "/opt/python/",
			target: "/opt/python/requests/../urllib3.py",
		},
		{
			desc:    "relative traversal escaping the prefix",
			allow:   "layers/shared/",
			target:  "layers/shared/../../../secrets",
			wantErr: true,
		},
		{
			desc:    "prefix match must end at a separator",
			allow:   "/opt/py",
			target:  "/opt/python",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run("pack "+tc.desc, func(t *testing.T) {
			td := t.TempDir()
			if err := os.Symlink(tc.target, filepath.Join(td, "requests.py")); err != nil {
				t.Fatal(err)
			}

			p, err := NewPacker(AllowSymlinkTarget(tc.allow))
			if err != nil {
				t.Fatal(err)
			}

			bundle := bytes.NewBuffer(nil)
			_, err = p.Pack(td, bundle)
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), "has external target") {
					t.Fatalf("expected external target error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			_, headers, _ := readBundle(t, bundle)
			hdr := headers["requests.py"]
			if hdr == nil || hdr.Typeflag != tar.TypeSymlink {
				t.Fatal("allowed symlink was not preserved")
			}
			if hdr.Linkname != tc.target {
				t.Fatalf("link target %q, want %q", hdr.Linkname, tc.target)
			}
		})

		t.Run("unpack "+tc.desc, func(t *testing.T) {
			buf := buildBundle(t, bundleEntry{
				header: &tar.Header{Name: "requests.py", Linkname: tc.target, Typeflag: tar.TypeSymlink},
			})

			p, err := NewPacker(AllowSymlinkTarget(tc.allow))
			if err != nil {
				t.Fatal(err)
			}

			dst := t.TempDir()
			err = p.Unpack(buf, dst)
			if tc.wantErr {
				var illegal *IllegalBundleError
				if err == nil || !errors.As(err, &illegal) {
					t.Fatalf("expected IllegalBundleError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			verifyLink(t, filepath.Join(dst, "requests.py"), tc.target)
		})
	}
}

func TestUnpack(t *testing.T) {
	bundle := bytes.NewBuffer(nil)
	if _, err := Pack("testdata/archive-dir-no-external", bundle, true); err != nil {
		t.Fatalf("err: %v", err)
	}

	dst := t.TempDir()
	if err := Unpack(bundle, dst); err != nil {
		t.Fatalf("err: %v", err)
	}

	verifyContent(t, filepath.Join(dst, "bar.txt"), "bar\n")
	verifyContent(t, filepath.Join(dst, "sub", "zip.txt"), "zip\n")
	verifyLink(t, filepath.Join(dst, "sub", "bar.txt"), "../bar.txt")

	verifyPerms(t, filepath.Join(dst, "bar.txt"), 0644)
	verifyPerms(t, filepath.Join(dst, "sub", "zip.txt"), 0644)
	verifyPerms(t, filepath.Join(dst, "exe"), 0755)

	// Extraction must not resurrect what packing filtered out.
	if _, err := os.Lstat(filepath.Join(dst, "notes.pyc")); !os.IsNotExist(err) {
		t.Error("notes.pyc should not have been extracted")
	}
	if _, err := os.Lstat(filepath.Join(dst, ".foundry")); !os.IsNotExist(err) {
		t.Error(".foundry should not have been extracted")
	}
}

func TestUnpack_duplicateEntry(t *testing.T) {
	body := "def handler(event, context):\n    return {}\n"
	entry := bundleEntry{
		header: &tar.Header{Name: "handler.py", Typeflag: tar.TypeReg, Mode: 0400},
		body:   body,
	}

	// The second copy must replace the first even though the first was
	// already restored with read-only permissions.
	buf := buildBundle(t, entry, entry)

	dst := t.TempDir()
	if err := Unpack(buf, dst); err != nil {
		t.Fatalf("err: %v", err)
	}

	verifyContent(t, filepath.Join(dst, "handler.py"), body)
	verifyPerms(t, filepath.Join(dst, "handler.py"), 0400)
}

func TestUnpack_paxHeaders(t *testing.T) {
	for _, flag := range []byte{tar.TypeXHeader, tar.TypeXGlobalHeader} {
		t.Run(fmt.Sprintf("typeflag %d", flag), func(t *testing.T) {
			// The tar writer may refuse a raw extended header; either way
			// extraction must not produce a file for it.
			buf := bytes.NewBuffer(nil)
			gzipW := gzip.NewWriter(buf)
			tarW := tar.NewWriter(gzipW)
			tarW.WriteHeader(&tar.Header{Name: "pax_entry", Typeflag: flag})
			tarW.Close()
			gzipW.Close()

			dst := t.TempDir()
			if err := Unpack(buf, dst); err != nil {
				t.Fatalf("err: %v", err)
			}
			if _, err := os.Lstat(filepath.Join(dst, "pax_entry")); !os.IsNotExist(err) {
				t.Fatal("extended header must not produce a file")
			}
		})
	}
}

func TestUnpack_emptyName(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	gzipW := gzip.NewWriter(buf)
	tarW := tar.NewWriter(gzipW)
	tarW.WriteHeader(&tar.Header{Typeflag: tar.TypeDir})
	tarW.Close()
	gzipW.Close()

	// A nameless entry must be skipped rather than crash the extraction.
	if err := Unpack(buf, t.TempDir()); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestUnpack_unsupportedType(t *testing.T) {
	buf := buildBundle(t, bundleEntry{
		header: &tar.Header{Name: "pipe", Typeflag: tar.TypeFifo},
	})

	err := Unpack(buf, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unsupported file type") {
		t.Fatalf("expected unsupported file type error, got %v", err)
	}
}

func TestUnpack_maliciousSymlinks(t *testing.T) {
	cases := []struct {
		desc    string
		entries []bundleEntry
		wantErr string
	}{
		{
			desc: "absolute target",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "l", Linkname: "/etc/shadow", Typeflag: tar.TypeSymlink}},
			},
			wantErr: "has external target",
		},
		{
			desc: "traversal target",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "l", Linkname: "../../../../../etc/shadow", Typeflag: tar.TypeSymlink}},
			},
			wantErr: "has external target",
		},
		{
			desc: "embedded traversal target",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "l", Linkname: "foo/bar/../../../../../../etc/shadow", Typeflag: tar.TypeSymlink}},
			},
			wantErr: "has external target",
		},
		{
			desc: "symlink through symlinked dir",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "subdir/parent", Linkname: "..", Typeflag: tar.TypeSymlink}},
				{header: &tar.Header{Name: "subdir/parent/escapes", Linkname: "..", Typeflag: tar.TypeSymlink}},
			},
			wantErr: `cannot extract "subdir/parent/escapes" through symlink`,
		},
		{
			desc: "symlink nested below symlinked dir",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "subdir/parent", Linkname: "..", Typeflag: tar.TypeSymlink}},
				{header: &tar.Header{Name: "subdir/parent/otherdir/escapes", Linkname: "../..", Typeflag: tar.TypeSymlink}},
			},
			wantErr: `cannot extract "subdir/parent/otherdir/escapes" through symlink`,
		},
		{
			desc: "regular file through symlinked dir",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "subdir/parent", Linkname: "..", Typeflag: tar.TypeSymlink}},
				{header: &tar.Header{Name: "subdir/parent/file", Typeflag: tar.TypeReg}},
			},
			wantErr: `cannot extract "subdir/parent/file" through symlink`,
		},
		{
			desc: "directory through symlinked dir",
			entries: []bundleEntry{
				{header: &tar.Header{Name: "subdir/parent", Linkname: "..", Typeflag: tar.TypeSymlink}},
				{header: &tar.Header{Name: "subdir/parent/dir", Typeflag: tar.TypeDir}},
			},
			wantErr: `cannot extract "subdir/parent/dir" through symlink`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			buf := buildBundle(t, tc.entries...)

			var illegal *IllegalBundleError
			err := Unpack(buf, t.TempDir())
			if err == nil || !errors.As(err, &illegal) {
				t.Fatalf("expected IllegalBundleError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestUnpack_traversalNames(t *testing.T) {
	for _, name := range []string{
		"../../../../../../../../tmp/escape",
		"../outside.py",
	} {
		buf := buildBundle(t, bundleEntry{
			header: &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0600},
		})

		var illegal *IllegalBundleError
		err := Unpack(buf, t.TempDir())
		if err == nil || !errors.As(err, &illegal) {
			t.Fatalf("expected IllegalBundleError for %q, got %v", name, err)
		}
		if !strings.Contains(err.Error(), `traversal with ".."`) {
			t.Fatalf("unexpected error for %q: %v", name, err)
		}
	}
}

func TestCheckFileMode(t *testing.T) {
	cases := []struct {
		mode os.FileMode
		keep bool
		body bool
	}{
		{0, true, true},
		{os.ModeDir, true, false},
		{os.ModeSymlink, true, false},
		{os.ModeDevice, false, false},
		{os.ModeNamedPipe, false, false},
		{os.ModeSocket, false, false},
	}

	for _, tc := range cases {
		keep, body := checkFileMode(tc.mode)
		if keep != tc.keep || body != tc.body {
			t.Errorf("checkFileMode(%v) = (%v, %v), want (%v, %v)",
				tc.mode, keep, body, tc.keep, tc.body)
		}
	}
}

func TestNewPacker(t *testing.T) {
	p, err := NewPacker()
	if err != nil {
		t.Fatal(err)
	}
	if p.dereference || p.applyIgnoreRules || len(p.allowSymlinkTargets) != 0 {
		t.Fatalf("default packer has unexpected configuration: %#v", p)
	}

	p, err = NewPacker(ApplyIgnoreRules(), DereferenceSymlinks(), AllowSymlinkTarget("/opt/python/"))
	if err != nil {
		t.Fatal(err)
	}
	if !p.dereference || !p.applyIgnoreRules {
		t.Fatalf("options were not applied: %#v", p)
	}
	if !reflect.DeepEqual(p.allowSymlinkTargets, []string{"/opt/python/"}) {
		t.Fatalf("unexpected allowed targets: %v", p.allowSymlinkTargets)
	}
}

// checkPackedFixture verifies the result of packing testdata/archive-dir:
// bytecode caches, the staging directory and the ignore file's own entries
// are filtered while everything else survives in walk order.
func checkPackedFixture(t *testing.T, bundle *bytes.Buffer, meta *Meta) {
	t.Helper()

	names, headers, size := readBundle(t, bundle)

	want := []string{
		".foundryignore",
		"app.py",
		"entry.py",
		"exe",
		"lib/",
		"lib/util.py",
		"requirements.txt",
		"sub/",
		"sub/app.py",
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected entry list:\n got: %v\nwant: %v", names, want)
	}

	// Internal links survive as links, including the one whose target
	// sits in a parent directory.
	for name, target := range map[string]string{
		"entry.py":   "lib/util.py",
		"sub/app.py": "../app.py",
	} {
		hdr := headers[name]
		if hdr.Typeflag != tar.TypeSymlink {
			t.Errorf("entry %q should be a symlink", name)
		}
		if hdr.Linkname != target {
			t.Errorf("entry %q links to %q, want %q", name, hdr.Linkname, target)
		}
	}

	if hdr := headers["exe"]; hdr.Mode != 0755 {
		t.Errorf("entry \"exe\" has mode %o, want 0755", hdr.Mode)
	}

	if !reflect.DeepEqual(meta, &Meta{Files: names, Size: size}) {
		t.Fatalf("metadata does not match bundle contents:\n%#v", meta)
	}
}

type bundleEntry struct {
	header *tar.Header
	body   string
}

// buildBundle assembles a gzip-compressed tar stream from the given
// entries, for driving Unpack with crafted input.
func buildBundle(t *testing.T, entries ...bundleEntry) *bytes.Buffer {
	t.Helper()

	buf := bytes.NewBuffer(nil)
	gzipW := gzip.NewWriter(buf)
	tarW := tar.NewWriter(gzipW)

	for _, entry := range entries {
		if entry.header.Size == 0 && entry.body != "" {
			entry.header.Size = int64(len(entry.body))
		}
		if err := tarW.WriteHeader(entry.header); err != nil {
			t.Fatalf("failed to write header %q: %v", entry.header.Name, err)
		}
		if entry.body != "" {
			if _, err := tarW.Write([]byte(entry.body)); err != nil {
				t.Fatalf("failed to write body for %q: %v", entry.header.Name, err)
			}
		}
	}

	if err := tarW.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzipW.Close(); err != nil {
		t.Fatal(err)
	}
	return buf
}

// readBundle lists a packed bundle, returning entry names in order, the
// headers by name, and the total size of all regular file bodies.
func readBundle(t *testing.T, bundle *bytes.Buffer) ([]string, map[string]*tar.Header, int64) {
	t.Helper()

	gzipR, err := gzip.NewReader(bundle)
	if err != nil {
		t.Fatalf("failed to read bundle: %v", err)
	}
	tarR := tar.NewReader(gzipR)

	var names []string
	var size int64
	headers := make(map[string]*tar.Header)
	for {
		hdr, err := tarR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read bundle entry: %v", err)
		}
		names = append(names, hdr.Name)
		headers[hdr.Name] = hdr
		if hdr.Typeflag == tar.TypeReg {
			size += hdr.Size
		}
	}
	return names, headers, size
}

func verifyContent(t *testing.T, path, want string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != want {
		t.Fatalf("unexpected content in %q: got %q, want %q", path, raw, want)
	}
}

func verifyLink(t *testing.T, path, target string) {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("%q is not a symlink", path)
	}
	got, err := os.Readlink(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != target {
		t.Fatalf("%q links to %q, want %q", path, got, target)
	}
}

func verifyPerms(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("%q has perms %o, want %o", path, perm, want)
	}
}
