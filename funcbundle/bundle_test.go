// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	foundry "github.com/hashicorp/go-foundry"
	"github.com/hashicorp/go-foundry/requirements"
	"github.com/hashicorp/go-foundry/sourceset"
)

// testingBundle assembles a small two-unit bundle for the read-side tests
// to chew on, and returns it along with its base directory.
func testingBundle(t *testing.T) (*Bundle, string) {
	t.Helper()

	targetDir := t.TempDir()
	assembler, err := NewAssembler(targetDir)
	if err != nil {
		t.Fatalf("failed to create assembler: %s", err)
	}

	orders := sourceset.NewSet()
	mustAdd(t, orders, "app.py", sourceset.Inline("def handler(event, context):\n    return \"orders\"\n"))
	reqs, err := requirements.ParseList([]string{"requests==2.27.1"})
	if err != nil {
		t.Fatalf("failed to parse requirements: %s", err)
	}
	if _, err := assembler.Assemble(context.Background(), "orders", "app.handler", orders, reqs); err != nil {
		t.Fatalf("failed to assemble: %s", err)
	}

	billing := sourceset.NewSet()
	mustAdd(t, billing, "app.py", sourceset.Inline("def handler(event, context):\n    return \"billing\"\n"))
	if _, err := assembler.Assemble(context.Background(), "billing", "app.handler", billing, nil); err != nil {
		t.Fatalf("failed to assemble: %s", err)
	}

	bundle, err := assembler.Close()
	if err != nil {
		t.Fatalf("failed to close bundle: %s", err)
	}
	return bundle, targetDir
}

func TestBundleRoundTrip(t *testing.T) {
	bundle, _ := testingBundle(t)

	wantNames := []string{"billing", "orders"}
	var gotNames []string
	for _, unit := range bundle.Units() {
		gotNames = append(gotNames, unit.Name())
	}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Errorf("wrong units\n%s", diff)
	}

	var buf bytes.Buffer
	if err := bundle.WriteArchive(&buf); err != nil {
		t.Fatalf("failed to write archive: %s", err)
	}

	extractDir := t.TempDir()
	extracted, err := ExtractArchive(&buf, extractDir)
	if err != nil {
		t.Fatalf("failed to extract archive: %s", err)
	}

	if err := extracted.Verify(); err != nil {
		t.Errorf("extracted bundle failed verification: %s", err)
	}

	origChecksum, err := bundle.ChecksumV1()
	if err != nil {
		t.Fatalf("failed to calculate original checksum: %s", err)
	}
	extractedChecksum, err := extracted.ChecksumV1()
	if err != nil {
		t.Fatalf("failed to calculate extracted checksum: %s", err)
	}
	if origChecksum != extractedChecksum {
		t.Errorf("checksums disagree after round trip: %q vs %q", origChecksum, extractedChecksum)
	}

	orig := bundle.Unit("orders")
	got := extracted.Unit("orders")
	if got == nil {
		t.Fatalf("extracted bundle does not know unit %q", "orders")
	}
	if got.SourceHash() != orig.SourceHash() {
		t.Errorf("source hashes disagree after round trip: %q vs %q", got.SourceHash(), orig.SourceHash())
	}
	if got.Handler() != orig.Handler() {
		t.Errorf("handlers disagree after round trip: %q vs %q", got.Handler(), orig.Handler())
	}
	wantReqs := []string{"requests==2.27.1"}
	var gotReqs []string
	for _, req := range got.Requirements() {
		gotReqs = append(gotReqs, req.String())
	}
	if diff := cmp.Diff(wantReqs, gotReqs); diff != "" {
		t.Errorf("wrong requirements after round trip\n%s", diff)
	}

	if bundle.Unit("nope") != nil {
		t.Errorf("bundle claims to know a unit that was never assembled")
	}
	if _, err := bundle.LocalPathForUnit("nope"); err == nil {
		t.Errorf("LocalPathForUnit succeeded for a unit that was never assembled")
	} else if got, want := err.Error(), `function bundle does not include "nope"`; got != want {
		t.Errorf("wrong error message\ngot:  %s\nwant: %s", got, want)
	}
}

func TestBundleWriteUnitArchive(t *testing.T) {
	bundle, _ := testingBundle(t)

	tracer := testBuildTracer{}
	ctx := tracer.OnContext(context.Background())

	var buf bytes.Buffer
	if err := bundle.WriteUnitArchive(ctx, "orders", &buf); err != nil {
		t.Fatalf("failed to write unit archive: %s", err)
	}

	unpackDir := t.TempDir()
	if err := foundry.Unpack(&buf, unpackDir); err != nil {
		t.Fatalf("failed to unpack unit archive: %s", err)
	}

	// The unit archive carries the unit's files at its root, with no
	// bundle manifest alongside them.
	for _, name := range []string{"app.py", "requirements.txt"} {
		if _, err := os.Stat(filepath.Join(unpackDir, name)); err != nil {
			t.Errorf("problem with unpacked file %s: %s", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(unpackDir, manifestFilename)); err == nil {
		t.Errorf("unit archive unexpectedly contains the bundle manifest")
	}

	err := bundle.WriteUnitArchive(ctx, "nope", &bytes.Buffer{})
	if err == nil {
		t.Fatal("WriteUnitArchive succeeded for a unit that was never assembled")
	}

	wantLog := []string{
		"start archiving orders",
		"archived orders",
		"start archiving nope",
		`failed to archive nope: function bundle does not include "nope"`,
	}
	if diff := cmp.Diff(wantLog, tracer.log); diff != "" {
		t.Errorf("wrong trace events\n%s", diff)
	}
}

func TestBundleVerify(t *testing.T) {
	bundle, targetDir := testingBundle(t)

	if err := bundle.Verify(); err != nil {
		t.Fatalf("fresh bundle failed verification: %s", err)
	}

	err := os.WriteFile(filepath.Join(targetDir, "orders", "app.py"), []byte("tampered\n"), 0644)
	if err != nil {
		t.Fatalf("failed to tamper with staged file: %s", err)
	}

	err = bundle.VerifyUnit("orders")
	if err == nil {
		t.Fatal("verification succeeded on a tampered unit")
	}
	if got, want := err.Error(), `unit "orders" does not match the checksum recorded when it was assembled`; got != want {
		t.Errorf("wrong error message\ngot:  %s\nwant: %s", got, want)
	}

	if err := bundle.VerifyUnit("billing"); err != nil {
		t.Errorf("verification failed on an untampered unit: %s", err)
	}
	if err := bundle.Verify(); err == nil {
		t.Errorf("whole-bundle verification succeeded on a tampered bundle")
	}

	err = bundle.VerifyUnit("nope")
	if err == nil {
		t.Fatal("verification succeeded for a unit that was never assembled")
	}
	if got, want := err.Error(), `function bundle does not include "nope"`; got != want {
		t.Errorf("wrong error message\ngot:  %s\nwant: %s", got, want)
	}
}

func TestOpenDirErrors(t *testing.T) {
	tests := map[string]struct {
		manifest string // empty means no manifest file at all
		wantErr  string
	}{
		"missing manifest": {
			manifest: "",
			wantErr:  "cannot read manifest:",
		},
		"malformed manifest": {
			manifest: "{",
			wantErr:  "invalid manifest:",
		},
		"unsupported version": {
			manifest: `{"foundry_function_bundle":2}`,
			wantErr:  "invalid manifest: unsupported format version 2",
		},
		"traversing unit directory": {
			manifest: `{"foundry_function_bundle":1,"units":[{"name":"x","handler":"a.b","local":"../evil","source_hash":"h1:abc"}]}`,
			wantErr:  `invalid unit directory name "../evil"`,
		},
		"absolute unit directory": {
			manifest: `{"foundry_function_bundle":1,"units":[{"name":"x","handler":"a.b","local":"/evil","source_hash":"h1:abc"}]}`,
			wantErr:  `invalid unit directory name "/evil"`,
		},
		"multi-segment unit directory": {
			manifest: `{"foundry_function_bundle":1,"units":[{"name":"x","handler":"a.b","local":"a/b","source_hash":"h1:abc"}]}`,
			wantErr:  `invalid unit directory name "a/b"`,
		},
		"duplicate units": {
			manifest: `{"foundry_function_bundle":1,"units":[{"name":"x","handler":"a.b","local":"x","source_hash":"h1:abc"},{"name":"x","handler":"a.b","local":"x","source_hash":"h1:abc"}]}`,
			wantErr:  `invalid manifest: duplicate unit "x"`,
		},
		"unparseable requirement": {
			manifest: `{"foundry_function_bundle":1,"units":[{"name":"x","handler":"a.b","local":"x","source_hash":"h1:abc","requirements":["foo==1.0 ; python_version < \"3\""]}]}`,
			wantErr:  `invalid manifest for unit "x":`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			baseDir := t.TempDir()
			if test.manifest != "" {
				err := os.WriteFile(filepath.Join(baseDir, manifestFilename), []byte(test.manifest), 0644)
				if err != nil {
					t.Fatalf("failed to write manifest: %s", err)
				}
			}

			_, err := OpenDir(baseDir)
			if err == nil {
				t.Fatal("OpenDir succeeded; want error")
			}
			if got := err.Error(); !strings.HasPrefix(got, test.wantErr) {
				t.Errorf("wrong error message\ngot:         %s\nwant prefix: %s", got, test.wantErr)
			}
		})
	}
}
