// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hashicorp/go-foundry/funcbundle"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [bundle-dir]",
		Short: "Describe an assembled function bundle",
		Long: `Read the manifest of a function bundle directory and print its deployable
units. With no argument, the bundle under the project work directory is
inspected.

Every staged source file is checked against the checksum recorded in the
manifest, so a bundle that was modified after assembly is reported rather
than described.`,
		Example: `  # Inspect the last build of the current project
  foundry inspect

  # Inspect an extracted bundle as JSON
  foundry inspect /tmp/bundle -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := GetConfig(cmd.Context())

	var bundleDir string
	if len(args) > 0 {
		bundleDir = args[0]
	} else {
		bundleDir = filepath.Join(cfg.AbsWorkDir(), "bundle")
	}

	bundle, err := funcbundle.OpenDir(bundleDir)
	if err != nil {
		return err
	}
	if err := bundle.Verify(); err != nil {
		return err
	}
	checksum, err := bundle.ChecksumV1()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	units := bundle.Units()
	switch cfg.Output {
	case "json":
		return renderBundleJSON(out, checksum, units)
	case "md", "markdown":
		renderBundleTable(out, units).RenderMarkdown()
		return nil
	default:
		renderBundleTable(out, units).Render()
		_, _ = fmt.Fprintf(out, "Bundle checksum: %s\n", checksum)
		return nil
	}
}

func renderBundleTable(w io.Writer, units []*funcbundle.Manifest) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Unit", "Handler", "Files", "Size", "Requirements", "Source Hash"})
	for _, unit := range units {
		var size int64
		for _, src := range unit.Sources() {
			size += src.Size
		}
		reqs := make([]string, 0, len(unit.Requirements()))
		for _, req := range unit.Requirements() {
			reqs = append(reqs, req.String())
		}
		t.AppendRow(table.Row{
			unit.Name(),
			unit.Handler(),
			len(unit.Sources()),
			size,
			strings.Join(reqs, ", "),
			unit.SourceHash(),
		})
	}
	return t
}

func renderBundleJSON(w io.Writer, checksum string, units []*funcbundle.Manifest) error {
	doc := struct {
		Checksum string                 `json:"checksum"`
		Units    []*funcbundle.Manifest `json:"units"`
	}{
		Checksum: checksum,
		Units:    units,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(out))
	return nil
}
