// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/go-foundry/components"
	"github.com/hashicorp/go-foundry/funcbundle"
	"github.com/hashicorp/go-foundry/internal/buildcache"
	"github.com/hashicorp/go-foundry/internal/config"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	Select     string
	JSONOutput bool
	NoCache    bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble and archive the configured functions",
		Long: `Assemble the source bundle for every configured function and write one
upload archive per function under the work directory.

A function whose staged sources match the previous build keeps its existing
archive, so repeated builds do not churn artifact bytes. Use --no-cache to
rewrite every archive regardless.`,
		Example: `  # Build all configured functions
  foundry build

  # Build specific functions
  foundry build --select orders,billing

  # Build with JSON lines output for CI/CD integration
  foundry build --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of functions to build")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Rewrite archives even when sources are unchanged")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions) error {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	if err := cfg.Validate(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	b := &builder{
		cfg:     cfg,
		logger:  GetLogger(ctx),
		noCache: opts.NoCache,
	}
	if opts.JSONOutput {
		b.events = newEventEmitter(out)
	}

	var selected []string
	if opts.Select != "" {
		selected = strings.Split(opts.Select, ",")
		for i := range selected {
			selected[i] = strings.TrimSpace(selected[i])
		}
	}
	names, err := b.unitNames(selected)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		if !opts.JSONOutput {
			fmt.Fprintln(out, "No functions to build.")
		}
		return nil
	}

	if !opts.JSONOutput {
		fmt.Fprintf(out, "Building %d functions...\n", len(names))
	}

	result, err := b.run(ctx, names)
	if err != nil {
		if b.events != nil {
			b.events.emit(buildEvent{Event: "build_complete", Status: "failed", Error: err.Error()})
		}
		return err
	}

	built, unchanged := result.counts()
	if b.events != nil {
		b.events.emit(buildEvent{
			Event:     "build_complete",
			Status:    "succeeded",
			Total:     len(result.Units),
			Built:     built,
			Unchanged: unchanged,
			Checksum:  result.Checksum,
			TotalMS:   result.Elapsed.Milliseconds(),
		})
		return nil
	}

	for _, unit := range result.Units {
		fmt.Fprintf(out, "  %s: %s (%s)\n", unit.Name, unit.Status, unit.SourceHash)
	}
	fmt.Fprintf(out, "Bundle checksum: %s\n", result.Checksum)
	fmt.Fprintf(out, "Completed in %s (%d built, %d unchanged)\n",
		result.Elapsed.Round(time.Millisecond), built, unchanged)
	return nil
}

// builder runs function builds for one loaded configuration. The watch
// command reuses it across rebuilds.
type builder struct {
	cfg     *config.Config
	logger  *slog.Logger
	noCache bool

	// events receives JSON progress lines; nil outside --json mode.
	events *eventEmitter
}

// unitResult describes the outcome of one function's build.
type unitResult struct {
	Name       string
	Status     string // "built" or "unchanged"
	SourceHash string
	Archive    string
}

// buildResult describes one completed build.
type buildResult struct {
	Units    []unitResult
	Checksum string
	Elapsed  time.Duration
}

func (r *buildResult) counts() (built, unchanged int) {
	for _, unit := range r.Units {
		if unit.Status == "unchanged" {
			unchanged++
		} else {
			built++
		}
	}
	return built, unchanged
}

// unitNames expands a --select list against the configured functions, or
// returns every configured function. Names come back sorted so builds run
// in a stable order.
func (b *builder) unitNames(selected []string) ([]string, error) {
	if len(selected) == 0 {
		names := make([]string, 0, len(b.cfg.Functions))
		for name := range b.cfg.Functions {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
	names := make([]string, 0, len(selected))
	for _, name := range selected {
		if _, ok := b.cfg.Functions[name]; !ok {
			return nil, fmt.Errorf("no function named %q is configured", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// run assembles the named functions into a fresh bundle under the work
// directory and writes their upload archives, reusing archives from the
// previous build where the staged sources are unchanged.
func (b *builder) run(ctx context.Context, names []string) (*buildResult, error) {
	start := time.Now()
	ctx = b.traceContext(ctx)

	if b.events != nil {
		b.events.emit(buildEvent{Event: "build_start", Functions: names, Total: len(names)})
	}

	workDir := b.cfg.AbsWorkDir()
	bundleDir := filepath.Join(workDir, "bundle")
	if err := os.RemoveAll(bundleDir); err != nil {
		return nil, fmt.Errorf("cannot clear bundle directory: %w", err)
	}
	if err := os.MkdirAll(bundleDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create bundle directory: %w", err)
	}

	assembler, err := funcbundle.NewAssembler(bundleDir, funcbundle.ResolveRelativeTo(b.cfg.ProjectDir))
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		function := b.cfg.Functions[name]
		component, err := function.Component(name)
		if err != nil {
			return nil, err
		}
		handler := component.Handler
		if handler == "" {
			handler = components.DefaultHandler
		}
		if _, err := assembler.Assemble(ctx, name, handler, component.Sources, component.Requirements); err != nil {
			return nil, err
		}
	}

	bundle, err := assembler.Close()
	if err != nil {
		return nil, err
	}

	cache, err := buildcache.Open(filepath.Join(workDir, buildcache.DefaultFilename))
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	results := make([]unitResult, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		eg.Go(func() error {
			result, err := b.archiveUnit(egCtx, cache, bundle, name, filepath.Join(workDir, name+".tar.gz"))
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	checksum, err := bundle.ChecksumV1()
	if err != nil {
		return nil, err
	}
	return &buildResult{
		Units:    results,
		Checksum: checksum,
		Elapsed:  time.Since(start),
	}, nil
}

// archiveUnit writes one function's upload archive. If the previous build
// recorded the same source hash and its archive is still on disk, the old
// archive is kept as-is: archive bytes carry timestamps, so rewriting one
// for unchanged sources would still churn the artifact.
func (b *builder) archiveUnit(ctx context.Context, cache *buildcache.Cache, bundle *funcbundle.Bundle, name, archivePath string) (unitResult, error) {
	manifest := bundle.Unit(name)
	result := unitResult{
		Name:       name,
		SourceHash: manifest.SourceHash(),
		Archive:    archivePath,
	}

	if !b.noCache {
		entry, ok, err := cache.Lookup(b.cfg.Project, b.cfg.Environment, name)
		if err != nil {
			return unitResult{}, err
		}
		if ok && entry.SourceHash == result.SourceHash && entry.Archive == archivePath {
			if _, err := os.Stat(archivePath); err == nil {
				result.Status = "unchanged"
				b.logger.Debug("archive unchanged", "unit", name, "source_hash", result.SourceHash)
				if b.events != nil {
					b.events.emit(buildEvent{Event: "archive_unchanged", Unit: name})
				}
				return result, nil
			}
		}
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return unitResult{}, fmt.Errorf("cannot create archive for %q: %w", name, err)
	}
	if err := bundle.WriteUnitArchive(ctx, name, f); err != nil {
		f.Close()
		return unitResult{}, err
	}
	if err := f.Close(); err != nil {
		return unitResult{}, err
	}

	err = cache.Record(b.cfg.Project, b.cfg.Environment, name, buildcache.Entry{
		SourceHash: result.SourceHash,
		Archive:    archivePath,
		BuiltAt:    time.Now().UTC(),
	})
	if err != nil {
		return unitResult{}, err
	}
	result.Status = "built"
	return result, nil
}

// traceContext attaches assembly trace callbacks to the context: JSON event
// lines in --json mode, debug logging otherwise.
func (b *builder) traceContext(ctx context.Context) context.Context {
	if b.events != nil {
		return b.events.tracer().OnContext(ctx)
	}
	tracer := &funcbundle.BuildTracer{
		SourceStaged: func(_ context.Context, name, target string, size int64) {
			b.logger.Debug("staged source", "unit", name, "target", target, "size", size)
		},
		UnitSuccess: func(_ context.Context, name, sourceHash string) {
			b.logger.Debug("assembled unit", "unit", name, "source_hash", sourceHash)
		},
	}
	return tracer.OnContext(ctx)
}

// buildEvent is one line of --json build output.
type buildEvent struct {
	Event      string   `json:"event"`
	Timestamp  string   `json:"timestamp"`
	Functions  []string `json:"functions,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	Target     string   `json:"target,omitempty"`
	Size       int64    `json:"size,omitempty"`
	SourceHash string   `json:"source_hash,omitempty"`
	Status     string   `json:"status,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	Error      string   `json:"error,omitempty"`
	Total      int      `json:"total,omitempty"`
	Built      int      `json:"built,omitempty"`
	Unchanged  int      `json:"unchanged,omitempty"`
	TotalMS    int64    `json:"total_ms,omitempty"`
}

// eventEmitter writes build progress as JSON lines. Archive events arrive
// from concurrent goroutines, so writes are serialized.
type eventEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventEmitter(w io.Writer) *eventEmitter {
	return &eventEmitter{enc: json.NewEncoder(w)}
}

func (e *eventEmitter) emit(event buildEvent) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(event)
}

// tracer adapts assembly progress into emitted events.
func (e *eventEmitter) tracer() *funcbundle.BuildTracer {
	return &funcbundle.BuildTracer{
		UnitStart: func(ctx context.Context, name string) context.Context {
			e.emit(buildEvent{Event: "unit_start", Unit: name})
			return ctx
		},
		UnitSuccess: func(_ context.Context, name, sourceHash string) {
			e.emit(buildEvent{Event: "unit_assembled", Unit: name, SourceHash: sourceHash})
		},
		UnitFailure: func(_ context.Context, name string, err error) {
			e.emit(buildEvent{Event: "unit_failed", Unit: name, Error: err.Error()})
		},
		SourceStaged: func(_ context.Context, name, target string, size int64) {
			e.emit(buildEvent{Event: "source_staged", Unit: name, Target: target, Size: size})
		},
		ArchiveStart: func(ctx context.Context, name string) context.Context {
			e.emit(buildEvent{Event: "archive_start", Unit: name})
			return ctx
		},
		ArchiveSuccess: func(_ context.Context, name string) {
			e.emit(buildEvent{Event: "archive_written", Unit: name})
		},
		ArchiveFailure: func(_ context.Context, name string, err error) {
			e.emit(buildEvent{Event: "archive_failed", Unit: name, Error: err.Error()})
		},
	}
}
