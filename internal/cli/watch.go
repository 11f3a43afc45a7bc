// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild function archives when project sources change",
		Long: `Build the configured functions, then keep watching the project directory
and rebuild whenever a file changes. A function whose staged sources are
unaffected by the change keeps its archive.

The work directory, hidden directories, and generated directories such as
node_modules and __pycache__ are not watched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 250*time.Millisecond, "How long to wait after a change before rebuilding")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := GetLogger(ctx)
	out := cmd.OutOrStdout()

	b := &builder{cfg: cfg, logger: logger}
	names, err := b.unitNames(nil)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no functions are configured in %s", cfg.ConfigFile)
	}

	// Rebuilds fire from the debounce timer's goroutine, so they must not
	// overlap with each other.
	var buildMu sync.Mutex
	rebuild := func() {
		buildMu.Lock()
		defer buildMu.Unlock()
		result, err := b.run(ctx, names)
		if err != nil {
			fmt.Fprintf(out, "Build failed: %v\n", err)
			return
		}
		built, unchanged := result.counts()
		fmt.Fprintf(out, "Build completed in %s (%d built, %d unchanged)\n",
			result.Elapsed.Round(time.Millisecond), built, unchanged)
	}
	rebuild()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	workDir := cfg.AbsWorkDir()
	if err := watchTree(watcher, cfg.ProjectDir, workDir); err != nil {
		return fmt.Errorf("failed to watch project directory: %w", err)
	}

	fmt.Fprintf(out, "Watching %s for changes. Press Ctrl+C to stop.\n", cfg.ProjectDir)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ignoredPath(event.Name, cfg.ProjectDir, workDir) {
				continue
			}

			// New directories join the watch so that edits inside them
			// are seen too.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name, workDir)
				}
			}

			if debounce != nil {
				debounce.Stop()
			}
			changed := event.Name
			debounce = time.AfterFunc(opts.Debounce, func() {
				fmt.Fprintf(out, "Change detected: %s\n", filepath.Base(changed))
				rebuild()
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// watchTree recursively adds dir and its subdirectories to the watcher,
// skipping the work directory and anything ignoredPath would ignore.
func watchTree(watcher *fsnotify.Watcher, dir, workDir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && skippedDirName(info.Name()) {
			return filepath.SkipDir
		}
		if path == workDir {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// ignoredPath reports whether a change at the given path should not trigger
// a rebuild: anything under the work directory, or inside a hidden or
// generated directory within the project.
func ignoredPath(path, projectDir, workDir string) bool {
	if rel, err := filepath.Rel(workDir, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	rel, err := filepath.Rel(projectDir, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skippedDirName(part) {
			return true
		}
	}
	return false
}

func skippedDirName(name string) bool {
	if name == "node_modules" || name == "__pycache__" {
		return true
	}
	return len(name) > 1 && name[0] == '.' && name != ".."
}
