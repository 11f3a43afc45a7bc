// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultRuntime is the function runtime assumed when neither the
	// platform nor an individual function configuration names one.
	DefaultRuntime = "python3.9"

	// DefaultHandler is the entry point assumed for functions that do not
	// declare one. It implies a source file at "app.py".
	DefaultHandler = "app.handler"

	// DefaultWorkDir is the directory build artifacts are staged under,
	// relative to the project directory. Source staging excludes
	// directories of this name by default, so a function that packages
	// the project root does not pick up its own build output.
	DefaultWorkDir = ".foundry"
)

// Platform carries the project-wide settings that components would otherwise
// have to reach for as ambient process state: the project and environment
// every resource name is qualified with, sizing defaults for functions, and
// the local directories used during assembly.
//
// The zero value is not usable: Project and Environment must both be set.
type Platform struct {
	// Project and Environment together qualify every provisioned resource
	// name, in the form "<project>-<environment>-<name>".
	Project     string
	Environment string

	// ProjectDir is the directory that relative source paths in component
	// configurations are resolved against. Defaults to the process
	// working directory.
	ProjectDir string

	// WorkDir is the directory bundles and archives are staged under,
	// resolved relative to ProjectDir unless absolute. Defaults to
	// [DefaultWorkDir].
	WorkDir string

	// Runtime, MemorySize and Timeout are the defaults applied to any
	// function that does not set its own. A zero MemorySize or Timeout is
	// forwarded as-is, leaving the choice to the provisioning engine.
	Runtime    string
	MemorySize int
	Timeout    int

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// ResourceName returns the fully-qualified name that a resource with the
// given logical name is provisioned under.
func (p Platform) ResourceName(name string) string {
	return fmt.Sprintf("%s-%s-%s", p.Project, p.Environment, name)
}

func (p Platform) withDefaults() Platform {
	if p.ProjectDir == "" {
		p.ProjectDir = "."
	}
	if p.WorkDir == "" {
		p.WorkDir = DefaultWorkDir
	}
	if p.Runtime == "" {
		p.Runtime = DefaultRuntime
	}
	return p
}
