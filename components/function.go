// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-foundry/funcbundle"
	"github.com/hashicorp/go-foundry/requirements"
	"github.com/hashicorp/go-foundry/sourceset"
)

// baseActions are granted to every function's execution role in addition to
// whatever the configuration asks for, so a function can always write its
// own logs.
var baseActions = []string{
	"logs:CreateLogGroup",
	"logs:CreateLogStream",
	"logs:PutLogEvents",
}

// FunctionConfig declares one deployable function.
type FunctionConfig struct {
	// Name is the logical name of the function within its deployment.
	Name string

	// Handler is the "module.function" entry point. Defaults to
	// [DefaultHandler].
	Handler string

	// Runtime, MemorySize and Timeout override the platform defaults for
	// this function when set.
	Runtime    string
	MemorySize int
	Timeout    int

	// Environment is the set of environment variables the function runs
	// with.
	Environment map[string]string

	// Sources maps target filenames to their content: inline text, a
	// single file, or a directory tree.
	Sources *sourceset.Set

	// Requirements lists the function's package dependencies.
	Requirements requirements.List

	// Actions grants IAM actions to the function's execution role beyond
	// the base logging set.
	Actions []string
}

// FunctionResource is the shaped argument set for provisioning one function.
type FunctionResource struct {
	Name            string            `json:"name"`
	FunctionName    string            `json:"function_name"`
	Handler         string            `json:"handler"`
	Runtime         string            `json:"runtime"`
	MemorySize      int               `json:"memory_size,omitempty"`
	Timeout         int               `json:"timeout,omitempty"`
	Environment     map[string]string `json:"environment,omitempty"`
	Actions         []string          `json:"actions"`
	ArchiveLocation string            `json:"archive_location"`
	SourceHash      string            `json:"source_hash"`
}

func (r *FunctionResource) resourceSigil() {}

// Kind returns "function".
func (r *FunctionResource) Kind() string { return "function" }

// LogicalName returns the name the function was declared under.
func (r *FunctionResource) LogicalName() string { return r.Name }

// AddFunction assembles the function's sources into the deployment's bundle
// and declares the shaped function resource.
//
// Faults in the declaration itself -- a handler without a matching source
// file, an unreadable source path, conflicting requirements -- are reported
// as [funcbundle.ConfigurationError] values and leave the deployment usable,
// so a caller can correct the declaration and try again.
func (d *Deployment) AddFunction(ctx context.Context, config FunctionConfig) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, exists := d.functions[config.Name]; exists {
		return &funcbundle.ConfigurationError{
			Unit: config.Name,
			Err:  fmt.Errorf("a function named %q was already declared", config.Name),
		}
	}
	if err := d.ensureAssembler(); err != nil {
		return err
	}

	handler := config.Handler
	if handler == "" {
		handler = DefaultHandler
	}
	runtime := config.Runtime
	if runtime == "" {
		runtime = d.platform.Runtime
	}
	memory := config.MemorySize
	if memory == 0 {
		memory = d.platform.MemorySize
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = d.platform.Timeout
	}

	manifest, err := d.assembler.Assemble(ctx, config.Name, handler, config.Sources, config.Requirements)
	if err != nil {
		return err
	}

	var environment map[string]string
	if len(config.Environment) != 0 {
		environment = make(map[string]string, len(config.Environment))
		for k, v := range config.Environment {
			environment[k] = v
		}
	}
	actions := make([]string, 0, len(config.Actions)+len(baseActions))
	actions = append(actions, config.Actions...)
	actions = append(actions, baseActions...)

	resource := &FunctionResource{
		Name:            config.Name,
		FunctionName:    d.platform.ResourceName(config.Name),
		Handler:         handler,
		Runtime:         runtime,
		MemorySize:      memory,
		Timeout:         timeout,
		Environment:     environment,
		Actions:         actions,
		ArchiveLocation: filepath.Join(d.workDir, config.Name+".tar.gz"),
		SourceHash:      manifest.SourceHash(),
	}
	d.functions[config.Name] = resource
	d.resources = append(d.resources, resource)

	d.logger.Debug("declared function",
		"name", config.Name,
		"function_name", resource.FunctionName,
		"source_hash", resource.SourceHash)
	return nil
}
