// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hashicorp/go-foundry/funcbundle"
)

// Deployment accumulates component declarations for one project environment
// and turns them into a [Plan].
//
// Declarations are validated as they arrive, so a component that refers to
// another -- an API integration naming a function, a CDN origin naming a
// bucket -- must be declared after the component it refers to. Deployment is
// not safe for concurrent use.
type Deployment struct {
	platform Platform
	logger   *slog.Logger

	workDir   string
	bundleDir string
	assembler *funcbundle.Assembler

	resources []Resource
	functions map[string]*FunctionResource
	buckets   map[string]*BucketResource
	apis      map[string]*RestAPIResource
	cdns      map[string]*CDNResource

	planned bool
}

// NewDeployment prepares an empty deployment for the given platform.
func NewDeployment(platform Platform) (*Deployment, error) {
	if platform.Project == "" || platform.Environment == "" {
		return nil, &funcbundle.ConfigurationError{
			Err: fmt.Errorf("platform project and environment must both be set"),
		}
	}
	platform = platform.withDefaults()

	logger := platform.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	workDir := platform.WorkDir
	if !filepath.IsAbs(workDir) {
		workDir = filepath.Join(platform.ProjectDir, workDir)
	}

	return &Deployment{
		platform:  platform,
		logger:    logger,
		workDir:   workDir,
		functions: make(map[string]*FunctionResource),
		buckets:   make(map[string]*BucketResource),
		apis:      make(map[string]*RestAPIResource),
		cdns:      make(map[string]*CDNResource),
	}, nil
}

// Platform returns the platform settings the deployment was created with,
// with defaults applied.
func (d *Deployment) Platform() Platform {
	return d.platform
}

func (d *Deployment) checkOpen() error {
	if d.planned {
		return fmt.Errorf("deployment has already produced its plan")
	}
	return nil
}

// ensureAssembler lazily prepares a fresh bundle directory, so deployments
// that declare no functions never touch the disk.
func (d *Deployment) ensureAssembler() error {
	if d.assembler != nil {
		return nil
	}
	bundleDir := filepath.Join(d.workDir, "bundle")
	if err := os.RemoveAll(bundleDir); err != nil {
		return fmt.Errorf("cannot clear bundle directory: %w", err)
	}
	if err := os.MkdirAll(bundleDir, 0755); err != nil {
		return fmt.Errorf("cannot create bundle directory: %w", err)
	}
	assembler, err := funcbundle.NewAssembler(bundleDir, funcbundle.ResolveRelativeTo(d.platform.ProjectDir))
	if err != nil {
		return err
	}
	d.bundleDir = bundleDir
	d.assembler = assembler
	return nil
}

// Plan finalizes the deployment: the function bundle is closed and verified,
// one archive per function is written under the platform work directory, and
// all declared resources are collected into a new [Plan] in declaration
// order.
//
// A deployment produces at most one plan. Calling Plan again, or declaring
// further components afterwards, is an error.
func (d *Deployment) Plan(ctx context.Context) (*Plan, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	d.planned = true

	if d.assembler != nil {
		bundle, err := d.assembler.Close()
		if err != nil {
			return nil, err
		}
		for _, resource := range d.resources {
			function, ok := resource.(*FunctionResource)
			if !ok {
				continue
			}
			if err := d.writeArchive(ctx, bundle, function); err != nil {
				return nil, err
			}
		}
	}

	plan := &Plan{
		id:          uuid.New().String(),
		project:     d.platform.Project,
		environment: d.platform.Environment,
		resources:   make([]Resource, len(d.resources)),
	}
	copy(plan.resources, d.resources)

	d.logger.Info("plan ready",
		"plan_id", plan.id,
		"project", plan.project,
		"environment", plan.environment,
		"resources", len(plan.resources))
	return plan, nil
}

func (d *Deployment) writeArchive(ctx context.Context, bundle *funcbundle.Bundle, function *FunctionResource) error {
	f, err := os.Create(function.ArchiveLocation)
	if err != nil {
		return fmt.Errorf("cannot create archive for %q: %w", function.Name, err)
	}
	if err := bundle.WriteUnitArchive(ctx, function.Name, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
