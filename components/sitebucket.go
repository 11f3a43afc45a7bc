// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-foundry/funcbundle"
)

// defaultCORSOrigins allows a locally-served development UI to exercise
// uploads against the bucket.
var defaultCORSOrigins = []string{"http://localhost:3030"}

// PublisherConfig declares a directory of built site assets to upload into
// a bucket.
type PublisherConfig struct {
	// DistDir is the directory whose files are uploaded, resolved
	// relative to the platform project directory unless absolute.
	// Defaults to "dist".
	DistDir string

	// Prefix is prepended to every uploaded object key.
	Prefix string
}

// SiteBucketConfig declares one private bucket for static site content.
type SiteBucketConfig struct {
	// Name is the logical name of the bucket within its deployment.
	Name string

	// BucketName overrides the provisioned bucket name. Defaults to the
	// platform-qualified logical name with a "-bucket" suffix.
	BucketName string

	// CORSOrigins lists the origins allowed to upload to the bucket in
	// cross-origin requests. When nil, a localhost development origin is
	// allowed; set an empty non-nil slice to allow none.
	CORSOrigins []string

	// Publishers declare directories of site assets to upload.
	Publishers []PublisherConfig
}

// BucketResource is the shaped argument set for provisioning one site
// bucket. Buckets are always private, versioned, and destroyable.
type BucketResource struct {
	Name              string   `json:"name"`
	BucketName        string   `json:"bucket_name"`
	ForceDestroy      bool     `json:"force_destroy"`
	Versioned         bool     `json:"versioned"`
	BlockPublicAccess bool     `json:"block_public_access"`
	CORSOrigins       []string `json:"cors_origins,omitempty"`
}

func (r *BucketResource) resourceSigil() {}

// Kind returns "site-bucket".
func (r *BucketResource) Kind() string { return "site-bucket" }

// LogicalName returns the name the bucket was declared under.
func (r *BucketResource) LogicalName() string { return r.Name }

// ObjectResource is the shaped argument set for uploading one site asset.
type ObjectResource struct {
	// Bucket is the logical name of the bucket resource the object
	// belongs to, declared in the same plan.
	Bucket string `json:"bucket"`

	Key         string `json:"key"`
	SourcePath  string `json:"source_path"`
	ContentType string `json:"content_type,omitempty"`
}

func (r *ObjectResource) resourceSigil() {}

// Kind returns "bucket-object".
func (r *ObjectResource) Kind() string { return "bucket-object" }

// LogicalName returns the object's key.
func (r *ObjectResource) LogicalName() string { return r.Key }

// AddSiteBucket declares a private site bucket and one upload resource per
// file under each publisher's dist directory. Files are walked in lexical
// order, so declaring the same directory twice yields the same sequence of
// upload resources.
func (d *Deployment) AddSiteBucket(config SiteBucketConfig) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if config.Name == "" {
		return &funcbundle.ConfigurationError{
			Err: fmt.Errorf("a site bucket requires a name"),
		}
	}
	if _, exists := d.buckets[config.Name]; exists {
		return &funcbundle.ConfigurationError{
			Unit: config.Name,
			Err:  fmt.Errorf("a site bucket named %q was already declared", config.Name),
		}
	}

	bucketName := config.BucketName
	if bucketName == "" {
		bucketName = d.platform.ResourceName(config.Name) + "-bucket"
	}
	corsOrigins := config.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = defaultCORSOrigins
	}

	var objects []*ObjectResource
	for _, publisher := range config.Publishers {
		published, err := d.publishObjects(config.Name, publisher)
		if err != nil {
			return err
		}
		objects = append(objects, published...)
	}

	resource := &BucketResource{
		Name:              config.Name,
		BucketName:        bucketName,
		ForceDestroy:      true,
		Versioned:         true,
		BlockPublicAccess: true,
		CORSOrigins:       corsOrigins,
	}
	d.buckets[config.Name] = resource
	d.resources = append(d.resources, resource)
	for _, object := range objects {
		d.resources = append(d.resources, object)
	}

	d.logger.Debug("declared site bucket",
		"name", config.Name,
		"bucket_name", bucketName,
		"objects", len(objects))
	return nil
}

func (d *Deployment) publishObjects(name string, publisher PublisherConfig) ([]*ObjectResource, error) {
	distDir := publisher.DistDir
	if distDir == "" {
		distDir = "dist"
	}
	if !filepath.IsAbs(distDir) {
		distDir = filepath.Join(d.platform.ProjectDir, distDir)
	}

	info, err := os.Stat(distDir)
	if err != nil {
		return nil, &funcbundle.ConfigurationError{
			Unit: name,
			Err:  fmt.Errorf("cannot read publisher directory %s: %w", distDir, err),
		}
	}
	if !info.IsDir() {
		return nil, &funcbundle.ConfigurationError{
			Unit: name,
			Err:  fmt.Errorf("publisher path %s is not a directory", distDir),
		}
	}

	var objects []*ObjectResource
	err = filepath.Walk(distDir, func(fsPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(distDir, fsPath)
		if err != nil {
			return err
		}
		objects = append(objects, &ObjectResource{
			Bucket:      name,
			Key:         path.Join(publisher.Prefix, filepath.ToSlash(relPath)),
			SourcePath:  fsPath,
			ContentType: mime.TypeByExtension(filepath.Ext(fsPath)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk publisher directory: %w", err)
	}
	return objects, nil
}
