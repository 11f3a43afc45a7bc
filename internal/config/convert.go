// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-foundry/components"
	"github.com/hashicorp/go-foundry/funcbundle"
	"github.com/hashicorp/go-foundry/requirements"
	"github.com/hashicorp/go-foundry/sourceset"
)

// Platform returns the platform the configuration describes.
func (c *Config) Platform(logger *slog.Logger) components.Platform {
	return components.Platform{
		Project:     c.Project,
		Environment: c.Environment,
		ProjectDir:  c.ProjectDir,
		WorkDir:     c.WorkDir,
		Runtime:     c.Runtime,
		MemorySize:  c.MemorySize,
		Timeout:     c.Timeout,
		Logger:      logger,
	}
}

// Declare adds every configured unit to the deployment. Functions and
// buckets are declared before APIs and CDNs so reference targets exist
// regardless of where units appear in the file; within each kind, units
// are declared in name order.
func (c *Config) Declare(ctx context.Context, d *components.Deployment) error {
	for _, name := range sortedNames(c.Functions) {
		fc, err := c.Functions[name].Component(name)
		if err != nil {
			return err
		}
		if err := d.AddFunction(ctx, fc); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(c.Buckets) {
		if err := d.AddSiteBucket(c.Buckets[name].Component(name)); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(c.APIs) {
		ac, err := c.APIs[name].Component(name)
		if err != nil {
			return err
		}
		if err := d.AddRestAPI(ac); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(c.CDNs) {
		if err := d.AddCDN(c.CDNs[name].Component(name)); err != nil {
			return err
		}
	}
	return nil
}

// Component converts the unit into a typed function configuration,
// parsing its source and requirement declarations.
func (f Function) Component(name string) (components.FunctionConfig, error) {
	sources := sourceset.NewSet()
	for _, target := range sortedNames(f.Sources) {
		src, err := sourceset.ParseSource(f.Sources[target])
		if err != nil {
			return components.FunctionConfig{}, &funcbundle.ConfigurationError{
				Unit: name,
				Err:  fmt.Errorf("source %q: %w", target, err),
			}
		}
		if err := sources.Add(target, src); err != nil {
			return components.FunctionConfig{}, &funcbundle.ConfigurationError{Unit: name, Err: err}
		}
	}
	reqs, err := requirements.ParseList(f.Requirements)
	if err != nil {
		return components.FunctionConfig{}, &funcbundle.ConfigurationError{Unit: name, Err: err}
	}
	return components.FunctionConfig{
		Name:         name,
		Handler:      f.Handler,
		Runtime:      f.Runtime,
		MemorySize:   f.MemorySize,
		Timeout:      f.Timeout,
		Environment:  f.Environment,
		Sources:      sources,
		Requirements: reqs,
		Actions:      f.Actions,
	}, nil
}

// Component converts the unit into a typed REST API configuration,
// parsing its body fragment declarations.
func (a RestAPI) Component(name string) (components.RestAPIConfig, error) {
	config := components.RestAPIConfig{
		Name:          name,
		Firewall:      a.Firewall,
		AccessLogging: a.AccessLogging,
	}
	for _, fragment := range a.Body {
		src, err := sourceset.ParseSource(fragment)
		if err != nil {
			return components.RestAPIConfig{}, &funcbundle.ConfigurationError{
				Unit: name,
				Err:  fmt.Errorf("body fragment: %w", err),
			}
		}
		config.Body = append(config.Body, src)
	}
	for _, integration := range a.Integrations {
		config.Integrations = append(config.Integrations, components.Integration{
			Path:     integration.Path,
			Method:   integration.Method,
			Function: integration.Function,
		})
	}
	for _, validator := range a.TokenValidators {
		config.TokenValidators = append(config.TokenValidators, components.TokenValidator{
			Name:     validator.Name,
			Function: validator.Function,
		})
	}
	for _, bucket := range a.Content {
		config.Content = append(config.Content, components.ContentOrigin{Bucket: bucket})
	}
	return config, nil
}

// Component converts the unit into a typed site bucket configuration.
func (b SiteBucket) Component(name string) components.SiteBucketConfig {
	config := components.SiteBucketConfig{
		Name:        name,
		BucketName:  b.BucketName,
		CORSOrigins: b.CORSOrigins,
	}
	for _, publisher := range b.Publishers {
		config.Publishers = append(config.Publishers, components.PublisherConfig{
			DistDir: publisher.DistDir,
			Prefix:  publisher.Prefix,
		})
	}
	return config
}

// Component converts the unit into a typed CDN configuration.
func (c CDN) Component(name string) components.CDNConfig {
	config := components.CDNConfig{
		Name:               name,
		SiteDomainName:     c.SiteDomainName,
		CreateApex:         c.CreateApex,
		HostedZoneID:       c.HostedZoneID,
		RootURI:            c.RootURI,
		WhitelistCountries: c.WhitelistCountries,
	}
	for _, site := range c.Sites {
		config.Sites = append(config.Sites, components.SiteOriginConfig{
			Name:         site.Name,
			Bucket:       site.Bucket,
			OriginPath:   site.OriginPath,
			ShieldRegion: site.ShieldRegion,
			TargetOrigin: site.TargetOrigin,
		})
	}
	for _, api := range c.APIs {
		config.APIs = append(config.APIs, components.APIOriginConfig{
			Name:           api.Name,
			DomainName:     api.DomainName,
			PathPattern:    api.PathPattern,
			OriginPath:     api.OriginPath,
			ShieldRegion:   api.ShieldRegion,
			APIKeyPassword: api.APIKeyPassword,
			TargetOrigin:   api.TargetOrigin,
		})
	}
	return config
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
