// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config loads foundry project configuration from a foundry.yaml
// file, FOUNDRY_* environment variables, and command-line flags, and
// converts the declared units into typed component configurations.
package config

import (
	"fmt"
	"path/filepath"
)

// Defaults for configuration values the project file leaves unset.
const (
	DefaultEnvironment = "dev"
	DefaultOutput      = "auto"
)

// Config holds one foundry project's configuration.
type Config struct {
	// Project and Environment qualify every provisioned resource name.
	Project     string `koanf:"project"`
	Environment string `koanf:"environment"`

	// ProjectDir is the directory unit sources and publisher directories
	// resolve against. The loader derives it from flags or the config
	// file location; the file itself cannot set it.
	ProjectDir string `koanf:"project_dir"`

	// WorkDir receives staged trees, archives, and the plan document.
	WorkDir string `koanf:"work_dir"`

	// Runtime, MemorySize, and Timeout are platform-wide function
	// defaults. Zero values leave the choice to the provisioning engine.
	Runtime    string `koanf:"runtime"`
	MemorySize int    `koanf:"memory_size"`
	Timeout    int    `koanf:"timeout"`

	Verbose bool   `koanf:"verbose"`
	Output  string `koanf:"output"`

	Functions map[string]Function   `koanf:"functions"`
	APIs      map[string]RestAPI    `koanf:"apis"`
	Buckets   map[string]SiteBucket `koanf:"buckets"`
	CDNs      map[string]CDN        `koanf:"cdns"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// Validate checks the parts of the configuration every project needs.
// Commands that operate on a project call this; commands that work from
// explicit arguments alone do not.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("a project name is required (set \"project\" in %s)", configNames[0])
	}
	return nil
}

// AbsWorkDir returns the work directory resolved against the project
// directory unless it was given as an absolute path.
func (c *Config) AbsWorkDir() string {
	if filepath.IsAbs(c.WorkDir) {
		return c.WorkDir
	}
	return filepath.Join(c.ProjectDir, c.WorkDir)
}

// Function declares one deployable unit of source code.
type Function struct {
	Handler    string `koanf:"handler"`
	Runtime    string `koanf:"runtime"`
	MemorySize int    `koanf:"memory_size"`
	Timeout    int    `koanf:"timeout"`

	// Sources maps staged file targets to their declarations: inline
	// content, a "./"-prefixed file path, or a "/"-suffixed directory.
	Sources map[string]string `koanf:"sources"`

	// Requirements lists pip-style dependency declarations.
	Requirements []string `koanf:"requirements"`

	Environment map[string]string `koanf:"environment"`
	Actions     []string          `koanf:"actions"`
}

// Integration routes one path and method of an API to a function.
type Integration struct {
	Path     string `koanf:"path"`
	Method   string `koanf:"method"`
	Function string `koanf:"function"`
}

// TokenValidator attaches a token-authorizing function to an API's
// security scheme.
type TokenValidator struct {
	Name     string `koanf:"name"`
	Function string `koanf:"function"`
}

// RestAPI declares one REST API unit.
type RestAPI struct {
	// Body lists OpenAPI document fragments merged in order: inline YAML
	// or "./"-prefixed file paths.
	Body []string `koanf:"body"`

	Integrations    []Integration    `koanf:"integrations"`
	TokenValidators []TokenValidator `koanf:"token_validators"`

	// Content lists logical names of site buckets the API serves
	// content from.
	Content []string `koanf:"content"`

	Firewall      bool `koanf:"firewall"`
	AccessLogging bool `koanf:"access_logging"`
}

// Publisher declares a directory of built site assets to upload.
type Publisher struct {
	// DistDir is resolved relative to the project directory unless
	// absolute. Defaults to "dist".
	DistDir string `koanf:"dist_dir"`

	// Prefix is prepended to every uploaded object key.
	Prefix string `koanf:"prefix"`
}

// SiteBucket declares one private bucket of static site content.
type SiteBucket struct {
	BucketName  string      `koanf:"bucket_name"`
	CORSOrigins []string    `koanf:"cors_origins"`
	Publishers  []Publisher `koanf:"publishers"`
}

// SiteOrigin declares a site bucket as a distribution origin.
type SiteOrigin struct {
	Name         string `koanf:"name"`
	Bucket       string `koanf:"bucket"`
	OriginPath   string `koanf:"origin_path"`
	ShieldRegion string `koanf:"shield_region"`
	TargetOrigin bool   `koanf:"target_origin"`
}

// APIOrigin declares an HTTPS API endpoint as a distribution origin.
type APIOrigin struct {
	Name           string `koanf:"name"`
	DomainName     string `koanf:"domain_name"`
	PathPattern    string `koanf:"path_pattern"`
	OriginPath     string `koanf:"origin_path"`
	ShieldRegion   string `koanf:"shield_region"`
	APIKeyPassword string `koanf:"api_key_password"`
	TargetOrigin   bool   `koanf:"target_origin"`
}

// CDN declares one content delivery distribution.
type CDN struct {
	Sites []SiteOrigin `koanf:"sites"`
	APIs  []APIOrigin  `koanf:"apis"`

	// SiteDomainName is the DNS domain the distribution serves under;
	// the environment name is prepended. CreateApex additionally serves
	// the bare domain.
	SiteDomainName string `koanf:"site_domain_name"`
	CreateApex     bool   `koanf:"create_apex"`

	HostedZoneID       string   `koanf:"hosted_zone_id"`
	RootURI            string   `koanf:"root_uri"`
	WhitelistCountries []string `koanf:"whitelist_countries"`
}
