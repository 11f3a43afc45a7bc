// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"fmt"

	svchost "github.com/hashicorp/terraform-svchost"

	"github.com/hashicorp/go-foundry/funcbundle"
)

// defaultGeoAllowList is the set of countries a distribution serves when
// the configuration does not choose its own.
var defaultGeoAllowList = []string{
	"US", "CA", "GB", "IE", "MT", "FR", "BR", "BG", "ES", "CH", "AE", "DE",
}

// SiteOriginConfig declares a site bucket, from the same deployment, as a
// distribution origin.
type SiteOriginConfig struct {
	// Name distinguishes this origin from the distribution's others.
	Name string

	// Bucket is the logical name of a declared site bucket.
	Bucket string

	OriginPath   string
	ShieldRegion string

	// TargetOrigin marks this origin as the one the default cache
	// behavior routes to. At most one origin may be marked; when none
	// is, the first declared origin is the target.
	TargetOrigin bool
}

// APIOriginConfig declares an HTTPS API endpoint as a distribution origin,
// routed by path pattern.
type APIOriginConfig struct {
	// Name distinguishes this origin from the distribution's others.
	Name string

	// DomainName is the hostname of the API endpoint.
	DomainName string

	// PathPattern routes matching request paths to this origin, such as
	// "/api/*".
	PathPattern string

	OriginPath   string
	ShieldRegion string

	// APIKeyPassword, when set, is sent to the origin as an X-API-Key
	// header on every forwarded request.
	APIKeyPassword string

	// TargetOrigin marks this origin as the one the default cache
	// behavior routes to.
	TargetOrigin bool
}

// CDNConfig declares one content delivery distribution in front of site
// buckets and API endpoints.
type CDNConfig struct {
	// Name is the logical name of the distribution within its deployment.
	Name string

	Sites []SiteOriginConfig
	APIs  []APIOriginConfig

	// SiteDomainName is the DNS domain the distribution serves under.
	// The served name is "<environment>.<SiteDomainName>"; CreateApex
	// additionally serves the bare domain.
	SiteDomainName string
	CreateApex     bool

	// HostedZoneID names the DNS zone alias records are managed in.
	HostedZoneID string

	// RootURI is the object served for requests to the distribution
	// root, such as "index.html".
	RootURI string

	// WhitelistCountries restricts which countries the distribution
	// serves. Defaults to a built-in allow list.
	WhitelistCountries []string
}

// CDNOrigin is one shaped distribution origin.
type CDNOrigin struct {
	ID         string `json:"id"`
	DomainName string `json:"domain_name"`
	OriginPath string `json:"origin_path,omitempty"`

	// S3 marks origins that point at a bucket rather than a custom HTTPS
	// endpoint.
	S3 bool `json:"s3,omitempty"`

	ShieldRegion  string            `json:"shield_region,omitempty"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
}

// CDNCacheBehavior is one shaped cache behavior.
type CDNCacheBehavior struct {
	PathPattern          string   `json:"path_pattern,omitempty"`
	TargetOriginID       string   `json:"target_origin_id"`
	ViewerProtocolPolicy string   `json:"viewer_protocol_policy"`
	AllowedMethods       []string `json:"allowed_methods"`
	CachedMethods        []string `json:"cached_methods"`
	ForwardedHeaders     []string `json:"forwarded_headers,omitempty"`
	MinTTL               int      `json:"min_ttl"`
	DefaultTTL           int      `json:"default_ttl"`
	MaxTTL               int      `json:"max_ttl"`
	Compress             bool     `json:"compress"`
}

// CDNResource is the shaped argument set for provisioning one distribution.
type CDNResource struct {
	Name              string `json:"name"`
	Comment           string `json:"comment"`
	DefaultRootObject string `json:"default_root_object,omitempty"`
	PriceClass        string `json:"price_class"`
	HostedZoneID      string `json:"hosted_zone_id,omitempty"`

	// Aliases are the DNS names the distribution answers to, in
	// normalized (punycode) form.
	Aliases []string `json:"aliases,omitempty"`

	TargetOriginID       string             `json:"target_origin_id"`
	Origins              []CDNOrigin        `json:"origins"`
	DefaultCacheBehavior CDNCacheBehavior   `json:"default_cache_behavior"`
	CacheBehaviors       []CDNCacheBehavior `json:"cache_behaviors,omitempty"`
	GeoAllowList         []string           `json:"geo_allow_list"`
}

func (r *CDNResource) resourceSigil() {}

// Kind returns "cdn".
func (r *CDNResource) Kind() string { return "cdn" }

// LogicalName returns the name the distribution was declared under.
func (r *CDNResource) LogicalName() string { return r.Name }

// AddCDN shapes the distribution's origins and cache behaviors and declares
// the resource. Domain names are validated and normalized with the same
// hostname rules DNS itself applies, so an invalid alias fails here rather
// than at provisioning time.
func (d *Deployment) AddCDN(config CDNConfig) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if config.Name == "" {
		return &funcbundle.ConfigurationError{
			Err: fmt.Errorf("a CDN requires a name"),
		}
	}
	if _, exists := d.cdns[config.Name]; exists {
		return &funcbundle.ConfigurationError{
			Unit: config.Name,
			Err:  fmt.Errorf("a CDN named %q was already declared", config.Name),
		}
	}
	configErr := func(err error) error {
		return &funcbundle.ConfigurationError{Unit: config.Name, Err: err}
	}

	if len(config.Sites) == 0 && len(config.APIs) == 0 {
		return configErr(fmt.Errorf("at least one site or API origin is required"))
	}

	var aliases []string
	if config.SiteDomainName != "" {
		domain := fmt.Sprintf("%s.%s", d.platform.Environment, config.SiteDomainName)
		hostname, err := svchost.ForComparison(domain)
		if err != nil {
			return configErr(fmt.Errorf("invalid site domain name %q: %w", domain, err))
		}
		aliases = append(aliases, hostname.String())
		if config.CreateApex {
			apex, err := svchost.ForComparison(config.SiteDomainName)
			if err != nil {
				return configErr(fmt.Errorf("invalid site domain name %q: %w", config.SiteDomainName, err))
			}
			aliases = append(aliases, apex.String())
		}
	}

	var origins []CDNOrigin
	var behaviors []CDNCacheBehavior
	targetOriginID := ""
	markTarget := func(id string) error {
		if targetOriginID != "" {
			return fmt.Errorf("origins %q and %q are both marked as the default target", targetOriginID, id)
		}
		targetOriginID = id
		return nil
	}

	for _, site := range config.Sites {
		if site.Name == "" {
			return configErr(fmt.Errorf("a site origin requires a name"))
		}
		if _, ok := d.buckets[site.Bucket]; !ok {
			return configErr(fmt.Errorf("site origin %q references undeclared bucket %q", site.Name, site.Bucket))
		}
		originID := site.Name + "-site"
		origins = append(origins, CDNOrigin{
			ID:           originID,
			DomainName:   BucketRef(site.Bucket),
			OriginPath:   site.OriginPath,
			S3:           true,
			ShieldRegion: site.ShieldRegion,
		})
		if site.TargetOrigin {
			if err := markTarget(originID); err != nil {
				return configErr(err)
			}
		}
	}

	for _, api := range config.APIs {
		if api.Name == "" {
			return configErr(fmt.Errorf("an API origin requires a name"))
		}
		hostname, err := svchost.ForComparison(api.DomainName)
		if err != nil {
			return configErr(fmt.Errorf("invalid domain name %q for API origin %q: %w", api.DomainName, api.Name, err))
		}
		if api.PathPattern == "" {
			return configErr(fmt.Errorf("API origin %q requires a path pattern", api.Name))
		}
		originID := api.Name + "-api"
		origin := CDNOrigin{
			ID:           originID,
			DomainName:   hostname.String(),
			OriginPath:   api.OriginPath,
			ShieldRegion: api.ShieldRegion,
		}
		if api.APIKeyPassword != "" {
			origin.CustomHeaders = map[string]string{"X-API-Key": api.APIKeyPassword}
		}
		origins = append(origins, origin)
		behaviors = append(behaviors, apiCacheBehavior(originID, api.PathPattern))
		if api.TargetOrigin {
			if err := markTarget(originID); err != nil {
				return configErr(err)
			}
		}
	}

	if targetOriginID == "" {
		targetOriginID = origins[0].ID
	}

	geoAllowList := config.WhitelistCountries
	if len(geoAllowList) == 0 {
		geoAllowList = defaultGeoAllowList
	}

	resource := &CDNResource{
		Name:              config.Name,
		Comment:           d.platform.ResourceName(config.Name),
		DefaultRootObject: config.RootURI,
		PriceClass:        "PriceClass_100",
		HostedZoneID:      config.HostedZoneID,
		Aliases:           aliases,
		TargetOriginID:    targetOriginID,
		Origins:           origins,
		DefaultCacheBehavior: CDNCacheBehavior{
			TargetOriginID:       targetOriginID,
			ViewerProtocolPolicy: "redirect-to-https",
			AllowedMethods:       []string{"GET", "HEAD", "OPTIONS"},
			CachedMethods:        []string{"GET", "HEAD"},
			MinTTL:               1,
			DefaultTTL:           86400,
			MaxTTL:               31536000,
			Compress:             true,
		},
		CacheBehaviors: behaviors,
		GeoAllowList:   geoAllowList,
	}
	d.cdns[config.Name] = resource
	d.resources = append(d.resources, resource)

	d.logger.Debug("declared CDN",
		"name", config.Name,
		"origins", len(origins),
		"aliases", len(aliases))
	return nil
}

// apiCacheBehavior routes one path pattern to an API origin. The TTLs stay
// zero so API responses are never cached.
func apiCacheBehavior(originID, pathPattern string) CDNCacheBehavior {
	return CDNCacheBehavior{
		PathPattern:          pathPattern,
		TargetOriginID:       originID,
		ViewerProtocolPolicy: "https-only",
		AllowedMethods:       []string{"DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT"},
		CachedMethods:        []string{"GET", "HEAD"},
		ForwardedHeaders: []string{
			"Authorization",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Protocol",
			"Sec-WebSocket-Accept",
			"Sec-WebSocket-Extensions",
			"Accept-Encoding",
		},
		Compress: true,
	}
}
