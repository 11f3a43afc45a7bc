// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"fmt"

	"github.com/hashicorp/go-foundry/funcbundle"
	"github.com/hashicorp/go-foundry/openapidoc"
	"github.com/hashicorp/go-foundry/sourceset"
)

// accessLogFormat is the structure of one API access log line, as the
// gateway's logging settings expect it.
const accessLogFormat = `{"requestId": "$context.requestId", "ip": "$context.identity.sourceIp", "caller": "$context.identity.caller", "user": "$context.identity.user", "requestTime": "$context.requestTime", "httpMethod": "$context.httpMethod", "resourcePath": "$context.resourcePath", "status": "$context.status", "protocol": "$context.protocol", "responseLength": "$context.responseLength"}`

// Integration binds one path operation in an API's OpenAPI body to a
// function declared in the same deployment.
type Integration struct {
	Path     string
	Method   string
	Function string
}

func (i Integration) validate() error {
	if i.Path == "" || i.Method == "" {
		return fmt.Errorf("an integration requires both a path and a method")
	}
	if i.Function == "" {
		return fmt.Errorf("integration for %s %s requires a function", i.Method, i.Path)
	}
	return nil
}

// TokenValidator declares a token-authorizer security scheme backed by a
// function declared in the same deployment.
type TokenValidator struct {
	// Name is the security scheme name that operations in the OpenAPI
	// body refer to.
	Name     string
	Function string
}

func (v TokenValidator) validate() error {
	if v.Name == "" {
		return fmt.Errorf("a token validator requires a scheme name")
	}
	if v.Function == "" {
		return fmt.Errorf("token validator %q requires a function", v.Name)
	}
	return nil
}

// ContentOrigin names a site bucket, declared in the same deployment, that
// the API serves static content from.
type ContentOrigin struct {
	Bucket string
}

// RestAPIConfig declares one REST API.
type RestAPIConfig struct {
	// Name is the logical name of the API within its deployment.
	Name string

	// Body is the API's OpenAPI document, assembled by merging the given
	// fragments in order. Each fragment is either inline YAML/JSON text
	// or a file reference, declared the same way function sources are.
	Body []sourceset.Source

	// Integrations bind path operations in the body to declared
	// functions.
	Integrations []Integration

	// TokenValidators declare authorizer security schemes backed by
	// declared functions.
	TokenValidators []TokenValidator

	// Content lists the site buckets the API serves static content from.
	Content []ContentOrigin

	// Firewall requests a web application firewall in front of the API's
	// stage.
	Firewall bool

	// AccessLogging enables per-request access logs for the API's stage.
	AccessLogging bool
}

// RestAPIResource is the shaped argument set for provisioning one REST API.
type RestAPIResource struct {
	Name      string `json:"name"`
	APIName   string `json:"api_name"`
	StageName string `json:"stage_name"`

	// Body is the final OpenAPI document in YAML form, with integration
	// and authorizer extension attributes already attached.
	Body string `json:"body"`

	// FunctionNames lists the provisioned names of every function the
	// gateway must be permitted to invoke, in order of first use.
	FunctionNames []string `json:"function_names"`

	ContentBuckets  []string `json:"content_buckets,omitempty"`
	Firewall        bool     `json:"firewall,omitempty"`
	AccessLogging   bool     `json:"access_logging,omitempty"`
	AccessLogFormat string   `json:"access_log_format,omitempty"`
}

func (r *RestAPIResource) resourceSigil() {}

// Kind returns "rest-api".
func (r *RestAPIResource) Kind() string { return "rest-api" }

// LogicalName returns the name the API was declared under.
func (r *RestAPIResource) LogicalName() string { return r.Name }

// AddRestAPI merges the API's OpenAPI body fragments, binds its integrations
// and token validators to declared functions, and declares the shaped REST
// API resource.
//
// Every fault in the declaration -- a missing or unreadable body fragment,
// an integration naming an operation absent from the body or a function
// absent from the deployment -- is reported as a
// [funcbundle.ConfigurationError].
func (d *Deployment) AddRestAPI(config RestAPIConfig) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if config.Name == "" {
		return &funcbundle.ConfigurationError{
			Err: fmt.Errorf("a REST API requires a name"),
		}
	}
	if _, exists := d.apis[config.Name]; exists {
		return &funcbundle.ConfigurationError{
			Unit: config.Name,
			Err:  fmt.Errorf("a REST API named %q was already declared", config.Name),
		}
	}
	configErr := func(err error) error {
		return &funcbundle.ConfigurationError{Unit: config.Name, Err: err}
	}

	doc, err := d.mergeAPIBody(config.Body)
	if err != nil {
		return configErr(err)
	}

	// The gateway needs invoke permission on each referenced function
	// exactly once, in order of first use.
	var functionNames []string
	seen := make(map[string]bool)
	resolve := func(logicalName string) (*FunctionResource, error) {
		function, ok := d.functions[logicalName]
		if !ok {
			return nil, fmt.Errorf("no function named %q was declared", logicalName)
		}
		if !seen[function.FunctionName] {
			seen[function.FunctionName] = true
			functionNames = append(functionNames, function.FunctionName)
		}
		return function, nil
	}

	for _, integration := range config.Integrations {
		if err := integration.validate(); err != nil {
			return configErr(err)
		}
		function, err := resolve(integration.Function)
		if err != nil {
			return configErr(fmt.Errorf("integration for %s %s: %w", integration.Method, integration.Path, err))
		}
		err = doc.AddFunctionIntegration(integration.Path, integration.Method, function.FunctionName, FunctionRef(integration.Function))
		if err != nil {
			return configErr(err)
		}
	}
	for _, validator := range config.TokenValidators {
		if err := validator.validate(); err != nil {
			return configErr(err)
		}
		function, err := resolve(validator.Function)
		if err != nil {
			return configErr(fmt.Errorf("token validator %q: %w", validator.Name, err))
		}
		err = doc.AddTokenAuthorizer(validator.Name, function.FunctionName, FunctionRef(validator.Function))
		if err != nil {
			return configErr(err)
		}
	}

	var contentBuckets []string
	for _, content := range config.Content {
		bucket, ok := d.buckets[content.Bucket]
		if !ok {
			return configErr(fmt.Errorf("content origin references undeclared bucket %q", content.Bucket))
		}
		contentBuckets = append(contentBuckets, bucket.BucketName)
	}

	body, err := doc.YAML()
	if err != nil {
		return fmt.Errorf("cannot serialize OpenAPI body for %q: %w", config.Name, err)
	}

	resource := &RestAPIResource{
		Name:           config.Name,
		APIName:        d.platform.ResourceName(config.Name) + "-rest-api",
		StageName:      config.Name,
		Body:           string(body),
		FunctionNames:  functionNames,
		ContentBuckets: contentBuckets,
		Firewall:       config.Firewall,
		AccessLogging:  config.AccessLogging,
	}
	if config.AccessLogging {
		resource.AccessLogFormat = accessLogFormat
	}
	d.apis[config.Name] = resource
	d.resources = append(d.resources, resource)

	d.logger.Debug("declared REST API",
		"name", config.Name,
		"api_name", resource.APIName,
		"functions", len(functionNames))
	return nil
}

func (d *Deployment) mergeAPIBody(fragments []sourceset.Source) (*openapidoc.Document, error) {
	doc := openapidoc.New()
	for _, fragment := range fragments {
		switch fragment := fragment.(type) {
		case sourceset.InlineSource:
			if err := doc.MergeYAML([]byte(fragment.Content())); err != nil {
				return nil, fmt.Errorf("body fragment %s: %w", fragment, err)
			}
		case sourceset.FileSource:
			part, err := openapidoc.LoadFile(fragment.LocalPath(d.platform.ProjectDir))
			if err != nil {
				return nil, fmt.Errorf("body fragment %s: %w", fragment, err)
			}
			doc.Merge(part)
		case sourceset.DirSource:
			return nil, fmt.Errorf("body fragment %s refers to a directory, not a document", fragment)
		default:
			// Should not get here: the above cases are exhaustive for
			// all source types.
			return nil, fmt.Errorf("unsupported body fragment type %T", fragment)
		}
	}
	return doc, nil
}
