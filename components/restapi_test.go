// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/go-foundry/funcbundle"
	"github.com/hashicorp/go-foundry/openapidoc"
	"github.com/hashicorp/go-foundry/sourceset"
)

// apiDeployment prepares a deployment with two functions for API tests to
// bind against.
func apiDeployment(t *testing.T) *Deployment {
	t.Helper()
	ctx := context.Background()
	d, err := NewDeployment(testPlatform(t))
	require.NoError(t, err)
	for _, name := range []string{"orders", "auth"} {
		err := d.AddFunction(ctx, FunctionConfig{
			Name: name,
			Sources: inlineSources(t, map[string]string{
				"app.py": "def handler(event, context):\n    return {}\n",
			}),
		})
		require.NoError(t, err)
	}
	return d
}

func TestAddRestAPI(t *testing.T) {
	d := apiDeployment(t)

	// The body arrives in two fragments: a file with the paths and an
	// inline overlay contributing the security requirement.
	specPath := filepath.Join(d.Platform().ProjectDir, "openapi.yaml")
	spec := "openapi: 3.0.3\npaths:\n  /orders:\n    get:\n      summary: list\n    post:\n      summary: create\n"
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0644))

	err := d.AddRestAPI(RestAPIConfig{
		Name: "api",
		Body: []sourceset.Source{
			sourceset.MustParseSource("./openapi.yaml"),
			sourceset.Inline("security:\n  - auth: []\n"),
		},
		Integrations: []Integration{
			{Path: "/orders", Method: "get", Function: "orders"},
			{Path: "/orders", Method: "post", Function: "orders"},
		},
		TokenValidators: []TokenValidator{
			{Name: "auth", Function: "auth"},
		},
		AccessLogging: true,
	})
	require.NoError(t, err)

	api := d.apis["api"]
	require.NotNil(t, api)
	assert.Equal(t, "shop-dev-api-rest-api", api.APIName)
	assert.Equal(t, "api", api.StageName)
	assert.Equal(t, []string{"shop-dev-orders", "shop-dev-auth"}, api.FunctionNames)
	assert.True(t, api.AccessLogging)
	assert.Contains(t, api.AccessLogFormat, "$context.requestId")

	doc, err := openapidoc.Parse([]byte(api.Body))
	require.NoError(t, err)

	op, err := doc.Operation("/orders", "get")
	require.NoError(t, err)
	assert.Equal(t, "shop-dev-orders", op["x-function-name"])
	integration, ok := op["x-amazon-apigateway-integration"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function:orders", integration["uri"])
	assert.Equal(t, "aws_proxy", integration["type"])

	scheme, ok := doc.Part("components", "securitySchemes", "auth")
	require.True(t, ok)
	assert.Equal(t, "shop-dev-auth", scheme.(map[string]any)["x-function-name"])
	authorizer, ok := scheme.(map[string]any)["x-amazon-apigateway-authorizer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function:auth", authorizer["authorizerUri"])
}

func TestAddRestAPIContent(t *testing.T) {
	d := apiDeployment(t)
	require.NoError(t, d.AddSiteBucket(SiteBucketConfig{Name: "assets"}))

	err := d.AddRestAPI(RestAPIConfig{
		Name:    "api",
		Body:    []sourceset.Source{sourceset.Inline("openapi: 3.0.3\n")},
		Content: []ContentOrigin{{Bucket: "assets"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop-dev-assets-bucket"}, d.apis["api"].ContentBuckets)

	err = d.AddRestAPI(RestAPIConfig{
		Name:    "api2",
		Body:    []sourceset.Source{sourceset.Inline("openapi: 3.0.3\n")},
		Content: []ContentOrigin{{Bucket: "nope"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `content origin references undeclared bucket "nope"`)
}

func TestAddRestAPIErrors(t *testing.T) {
	body := []sourceset.Source{sourceset.Inline(
		"openapi: 3.0.3\npaths:\n  /orders:\n    get:\n      summary: list\n",
	)}

	tests := []struct {
		name      string
		config    RestAPIConfig
		errSubstr string
	}{
		{
			name:      "no name",
			config:    RestAPIConfig{Body: body},
			errSubstr: "a REST API requires a name",
		},
		{
			name: "undeclared function",
			config: RestAPIConfig{
				Name:         "api",
				Body:         body,
				Integrations: []Integration{{Path: "/orders", Method: "get", Function: "ghost"}},
			},
			errSubstr: `no function named "ghost" was declared`,
		},
		{
			name: "operation not in body",
			config: RestAPIConfig{
				Name:         "api",
				Body:         body,
				Integrations: []Integration{{Path: "/orders", Method: "delete", Function: "orders"}},
			},
			errSubstr: `method "delete" not found for path "/orders"`,
		},
		{
			name: "path not in body",
			config: RestAPIConfig{
				Name:         "api",
				Body:         body,
				Integrations: []Integration{{Path: "/nope", Method: "get", Function: "orders"}},
			},
			errSubstr: `path "/nope" not found`,
		},
		{
			name: "incomplete integration",
			config: RestAPIConfig{
				Name:         "api",
				Body:         body,
				Integrations: []Integration{{Function: "orders"}},
			},
			errSubstr: "an integration requires both a path and a method",
		},
		{
			name: "validator without scheme name",
			config: RestAPIConfig{
				Name:            "api",
				Body:            body,
				TokenValidators: []TokenValidator{{Function: "auth"}},
			},
			errSubstr: "a token validator requires a scheme name",
		},
		{
			name: "missing body fragment",
			config: RestAPIConfig{
				Name: "api",
				Body: []sourceset.Source{sourceset.MustParseSource("./missing.yaml")},
			},
			errSubstr: "cannot read OpenAPI document",
		},
		{
			name: "directory body fragment",
			config: RestAPIConfig{
				Name: "api",
				Body: []sourceset.Source{sourceset.MustParseSource("./specs/")},
			},
			errSubstr: "refers to a directory, not a document",
		},
		{
			name: "invalid inline fragment",
			config: RestAPIConfig{
				Name: "api",
				Body: []sourceset.Source{sourceset.Inline("just a scalar")},
			},
			errSubstr: "invalid OpenAPI document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := apiDeployment(t)
			err := d.AddRestAPI(tt.config)
			require.Error(t, err)
			var cfgErr *funcbundle.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestAddRestAPIDuplicate(t *testing.T) {
	d := apiDeployment(t)
	config := RestAPIConfig{
		Name: "api",
		Body: []sourceset.Source{sourceset.Inline("openapi: 3.0.3\n")},
	}
	require.NoError(t, d.AddRestAPI(config))

	err := d.AddRestAPI(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `a REST API named "api" was already declared`)
}
