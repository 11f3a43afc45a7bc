// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openapidoc

// This file deals with the API gateway extension attributes that bind an
// abstract OpenAPI document to concrete deployed functions. The attribute
// names and constants follow the x-amazon-apigateway extension vocabulary.

const (
	// tokenValidationExpression constrains the Authorization header shape
	// accepted before a token authorizer function is even invoked.
	tokenValidationExpression = "^Bearer [-0-9a-zA-Z._]*$"

	// tokenIdentitySource names the request property carrying the token.
	tokenIdentitySource = "method.request.header.Authorization"

	// tokenResultTTLSeconds is how long the gateway may cache one token's
	// authorization result.
	tokenResultTTLSeconds = 60
)

// AddFunctionIntegration binds an existing operation to a deployed
// function: it records the function's name under "x-function-name" and
// attaches an "aws_proxy" integration pointing at the function's invoke
// ARN. Integrations always use POST for the backend call regardless of
// the operation's own method.
func (d *Document) AddFunctionIntegration(path, method, functionName, invokeARN string) error {
	err := d.AddOperationAttribute(path, method, "x-function-name", functionName)
	if err != nil {
		return err
	}
	return d.AddOperationAttribute(path, method, "x-amazon-apigateway-integration", map[string]any{
		"type":       "aws_proxy",
		"uri":        invokeARN,
		"httpMethod": "POST",
	})
}

// AddTokenAuthorizer declares a token authorizer security scheme backed
// by the given function, creating the components.securitySchemes section
// as needed and replacing any previous scheme of the same name.
func (d *Document) AddTokenAuthorizer(name, functionName, invokeARN string) error {
	schemes, err := d.ensurePart("components", "securitySchemes")
	if err != nil {
		return err
	}
	authorizer := map[string]any{
		"type":                         "token",
		"authorizerUri":                invokeARN,
		"identityValidationExpression": tokenValidationExpression,
		"identitySource":               tokenIdentitySource,
		"authorizerResultTtlInSeconds": tokenResultTTLSeconds,
	}
	schemes[name] = map[string]any{
		"type":                           "apiKey",
		"name":                           "Authorization",
		"in":                             "header",
		"x-function-name":                functionName,
		"x-amazon-apigateway-authtype":   "custom",
		"x-amazon-apigateway-authorizer": authorizer,
	}
	return nil
}
