// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openapidoc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddFunctionIntegration(t *testing.T) {
	const invokeARN = "arn:aws:apigateway:eu-west-1:lambda:path/2015-03-31/functions/arn:aws:lambda:eu-west-1:000000000000:function:orders/invocations"

	doc, err := Parse([]byte("paths:\n  /orders:\n    get:\n      summary: list\n"))
	if err != nil {
		t.Fatalf("failed to parse: %s", err)
	}

	if err := doc.AddFunctionIntegration("/orders", "GET", "orders", invokeARN); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	op, err := doc.Operation("/orders", "get")
	if err != nil {
		t.Fatalf("failed to find operation: %s", err)
	}
	want := map[string]any{
		"summary":         "list",
		"x-function-name": "orders",
		"x-amazon-apigateway-integration": map[string]any{
			"type":       "aws_proxy",
			"uri":        invokeARN,
			"httpMethod": "POST",
		},
	}
	if diff := cmp.Diff(want, op); diff != "" {
		t.Errorf("wrong operation\n%s", diff)
	}

	err = doc.AddFunctionIntegration("/orders", "post", "orders", invokeARN)
	if err == nil {
		t.Fatal("edit succeeded for missing operation; want error")
	}
	if got, want := err.Error(), `method "post" not found for path "/orders" in OpenAPI document`; got != want {
		t.Errorf("wrong error message\ngot:  %s\nwant: %s", got, want)
	}
}

func TestAddTokenAuthorizer(t *testing.T) {
	const invokeARN = "arn:aws:apigateway:eu-west-1:lambda:path/2015-03-31/functions/arn:aws:lambda:eu-west-1:000000000000:function:authorizer/invocations"

	doc := New()
	if err := doc.AddTokenAuthorizer("auth", "authorizer", invokeARN); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	scheme, ok := doc.Part("components", "securitySchemes", "auth")
	if !ok {
		t.Fatal("document has no components.securitySchemes.auth")
	}
	want := map[string]any{
		"type":                         "apiKey",
		"name":                         "Authorization",
		"in":                           "header",
		"x-function-name":              "authorizer",
		"x-amazon-apigateway-authtype": "custom",
		"x-amazon-apigateway-authorizer": map[string]any{
			"type":                         "token",
			"authorizerUri":                invokeARN,
			"identityValidationExpression": "^Bearer [-0-9a-zA-Z._]*$",
			"identitySource":               "method.request.header.Authorization",
			"authorizerResultTtlInSeconds": 60,
		},
	}
	if diff := cmp.Diff(want, scheme); diff != "" {
		t.Errorf("wrong security scheme\n%s", diff)
	}

	got := doc.FunctionNames()
	if diff := cmp.Diff([]string{"authorizer"}, got); diff != "" {
		t.Errorf("wrong function names\n%s", diff)
	}
}

func TestAddTokenAuthorizerConflict(t *testing.T) {
	doc, err := Parse([]byte("components: nope\n"))
	if err != nil {
		t.Fatalf("failed to parse: %s", err)
	}

	err = doc.AddTokenAuthorizer("auth", "authorizer", "arn:aws:execute-api:::")
	if err == nil {
		t.Fatal("edit succeeded despite conflicting section; want error")
	}
	if got, want := err.Error(), `cannot edit "components.securitySchemes": "components" is not a mapping`; got != want {
		t.Errorf("wrong error message\ngot:  %s\nwant: %s", got, want)
	}
}
