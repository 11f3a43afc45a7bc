// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package openapidoc edits OpenAPI documents as plain data: loading them
// from YAML or JSON, deep-merging fragments into one document, injecting
// operations and gateway extension attributes, and serializing the result
// with a stable key order.
//
// The package treats a document as a generic mapping rather than a typed
// model of the OpenAPI schema, because its job is to splice
// deployment-time attributes into documents written elsewhere, not to
// validate them.
package openapidoc
