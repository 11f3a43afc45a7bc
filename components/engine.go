// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"context"
)

// Engine is the external infrastructure-as-code collaborator that turns a
// [Plan] into live resources. Implementations own everything this package
// deliberately stays away from: provider credentials and sessions, state
// tracking, rollout ordering, and retries.
//
// Resource arguments refer to sibling resources in the same plan
// symbolically. An integration URI of the form "function:NAME" stands for
// the invoke ARN of the function resource declared under that logical name,
// and an origin domain of the form "bucket:NAME" stands for the regional
// domain name of the bucket resource declared under that logical name. The
// engine resolves such references during provisioning, once the concrete
// identifiers exist.
type Engine interface {
	Apply(ctx context.Context, plan *Plan) error
}

// FunctionRef returns the symbolic reference an [Engine] resolves to the
// invoke ARN of the function declared under the given logical name.
func FunctionRef(name string) string {
	return "function:" + name
}

// BucketRef returns the symbolic reference an [Engine] resolves to the
// regional domain name of the bucket declared under the given logical name.
func BucketRef(name string) string {
	return "bucket:" + name
}
