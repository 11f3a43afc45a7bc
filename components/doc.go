// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package components declares the deployable pieces of a project -- functions,
// REST APIs, site buckets, and CDNs -- as typed configurations, validates
// them, and shapes them into the resource arguments an external provisioning
// engine consumes.
//
// Nothing in this package talks to a cloud provider. Components assemble and
// validate locally, and the resulting [Plan] is handed to an [Engine]
// implementation that owns credentials, provider sessions, and resource
// lifecycles.
package components
