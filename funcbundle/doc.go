// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package funcbundle deals with the construction of and later consumption of
// "function bundles": working directories that capture the resolved source
// files and dependency requirements of one or more serverless deployable
// units, together with a manifest describing them, which can optionally be
// bundled up into archives for handing to a provisioning engine.
//
// Assembly is a pure local transformation: declared sources are read from
// the local filesystem or embedded from inline content, requirement lists
// are normalized and checked for conflicts, and the result is checksummed
// so that identical inputs always produce an identical bundle. Nothing in
// this package talks to a network or a cloud provider.
//
// NOTE WELL: Everything in this package is currently experimental and subject
// to breaking changes even in patch releases. We will make stronger commitments
// to backward-compatibility once we have more experience using this
// functionality in real contexts.
package funcbundle
