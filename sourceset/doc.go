// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sourceset deals with the declared source content of a deployable
// unit: the mapping from target filenames inside a function bundle to the
// content that should appear at each target, given either inline, as a
// project-relative file, or as a whole directory to merge in.
//
// The sibling package "funcbundle" resolves a [Set] into concrete file
// content when it assembles a bundle.
//
// NOTE WELL: Everything in this package is currently experimental and subject
// to breaking changes even in patch releases. We will make stronger commitments
// to backward-compatibility once we have more experience using this
// functionality in real contexts.
package sourceset
