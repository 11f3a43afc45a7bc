// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

// This file contains some internal-only types used to help with marshalling
// and unmarshalling our manifest file format. The manifest format is not
// itself a public interface, so these should stay unexported and any caller
// that needs to interact with previously-generated bundle manifests should
// do so via the Bundle type.

type manifestRoot struct {
	// FormatVersion should always be 1 for now, because there is only
	// one version of this format.
	FormatVersion uint64 `json:"foundry_function_bundle"`

	Units []manifestUnit `json:"units,omitempty"`
}

type manifestUnit struct {
	// Name is the logical name of the deployable unit, unique within the
	// bundle.
	Name string `json:"name"`

	// Handler is the unit's handler identifier in "module.function" form.
	Handler string `json:"handler"`

	// LocalDir is the name of the subdirectory of the bundle containing the
	// staged source tree for this unit.
	LocalDir string `json:"local"`

	// SourceHash is the "h1:" checksum of the staged source tree.
	SourceHash string `json:"source_hash"`

	Sources      []manifestSourceEntry `json:"sources,omitempty"`
	Requirements []string              `json:"requirements,omitempty"`
}

type manifestSourceEntry struct {
	Target string `json:"target"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}
