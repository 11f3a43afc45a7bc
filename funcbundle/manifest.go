// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"encoding/json"

	"github.com/hashicorp/go-foundry/requirements"
)

// Manifest describes one assembled deployable unit: its logical name, its
// handler identifier, the resolved source entries staged for it, its
// normalized requirements, and a checksum over the staged source tree.
//
// A Manifest is constructed once by [Assembler.Assemble] and is immutable
// afterwards; accessor methods return copies of any mutable internals. Two
// assemblies from identical declarations produce manifests whose JSON
// encodings are byte-for-byte identical.
type Manifest struct {
	name         string
	handler      string
	sources      []SourceEntry
	requirements requirements.List
	sourceHash   string
}

// SourceEntry records one resolved file in a unit's staged source tree.
type SourceEntry struct {
	// Target is the slash-separated filename of the entry within the unit.
	Target string `json:"target"`

	// Size is the size of the resolved content in bytes.
	Size int64 `json:"size"`

	// SHA256 is the lowercase hex SHA-256 digest of the resolved content.
	SHA256 string `json:"sha256"`
}

// Name returns the logical name of the deployable unit.
func (m *Manifest) Name() string {
	return m.name
}

// Handler returns the handler identifier in "module.function" form.
func (m *Manifest) Handler() string {
	return m.handler
}

// Sources returns the resolved source entries, sorted by target filename.
func (m *Manifest) Sources() []SourceEntry {
	ret := make([]SourceEntry, len(m.sources))
	copy(ret, m.sources)
	return ret
}

// Requirements returns the unit's requirements in normalized order.
func (m *Manifest) Requirements() requirements.List {
	ret := make(requirements.List, len(m.requirements))
	copy(ret, m.requirements)
	return ret
}

// SourceHash returns a checksum of the unit's staged source tree, in the
// same "h1:" scheme that [Bundle.ChecksumV1] uses, suitable for change
// detection by a provisioning engine.
func (m *Manifest) SourceHash() string {
	return m.sourceHash
}

// MarshalJSON implements [json.Marshaler] using the same encoding that the
// bundle manifest file uses for a unit, so that equality of manifests can be
// checked bytewise.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.manifestUnit())
}

// manifestUnit freezes the manifest into its wire form.
func (m *Manifest) manifestUnit() manifestUnit {
	unit := manifestUnit{
		Name:       m.name,
		Handler:    m.handler,
		LocalDir:   m.name,
		SourceHash: m.sourceHash,
	}
	for _, entry := range m.sources {
		unit.Sources = append(unit.Sources, manifestSourceEntry{
			Target: entry.Target,
			Size:   entry.Size,
			SHA256: entry.SHA256,
		})
	}
	for _, req := range m.requirements {
		unit.Requirements = append(unit.Requirements, req.String())
	}
	return unit
}

// manifestFromUnit is the inverse of manifestUnit, used when reopening a
// bundle directory.
func manifestFromUnit(unit manifestUnit) (*Manifest, error) {
	ret := &Manifest{
		name:       unit.Name,
		handler:    unit.Handler,
		sourceHash: unit.SourceHash,
	}
	for _, entry := range unit.Sources {
		ret.sources = append(ret.sources, SourceEntry{
			Target: entry.Target,
			Size:   entry.Size,
			SHA256: entry.SHA256,
		})
	}
	reqs, err := requirements.ParseList(unit.Requirements)
	if err != nil {
		return nil, err
	}
	ret.requirements = reqs
	return ret, nil
}
