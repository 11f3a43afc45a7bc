// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openapidoc

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one OpenAPI document held as generic mapping data.
//
// A Document is not safe for concurrent use. The editing methods mutate
// the document in place and the accessor methods return interior mapping
// values rather than copies, so a caller that edits a returned value is
// editing the document.
type Document struct {
	root map[string]any
}

// New returns an empty document, ready to have fragments merged into it.
func New() *Document {
	return &Document{
		root: make(map[string]any),
	}
}

// Parse reads a document from YAML source text. JSON source is accepted
// too, since every JSON document is also a YAML document.
func Parse(src []byte) (*Document, error) {
	var root map[string]any
	err := yaml.Unmarshal(src, &root)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	if root == nil {
		root = make(map[string]any)
	}
	return &Document{root: root}, nil
}

// LoadFile reads a document from a ".yaml", ".yml", or ".json" file.
func LoadFile(path string) (*Document, error) {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".json"):
		// ok
	default:
		return nil, fmt.Errorf("unsupported file format for %q: use .json, .yaml, or .yml", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read OpenAPI document: %w", err)
	}
	doc, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document in %s: %w", path, err)
	}
	return doc, nil
}

// Merge deep-merges another document into the receiver, with the other
// document winning conflicts.
//
// Mappings merge recursively. Lists follow the fragment-stacking rules:
// an empty list in the other document replaces whatever the receiver had,
// while two non-empty lists concatenate with the receiver's items first,
// so that stacked fragments accumulate servers, tags, and security
// requirements rather than silently dropping them.
func (d *Document) Merge(other *Document) {
	d.root = deepMerge(other.root, d.root)
}

// MergeYAML parses the given YAML source text and merges it as [Merge]
// does.
func (d *Document) MergeYAML(src []byte) error {
	doc, err := Parse(src)
	if err != nil {
		return err
	}
	d.Merge(doc)
	return nil
}

// deepMerge merges source into destination and returns destination, with
// source winning conflicts.
func deepMerge(source, destination map[string]any) map[string]any {
	for key, value := range source {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := destination[key].(map[string]any); ok {
				destination[key] = deepMerge(srcMap, dstMap)
				continue
			}
		}
		if srcList, ok := value.([]any); ok && len(srcList) > 0 {
			if dstList, ok := destination[key].([]any); ok {
				destination[key] = append(dstList, srcList...)
				continue
			}
		}
		destination[key] = value
	}
	return destination
}

// Part returns the value at the given key path, or false if any step of
// the path is missing or is not a mapping.
func (d *Document) Part(keys ...string) (any, bool) {
	var current any = d.root
	for _, key := range keys {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = currentMap[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ensurePart returns the mapping at the given key path, creating empty
// mappings along the way as needed. It fails if an existing intermediate
// value is not a mapping.
func (d *Document) ensurePart(keys ...string) (map[string]any, error) {
	current := d.root
	for i, key := range keys {
		next, exists := current[key]
		if !exists {
			created := make(map[string]any)
			current[key] = created
			current = created
			continue
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot edit %q: %q is not a mapping", strings.Join(keys, "."), strings.Join(keys[:i+1], "."))
		}
		current = nextMap
	}
	return current, nil
}

// YAML returns the document serialized as YAML. Mapping keys are emitted
// in sorted order, so two equal documents always serialize to equal
// bytes.
func (d *Document) YAML() ([]byte, error) {
	buf, err := yaml.Marshal(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize OpenAPI document: %w", err)
	}
	return buf, nil
}
