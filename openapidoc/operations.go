// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openapidoc

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Operation returns the operation mapping for the given path and method.
// The method is compared case-insensitively, since OpenAPI documents
// spell methods in lowercase.
func (d *Document) Operation(path, method string) (map[string]any, error) {
	method = strings.ToLower(method)

	paths, ok := d.Part("paths")
	if !ok {
		return nil, fmt.Errorf("path %q not found in OpenAPI document", path)
	}
	pathsMap, ok := paths.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("path %q not found in OpenAPI document", path)
	}
	operations, ok := pathsMap[path].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("path %q not found in OpenAPI document", path)
	}
	operation, ok := operations[method].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("method %q not found for path %q in OpenAPI document", method, path)
	}
	return operation, nil
}

// AddOperation sets the operation mapping for the given path and method,
// creating the path entry as needed and replacing any previous operation.
func (d *Document) AddOperation(path, method string, operation map[string]any) error {
	pathPart, err := d.ensurePart("paths", path)
	if err != nil {
		return err
	}
	pathPart[strings.ToLower(method)] = operation
	return nil
}

// AddOperationAttribute sets one attribute on an existing operation.
func (d *Document) AddOperationAttribute(path, method, attribute string, value any) error {
	operation, err := d.Operation(path, method)
	if err != nil {
		return err
	}
	operation[attribute] = value
	return nil
}

// RemoveMatchingKeys removes every mapping key in the document that the
// given pattern matches, at any depth, including inside lists. The values
// under removed keys are discarded with them.
func (d *Document) RemoveMatchingKeys(pattern *regexp.Regexp) {
	d.root = removeMatchingKeys(pattern, d.root).(map[string]any)
}

func removeMatchingKeys(pattern *regexp.Regexp, data any) any {
	switch data := data.(type) {
	case map[string]any:
		ret := make(map[string]any, len(data))
		for key, value := range data {
			if pattern.MatchString(key) {
				continue
			}
			ret[key] = removeMatchingKeys(pattern, value)
		}
		return ret
	case []any:
		ret := make([]any, len(data))
		for i, item := range data {
			ret[i] = removeMatchingKeys(pattern, item)
		}
		return ret
	default:
		return data
	}
}

// FunctionNames returns every "x-function-name" attribute found on the
// document's operations and security schemes, in a consistent sorted-walk
// order. A name bound to several operations appears once per binding.
func (d *Document) FunctionNames() []string {
	var ret []string

	if paths, ok := d.Part("paths"); ok {
		if pathsMap, ok := paths.(map[string]any); ok {
			for _, path := range sortedKeys(pathsMap) {
				operations, ok := pathsMap[path].(map[string]any)
				if !ok {
					continue
				}
				for _, method := range sortedKeys(operations) {
					operation, ok := operations[method].(map[string]any)
					if !ok {
						continue
					}
					if name, ok := operation["x-function-name"].(string); ok && name != "" {
						ret = append(ret, name)
					}
				}
			}
		}
	}

	if schemes, ok := d.Part("components", "securitySchemes"); ok {
		if schemesMap, ok := schemes.(map[string]any); ok {
			for _, schemeName := range sortedKeys(schemesMap) {
				scheme, ok := schemesMap[schemeName].(map[string]any)
				if !ok {
					continue
				}
				if name, ok := scheme["x-function-name"].(string); ok && name != "" {
					ret = append(ret, name)
				}
			}
		}
	}

	return ret
}

func sortedKeys(m map[string]any) []string {
	ret := make([]string, 0, len(m))
	for key := range m {
		ret = append(ret, key)
	}
	sort.Strings(ret)
	return ret
}
