// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"fmt"
)

// ConfigurationError is the error type for every malformed or inconsistent
// declaration an [Assembler] can reject: a handler without a matching source
// file, a source path that does not exist or cannot be read, conflicting
// requirement constraints, colliding target filenames, and similar input
// faults.
//
// The distinction matters to callers because a ConfigurationError is
// deterministic: retrying the same declaration will fail the same way until
// the declaration changes. Errors of other types describe environmental
// problems (a full disk, a permissions change on the target directory) that
// can succeed on retry without any change to the declaration.
type ConfigurationError struct {
	// Unit is the name of the deployable unit whose declaration was faulty,
	// or the empty string when the fault is not tied to one unit.
	Unit string

	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("invalid configuration for %q: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
