// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sourceset

import (
	"fmt"
)

// InlineSource carries literal content that is embedded into a bundle
// verbatim, byte for byte.
//
// The empty string is valid inline content and produces an empty file at
// the target, which is the usual way to declare a Python package marker
// such as "__init__.py".
type InlineSource struct {
	content string
}

var _ Source = InlineSource{}

// Inline returns an InlineSource carrying the given content.
func Inline(content string) InlineSource {
	return InlineSource{content: content}
}

// sourceSigil implements Source
func (s InlineSource) sourceSigil() {}

// String implements Source.
//
// The result is a short description rather than the content itself, since
// inline content is often a whole source file and unsuitable for log lines
// and error messages.
func (s InlineSource) String() string {
	return fmt.Sprintf("<inline source: %d bytes>", len(s.content))
}

// ReadsFromDisk implements Source
func (s InlineSource) ReadsFromDisk() bool {
	return false
}

// Content returns the literal content to embed.
func (s InlineSource) Content() string {
	return s.content
}
