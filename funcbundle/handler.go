// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"fmt"
	"strings"
)

// handlerSourceTarget interprets a handler identifier in "module.function"
// form and returns the target filename that must provide the module.
//
// The function name is everything after the last dot, so a dotted module
// path like "pkg.mod.handler" names the function "handler" in the module
// "pkg.mod", which a bundle provides as the file "pkg/mod.py".
func handlerSourceTarget(handler string) (string, error) {
	if strings.TrimSpace(handler) != handler {
		return "", fmt.Errorf("handler %q must not have leading or trailing spaces", handler)
	}

	idx := strings.LastIndex(handler, ".")
	if idx < 0 {
		return "", fmt.Errorf("handler %q must be in \"module.function\" form", handler)
	}
	module, function := handler[:idx], handler[idx+1:]
	if module == "" || function == "" {
		return "", fmt.Errorf("handler %q must be in \"module.function\" form", handler)
	}

	segments := strings.Split(module, ".")
	for _, segment := range segments {
		if segment == "" {
			return "", fmt.Errorf("handler %q has an empty module path segment", handler)
		}
		if strings.ContainsAny(segment, "/\\") {
			return "", fmt.Errorf("handler %q must name a module with dots, not path separators", handler)
		}
	}

	return strings.Join(segments, "/") + ".py", nil
}
