// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package requirements deals with the third-party package dependencies of a
// deployable unit, declared as pip-style requirement strings such as
// "requests==2.27.1" or "boto3>=1.26,<2".
//
// Requirement strings are parsed into a canonical form so that two
// declarations that differ only in spelling (letter case, separator runs,
// clause order, whitespace) are recognized as the same requirement, and two
// declarations for the same package with genuinely different constraints can
// be rejected before they produce an ambiguous install.
package requirements
