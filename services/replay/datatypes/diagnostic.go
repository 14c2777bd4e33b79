// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strings"
)

// =============================================================================
// Severity
// =============================================================================

// Severity is the compiler-assigned importance of a diagnostic.
type Severity int

const (
	// SeverityHidden diagnostics are recorded but never shown.
	SeverityHidden Severity = iota

	// SeverityInfo is informational.
	SeverityInfo

	// SeverityWarning does not prevent a build.
	SeverityWarning

	// SeverityError prevents a build; no process is launched while one exists.
	SeverityError
)

var severityNames = []string{"Hidden", "Info", "Warning", "Error"}

// String returns the editor-facing severity name.
func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "Unknown"
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return SeverityHidden, fmt.Errorf("unknown severity %q", name)
}

// =============================================================================
// Diagnostic
// =============================================================================

// Diagnostic is one compiler message with a host-assigned tag.
//
// Description:
//
//	Line and Column are 1-based and are -1 for diagnostics that are not
//	located in a source file. Offset is the byte offset of the start of
//	the span within File and Length its byte length.
//
//	Tag is assigned by the diagnostic database and is zero on diagnostics
//	that come straight out of a Builder.
type Diagnostic struct {
	Tag      int64
	Severity Severity
	File     string
	Line     int
	Column   int
	Offset   int
	Length   int
	ID       string
	Message  string
}

// DiagnosticKey is the identity of a diagnostic for diffing purposes.
//
// Two diagnostics from different builds with the same key mean the same
// thing, so the tag plays no part in it.
type DiagnosticKey struct {
	Severity Severity
	File     string
	Offset   int
	Length   int
	Message  string
}

// Key returns the structural identity of the diagnostic.
func (d Diagnostic) Key() DiagnosticKey {
	return DiagnosticKey{
		Severity: d.Severity,
		File:     d.File,
		Offset:   d.Offset,
		Length:   d.Length,
		Message:  d.FullMessage(),
	}
}

// FullMessage returns "<id>: <message>", or just the message when there is no id.
func (d Diagnostic) FullMessage() string {
	if d.ID == "" {
		return d.Message
	}
	return d.ID + ": " + d.Message
}

// String renders the diagnostic as "file\tseverity\toffset\tlength\tid: message".
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s\t%s\t%d\t%d\t%s", d.File, d.Severity, d.Offset, d.Length, d.FullMessage())
}

// HasErrors reports whether any diagnostic has Error severity.
func HasErrors(diagnostics []Diagnostic) bool {
	for _, d := range diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Subtract returns the diagnostics in a whose key is not present in b.
func Subtract(a, b []Diagnostic) []Diagnostic {
	seen := make(map[DiagnosticKey]struct{}, len(b))
	for _, d := range b {
		seen[d.Key()] = struct{}{}
	}
	var out []Diagnostic
	for _, d := range a {
		if _, ok := seen[d.Key()]; !ok {
			out = append(out, d)
		}
	}
	return out
}
