// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gobuild

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// CompilerID is the diagnostic id of every compiler message.
const CompilerID = "compiler"

// file.go:line:col: message, or file.go:line: message.
var positionRE = regexp.MustCompile(`^(.+?\.go):(\d+)(?::(\d+))?: (.*)$`)

// ParseOutput turns go build output into diagnostics.
//
// Description:
//
//	Recognizes "file:line:col: message" lines; indented lines continue the
//	previous message. "# package" headers and summary lines are skipped.
//	File paths are made relative to the document root. Offset and Length
//	are computed from the document text, Length covering the identifier
//	at the reported position when there is one.
//
// Inputs:
//
//	doc - Snapshot that was built. May be nil.
//	output - Combined stdout and stderr of the go command.
//
// Outputs:
//
//	[]datatypes.Diagnostic - In output order, all with Error severity.
func ParseOutput(doc *workspace.Document, output string) []datatypes.Diagnostic {
	var out []datatypes.Diagnostic
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if (line[0] == '\t' || line[0] == ' ') && len(out) > 0 {
			last := &out[len(out)-1]
			last.Message += "\n" + strings.TrimSpace(line)
			continue
		}
		m := positionRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col := 1
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		d := datatypes.Diagnostic{
			Severity: datatypes.SeverityError,
			File:     normalizePath(doc, m[1]),
			Line:     lineNo,
			Column:   col,
			ID:       CompilerID,
			Message:  m[4],
		}
		if doc != nil {
			if text, ok := doc.Text(d.File); ok {
				d.Offset, d.Length = span(text, lineNo, col)
			}
		}
		out = append(out, d)
	}
	return out
}

func normalizePath(doc *workspace.Document, path string) string {
	path = strings.TrimPrefix(path, "./")
	if doc != nil && filepath.IsAbs(path) {
		if rel, ok := doc.Rel(path); ok {
			return rel
		}
	}
	return filepath.ToSlash(path)
}

// span returns the byte offset of the 1-based (line, col) position and the
// length of the identifier starting there.
func span(text string, line, col int) (offset, length int) {
	offset = 0
	for l := 1; l < line; l++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return len(text), 0
		}
		offset += nl + 1
	}
	offset += col - 1
	if offset > len(text) {
		return len(text), 0
	}
	for i := offset; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		length += size
		i += size
	}
	return offset, length
}
