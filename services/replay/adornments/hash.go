// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adornments

import (
	"strings"
	"unicode/utf16"
)

// StableHash returns the content hash the client advertises for a line.
//
// Description:
//
//	Two interleaved djb2 accumulators over the UTF-16 code units of s,
//	combined with a multiplier. Arithmetic wraps at 32 bits. The result
//	depends only on s, so two processes (or two databases) always agree.
//
// Inputs:
//
//	s - The adornment content.
//
// Outputs:
//
//	int32 - The hash.
func StableHash(s string) int32 {
	h1 := int32(5381<<16) + 5381
	h2 := h1
	units := utf16.Encode([]rune(s))
	for i := 0; i < len(units); i += 2 {
		h1 = ((h1 << 5) + h1) ^ int32(units[i])
		if i == len(units)-1 {
			break
		}
		h2 = ((h2 << 5) + h2) ^ int32(units[i+1])
	}
	return h1 + h2*1566083941
}

// =============================================================================
// Folding
// =============================================================================

const (
	// foldKeep is how many trailing characters survive truncation.
	foldKeep = 54

	ellipsis     = "... "
	returnPrefix = "return="
)

// Fold combines the content already shown for a line with the content of a
// further execution of the same line.
//
// Description:
//
//	The pieces are joined with a space. When the result is longer than 54
//	characters only the last 54 are kept, escaped CR/LF sequences are
//	stripped from them and "... " is prepended; an existing "... " prefix
//	is never doubled. A "return=" value replaces the previous content
//	instead of being appended. A quoted console write ending in an
//	escaped CRLF loses the CRLF.
//
// Inputs:
//
//	previous - Content currently stored for the line.
//	next - Content of the new execution.
//
// Outputs:
//
//	string - The folded content.
//
// Example:
//
//	Fold(Fold("a", "b"), "c") == "a b c"
func Fold(previous, next string) string {
	next = TrimConsoleNewline(next)
	if strings.HasPrefix(next, returnPrefix) {
		return next
	}
	return Truncate(previous + " " + next)
}

// Truncate applies the length limit of Fold to s.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= foldKeep {
		return s
	}
	tail := string(r[len(r)-foldKeep:])
	tail = strings.ReplaceAll(tail, `\r`, "")
	tail = strings.ReplaceAll(tail, `\n`, "")
	c := ellipsis + tail
	if strings.HasPrefix(c, ellipsis+ellipsis) {
		c = c[len(ellipsis):]
	}
	return c
}

// TrimConsoleNewline turns `"text\r\n"` into `"text"`.
func TrimConsoleNewline(s string) string {
	const crlf = `\r\n"`
	if len(s) >= len(crlf)+1 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, crlf) {
		return s[:len(s)-len(crlf)] + `"`
	}
	return s
}
