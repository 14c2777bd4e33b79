// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"fmt"
	"strings"
)

// LineEdit describes which lines of a file an edit replaced.
//
// OldCount lines starting at Line (0-based) were replaced by NewCount
// lines. Edits in a slice apply in order; each one's Line is expressed in
// the coordinates left by the edits before it.
type LineEdit struct {
	File     string
	Line     int
	OldCount int
	NewCount int
}

// Delta is the change in the file's line count.
func (e LineEdit) Delta() int { return e.NewCount - e.OldCount }

func (e LineEdit) String() string {
	return fmt.Sprintf("%s(%d): -%d +%d", e.File, e.Line, e.OldCount, e.NewCount)
}

// ApplyChange replaces oldLength characters of file, starting at column
// (1-based) of line (0-based), with newText.
//
// # Description
//
// This is the editor's CHANGE operation. Characters are counted in runes.
// The returned edit covers every line touched by the replaced span.
//
// # Outputs
//
//   - *Document: The new snapshot.
//   - LineEdit: The lines the change replaced.
//   - error: ErrFileNotFound or ErrOutOfRange.
func (d *Document) ApplyChange(file string, line, column, oldLength int, newText string) (*Document, LineEdit, error) {
	text, ok := d.files[file]
	if !ok {
		return nil, LineEdit{}, fmt.Errorf("%w: %s", ErrFileNotFound, file)
	}
	runes := []rune(text)
	start, err := runeOffset(runes, line, column)
	if err != nil {
		return nil, LineEdit{}, fmt.Errorf("%s: %w", file, err)
	}
	if oldLength < 0 || start+oldLength > len(runes) {
		return nil, LineEdit{}, fmt.Errorf("%w: %s length %d", ErrOutOfRange, file, oldLength)
	}
	removed := string(runes[start : start+oldLength])
	updated := string(runes[:start]) + newText + string(runes[start+oldLength:])

	edit := LineEdit{
		File:     file,
		Line:     line,
		OldCount: strings.Count(removed, "\n") + 1,
		NewCount: strings.Count(newText, "\n") + 1,
	}
	return d.WithText(file, updated), edit, nil
}

func runeOffset(runes []rune, line, column int) (int, error) {
	if line < 0 || column < 1 {
		return 0, fmt.Errorf("%w: line %d column %d", ErrOutOfRange, line, column)
	}
	pos := 0
	for l := 0; l < line; l++ {
		for pos < len(runes) && runes[pos] != '\n' {
			pos++
		}
		if pos == len(runes) {
			return 0, fmt.Errorf("%w: line %d", ErrOutOfRange, line)
		}
		pos++
	}
	pos += column - 1
	if pos > len(runes) {
		return 0, fmt.Errorf("%w: line %d column %d", ErrOutOfRange, line, column)
	}
	return pos, nil
}

// LineDiff returns the smallest single edit that turns before into after:
// the lines between their common prefix and common suffix.
//
// The boolean is false when the texts have identical lines.
func LineDiff(file, before, after string) (LineEdit, bool) {
	a := splitLines(before)
	b := splitLines(after)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	edit := LineEdit{
		File:     file,
		Line:     prefix,
		OldCount: len(a) - prefix - suffix,
		NewCount: len(b) - prefix - suffix,
	}
	if edit.OldCount == 0 && edit.NewCount == 0 {
		return LineEdit{}, false
	}
	return edit, true
}

// CountLines returns the number of lines in text. An empty text has none;
// a trailing newline does not start a new line.
func CountLines(text string) int {
	return len(splitLines(text))
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
