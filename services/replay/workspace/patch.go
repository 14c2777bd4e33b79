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

	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// ApplyPatch applies a unified diff to the document.
//
// # Description
//
// Every file diff is applied in order. Context and removed lines must match
// the current text exactly. Each hunk produces one LineEdit covering the
// span from its first to its last changed line, in the coordinates left by
// the previous edits to the same file. Created files produce an insertion
// at line 0 and deleted files a removal of every line.
//
// # Inputs
//
//   - patch: Unified diff text, as produced by git diff or diff -u.
//
// # Outputs
//
//   - *Document: The patched snapshot.
//   - []LineEdit: Edits to replay into the adornment database, in order.
//   - error: Parse failure, ErrEmptyPatch, ErrFileNotFound or ErrPatchMismatch.
func (d *Document) ApplyPatch(patch string) (*Document, []LineEdit, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, nil, fmt.Errorf("parse patch: %w", err)
	}
	if len(fileDiffs) == 0 {
		return nil, nil, ErrEmptyPatch
	}

	next := d
	var edits []LineEdit
	for _, fd := range fileDiffs {
		var fileEdits []LineEdit
		next, fileEdits, err = next.applyFileDiff(fd)
		if err != nil {
			return nil, nil, err
		}
		edits = append(edits, fileEdits...)
	}
	return next, edits, nil
}

func (d *Document) applyFileDiff(fd *diff.FileDiff) (*Document, []LineEdit, error) {
	origName := stripPrefix(fd.OrigName)
	newName := stripPrefix(fd.NewName)

	switch {
	case fd.NewName == devNull:
		text, ok := d.files[origName]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, origName)
		}
		return d.Without(origName), []LineEdit{{File: origName, Line: 0, OldCount: CountLines(text)}}, nil

	case fd.OrigName == devNull:
		var lines []string
		for _, h := range fd.Hunks {
			for _, l := range hunkLines(h) {
				if strings.HasPrefix(l, "+") {
					lines = append(lines, l[1:])
				}
			}
		}
		text := ""
		if len(lines) > 0 {
			text = strings.Join(lines, "\n") + "\n"
		}
		return d.WithText(newName, text), []LineEdit{{File: newName, Line: 0, NewCount: len(lines)}}, nil
	}

	text, ok := d.files[origName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, origName)
	}
	hadNewline := text == "" || strings.HasSuffix(text, "\n")
	orig := splitLines(text)
	out := make([]string, 0, len(orig))
	var edits []LineEdit

	pos := 0
	for _, h := range fd.Hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			// A pure insertion names the line after which it goes.
			start = int(h.OrigStartLine)
		}
		if start < pos || start > len(orig) {
			return nil, nil, fmt.Errorf("%w: %s hunk at line %d", ErrPatchMismatch, origName, h.OrigStartLine)
		}
		out = append(out, orig[pos:start]...)
		pos = start

		changed := false
		oldSeen, newSeen := 0, 0
		var oldAtFirst, newAtFirst, oldAtLast, newAtLast int
		for _, l := range hunkLines(h) {
			if l == "" {
				l = " "
			}
			switch l[0] {
			case ' ':
				if pos >= len(orig) || orig[pos] != l[1:] {
					return nil, nil, fmt.Errorf("%w: %s context at line %d", ErrPatchMismatch, origName, pos+1)
				}
				out = append(out, orig[pos])
				pos++
				oldSeen++
				newSeen++
				continue
			case '-':
				if pos >= len(orig) || orig[pos] != l[1:] {
					return nil, nil, fmt.Errorf("%w: %s removed line %d", ErrPatchMismatch, origName, pos+1)
				}
				pos++
				if !changed {
					changed, oldAtFirst, newAtFirst = true, oldSeen, newSeen
				}
				oldSeen++
			case '+':
				out = append(out, l[1:])
				if !changed {
					changed, oldAtFirst, newAtFirst = true, oldSeen, newSeen
				}
				newSeen++
			case '\\':
				continue
			default:
				return nil, nil, fmt.Errorf("%w: %s unexpected hunk line %q", ErrPatchMismatch, origName, l)
			}
			oldAtLast, newAtLast = oldSeen, newSeen
		}
		if !changed {
			continue
		}
		// Edits are reported in the coordinates of the text produced so far.
		newStart := int(h.NewStartLine) - 1
		if h.NewLines == 0 {
			newStart = int(h.NewStartLine)
		}
		edits = append(edits, LineEdit{
			File:     origName,
			Line:     newStart + newAtFirst,
			OldCount: oldAtLast - oldAtFirst,
			NewCount: newAtLast - newAtFirst,
		})
	}
	out = append(out, orig[pos:]...)

	result := strings.Join(out, "\n")
	if len(out) > 0 && hadNewline {
		result += "\n"
	}
	next := d.WithText(origName, result)
	if newName != origName && newName != "" {
		next = next.Without(origName).WithText(newName, result)
	}
	return next, edits, nil
}

func hunkLines(h *diff.Hunk) []string {
	body := strings.TrimSuffix(string(h.Body), "\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

func stripPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
