// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the value types shared by the replay host, its
// protocol codec, the adornment database and the editor bridge.
package datatypes

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Adornment is the value a source line produced during one execution.
//
// Line is 0-based. ContentHash is the client's StableHash of Content and is
// compared instead of the content itself. Tag is assigned by the host and
// stays fixed for the adornment's lifetime.
type Adornment struct {
	File        string
	Line        int
	Content     string
	ContentHash int32
	Tag         int64
}

// WithLine returns a copy of the adornment moved to line.
func (a Adornment) WithLine(line int) Adornment {
	a.Line = line
	return a
}

// String is a compact debug form: "file(line):content  [#tag]".
func (a Adornment) String() string {
	return fmt.Sprintf("%s(%d):%s  [#%d]", filepath.Base(a.File), a.Line, a.Content, a.Tag)
}

// =============================================================================
// Watch window
// =============================================================================

// AllFiles is the wildcard file of a watch window.
const AllFiles = "*"

// ErrInvalidWindow is returned by WatchWindow.Validate.
var ErrInvalidWindow = errors.New("invalid watch window")

// WatchWindow is the file and line range the editor currently shows.
//
// Line == -1 together with Count == -1 means every line. File may be
// AllFiles to cover every file.
type WatchWindow struct {
	File  string
	Line  int
	Count int
}

// WatchAll returns the window covering every line of every file.
func WatchAll() WatchWindow {
	return WatchWindow{File: AllFiles, Line: -1, Count: -1}
}

// AllLines reports whether the window covers every line.
func (w WatchWindow) AllLines() bool {
	return w.Line == -1 && w.Count == -1
}

// CoversFile reports whether file is inside the window.
func (w WatchWindow) CoversFile(file string) bool {
	return w.File == AllFiles || w.File == file
}

// Contains reports whether (file, line) is inside the window.
func (w WatchWindow) Contains(file string, line int) bool {
	if !w.CoversFile(file) {
		return false
	}
	if w.AllLines() {
		return true
	}
	return w.Line <= line && line-w.Line < w.Count
}

// Validate checks the window's invariants.
func (w WatchWindow) Validate() error {
	if w.File == "" {
		return fmt.Errorf("%w: empty file", ErrInvalidWindow)
	}
	if w.AllLines() {
		return nil
	}
	if w.Line < 0 || w.Count < 0 {
		return fmt.Errorf("%w: line %d count %d", ErrInvalidWindow, w.Line, w.Count)
	}
	return nil
}

func (w WatchWindow) String() string {
	if w.AllLines() {
		return w.File
	}
	return fmt.Sprintf("%s[%d+%d]", w.File, w.Line, w.Count)
}
