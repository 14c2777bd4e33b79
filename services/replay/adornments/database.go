// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package adornments holds the host's authoritative view of what every
// source line last produced, and of the current compiler diagnostics.
//
// The Database is a single-writer structure: it has no internal locking and
// must only be touched by the goroutine that owns it.
package adornments

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

// Change is the outcome of applying one REPLAY line.
//
// At most one Removed precedes at most one Added for the same (file, line).
// Unchanged is set when the line already held the same hash.
type Change struct {
	Removed   *datatypes.Adornment
	Added     *datatypes.Adornment
	Unchanged bool
}

// Empty reports whether the change needs no notification.
func (c Change) Empty() bool {
	return c.Removed == nil && c.Added == nil
}

type entry struct {
	adornment  datatypes.Adornment
	reaffirmed bool
}

// Database stores adornments per file and line, and diagnostics.
type Database struct {
	files   map[string]map[int]*entry
	lastTag int64

	diagnostics []datatypes.Diagnostic
	lastDiagTag int64
}

// NewDatabase creates an empty database. The first adornment tag and the
// first diagnostic tag are both 1.
func NewDatabase() *Database {
	return &Database{files: make(map[string]map[int]*entry)}
}

// =============================================================================
// Adornments
// =============================================================================

// ApplyReplay applies one REPLAY line from the client.
//
// Description:
//
//	A nil content is a removal. Otherwise the line is upserted: a new line
//	gets a fresh tag, a line whose hash changed has its old tag retired and
//	a fresh one issued, and a line with the same hash is left alone. Every
//	line mentioned by an add counts as reaffirmed for the current run.
//
// Inputs:
//
//	file, line - Location, 0-based line.
//	hash - The client's StableHash of content.
//	content - New content, or nil to remove.
//
// Outputs:
//
//	Change - Notifications to forward.
//	error - ErrUnknownLine when removing a line that is not stored;
//	        ErrHashMismatch (with a non-empty Change) when the removal's
//	        hash does not match the stored one.
func (db *Database) ApplyReplay(file string, line int, hash int32, content *string) (Change, error) {
	lines := db.files[file]
	existing := lines[line]

	if content == nil {
		if existing == nil {
			return Change{}, fmt.Errorf("%w %s(%d)", ErrUnknownLine, file, line)
		}
		removed := existing.adornment
		db.delete(file, line)
		if removed.ContentHash != hash {
			return Change{Removed: &removed}, fmt.Errorf("%w at %s(%d): have %d, removing %d",
				ErrHashMismatch, file, line, removed.ContentHash, hash)
		}
		return Change{Removed: &removed}, nil
	}

	if existing != nil && existing.adornment.ContentHash == hash {
		existing.reaffirmed = true
		return Change{Unchanged: true}, nil
	}

	var change Change
	if existing != nil {
		removed := existing.adornment
		change.Removed = &removed
	}
	if lines == nil {
		lines = make(map[int]*entry)
		db.files[file] = lines
	}
	db.lastTag++
	added := datatypes.Adornment{File: file, Line: line, Content: *content, ContentHash: hash, Tag: db.lastTag}
	lines[line] = &entry{adornment: added, reaffirmed: true}
	change.Added = &added
	return change, nil
}

// Get returns the adornment stored at (file, line).
func (db *Database) Get(file string, line int) (datatypes.Adornment, bool) {
	e, ok := db.files[file][line]
	if !ok {
		return datatypes.Adornment{}, false
	}
	return e.adornment, true
}

// DiffWindow returns every stored adornment inside window, ordered by file
// then line.
func (db *Database) DiffWindow(window datatypes.WatchWindow) []datatypes.Adornment {
	var out []datatypes.Adornment
	for file, lines := range db.files {
		if !window.CoversFile(file) {
			continue
		}
		for line, e := range lines {
			if window.Contains(file, line) {
				out = append(out, e.adornment)
			}
		}
	}
	sortAdornments(out)
	return out
}

// ShiftOnEdit moves adornments of file to follow an edit.
//
// Description:
//
//	Lines before start are kept. Lines in [start, start+oldCount) are
//	dropped and returned so the caller can retire their tags. Lines at or
//	after start+oldCount move by newCount-oldCount.
//
// Inputs:
//
//	file - Edited file.
//	start - First edited line, 0-based.
//	oldCount - Lines replaced.
//	newCount - Lines inserted in their place.
//
// Outputs:
//
//	[]datatypes.Adornment - The dropped adornments, ordered by line.
func (db *Database) ShiftOnEdit(file string, start, oldCount, newCount int) []datatypes.Adornment {
	lines := db.files[file]
	if len(lines) == 0 {
		return nil
	}
	delta := newCount - oldCount
	end := start + oldCount
	shifted := make(map[int]*entry, len(lines))
	var dropped []datatypes.Adornment
	for line, e := range lines {
		switch {
		case line < start:
			shifted[line] = e
		case line < end:
			dropped = append(dropped, e.adornment)
		default:
			e.adornment = e.adornment.WithLine(line + delta)
			shifted[line+delta] = e
		}
	}
	if len(shifted) == 0 {
		delete(db.files, file)
	} else {
		db.files[file] = shifted
	}
	sortAdornments(dropped)
	return dropped
}

// =============================================================================
// Run reconciliation
// =============================================================================

// BeginRun starts a new execution: nothing is reaffirmed yet.
func (db *Database) BeginRun() {
	for _, lines := range db.files {
		for _, e := range lines {
			e.reaffirmed = false
		}
	}
}

// MarkAdvertised records that every adornment inside window was sent to the
// client in a WATCH. The client answers for those lines itself.
func (db *Database) MarkAdvertised(window datatypes.WatchWindow) {
	for file, lines := range db.files {
		for line, e := range lines {
			if window.Contains(file, line) {
				e.reaffirmed = true
			}
		}
	}
}

// EndRun removes and returns every adornment inside window that was neither
// advertised nor mentioned by the client since BeginRun.
func (db *Database) EndRun(window datatypes.WatchWindow) []datatypes.Adornment {
	var stale []datatypes.Adornment
	for file, lines := range db.files {
		for line, e := range lines {
			if !e.reaffirmed && window.Contains(file, line) {
				stale = append(stale, e.adornment)
			}
		}
	}
	for _, a := range stale {
		db.delete(a.File, a.Line)
	}
	sortAdornments(stale)
	return stale
}

// =============================================================================
// Debug
// =============================================================================

// Files returns the files with at least one adornment, sorted.
func (db *Database) Files() []string {
	files := make([]string, 0, len(db.files))
	for f := range db.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Dump returns the adornments of file ordered by line, or of every file when
// file is datatypes.AllFiles.
func (db *Database) Dump(file string) []datatypes.Adornment {
	return db.DiffWindow(datatypes.WatchWindow{File: file, Line: -1, Count: -1})
}

// Len returns the number of stored adornments.
func (db *Database) Len() int {
	n := 0
	for _, lines := range db.files {
		n += len(lines)
	}
	return n
}

func (db *Database) delete(file string, line int) {
	lines := db.files[file]
	delete(lines, line)
	if len(lines) == 0 {
		delete(db.files, file)
	}
}

func sortAdornments(a []datatypes.Adornment) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].File != a[j].File {
			return a[i].File < a[j].File
		}
		return a[i].Line < a[j].Line
	})
}
