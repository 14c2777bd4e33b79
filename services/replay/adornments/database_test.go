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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

func add(t *testing.T, db *Database, file string, line int, content string) Change {
	t.Helper()
	c, err := db.ApplyReplay(file, line, StableHash(content), &content)
	require.NoError(t, err)
	return c
}

func TestApplyReplay_AddReplaceSame(t *testing.T) {
	db := NewDatabase()

	c := add(t, db, "foo.cs", 3, "x=5")
	require.NotNil(t, c.Added)
	assert.Nil(t, c.Removed)
	assert.Equal(t, int64(1), c.Added.Tag)
	assert.Equal(t, "x=5", c.Added.Content)

	// Same hash: nothing to tell the editor.
	c = add(t, db, "foo.cs", 3, "x=5")
	assert.True(t, c.Unchanged)
	assert.True(t, c.Empty())

	// New content: old tag retired, new tag issued.
	c = add(t, db, "foo.cs", 3, "x=6")
	require.NotNil(t, c.Removed)
	require.NotNil(t, c.Added)
	assert.Equal(t, int64(1), c.Removed.Tag)
	assert.Equal(t, int64(2), c.Added.Tag)

	got, ok := db.Get("foo.cs", 3)
	require.True(t, ok)
	assert.Equal(t, "x=6", got.Content)
	assert.Equal(t, 1, db.Len())
}

func TestApplyReplay_Remove(t *testing.T) {
	db := NewDatabase()
	add(t, db, "a.go", 1, "v")

	_, err := db.ApplyReplay("a.go", 2, 0, nil)
	assert.ErrorIs(t, err, ErrUnknownLine)

	c, err := db.ApplyReplay("a.go", 1, StableHash("v"), nil)
	require.NoError(t, err)
	require.NotNil(t, c.Removed)
	assert.Nil(t, c.Added)
	assert.Equal(t, 0, db.Len())
	assert.Empty(t, db.Files())
}

func TestApplyReplay_RemoveHashMismatch(t *testing.T) {
	db := NewDatabase()
	add(t, db, "a.go", 1, "v")

	c, err := db.ApplyReplay("a.go", 1, 12, nil)
	assert.ErrorIs(t, err, ErrHashMismatch)
	require.NotNil(t, c.Removed)
	assert.Equal(t, 0, db.Len())
}

func TestTagsNeverReused(t *testing.T) {
	db := NewDatabase()
	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		c := add(t, db, "a.go", i%3, strings.Repeat("x", i+1))
		require.NotNil(t, c.Added)
		assert.False(t, seen[c.Added.Tag], "tag %d reused", c.Added.Tag)
		seen[c.Added.Tag] = true
	}
}

func TestDiffWindow(t *testing.T) {
	db := NewDatabase()
	add(t, db, "b.go", 0, "b0")
	add(t, db, "a.go", 5, "a5")
	add(t, db, "a.go", 1, "a1")
	add(t, db, "a.go", 20, "a20")

	got := db.DiffWindow(datatypes.WatchWindow{File: "a.go", Line: 0, Count: 10})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Line)
	assert.Equal(t, 5, got[1].Line)

	all := db.DiffWindow(datatypes.WatchAll())
	require.Len(t, all, 4)
	assert.Equal(t, "a.go", all[0].File)
	assert.Equal(t, "b.go", all[3].File)

	assert.Empty(t, db.DiffWindow(datatypes.WatchWindow{File: "c.go", Line: -1, Count: -1}))
}

func TestShiftOnEdit_Insertion(t *testing.T) {
	db := NewDatabase()
	add(t, db, "a.go", 10, "ten")
	add(t, db, "a.go", 2, "two")

	dropped := db.ShiftOnEdit("a.go", 5, 0, 2)
	assert.Empty(t, dropped)

	_, ok := db.Get("a.go", 10)
	assert.False(t, ok)
	moved, ok := db.Get("a.go", 12)
	require.True(t, ok)
	assert.Equal(t, "ten", moved.Content)
	assert.Equal(t, 12, moved.Line)

	kept, ok := db.Get("a.go", 2)
	require.True(t, ok)
	assert.Equal(t, "two", kept.Content)
}

func TestShiftOnEdit_DeletionDropsCoveredLine(t *testing.T) {
	db := NewDatabase()
	ten := add(t, db, "a.go", 10, "ten")
	add(t, db, "a.go", 14, "fourteen")

	dropped := db.ShiftOnEdit("a.go", 8, 3, 0)
	require.Len(t, dropped, 1)
	assert.Equal(t, ten.Added.Tag, dropped[0].Tag)

	_, ok := db.Get("a.go", 10)
	assert.False(t, ok)
	moved, ok := db.Get("a.go", 11)
	require.True(t, ok)
	assert.Equal(t, "fourteen", moved.Content)
}

func TestShiftOnEdit_OtherFileUntouched(t *testing.T) {
	db := NewDatabase()
	add(t, db, "b.go", 3, "x")
	assert.Empty(t, db.ShiftOnEdit("a.go", 0, 10, 0))
	_, ok := db.Get("b.go", 3)
	assert.True(t, ok)
}

func TestEndRun_RemovesOnlyUnaffirmedInWindow(t *testing.T) {
	db := NewDatabase()
	add(t, db, "a.go", 1, "advertised")
	add(t, db, "a.go", 2, "silent")
	add(t, db, "a.go", 30, "outside")

	db.BeginRun()
	db.MarkAdvertised(datatypes.WatchWindow{File: "a.go", Line: 1, Count: 1})
	add(t, db, "a.go", 3, "new this run")

	w := datatypes.WatchWindow{File: "a.go", Line: 0, Count: 10}
	stale := db.EndRun(w)
	require.Len(t, stale, 1)
	assert.Equal(t, 2, stale[0].Line)

	for _, line := range []int{1, 3, 30} {
		_, ok := db.Get("a.go", line)
		assert.True(t, ok, "line %d", line)
	}
}

func TestEndRun_SameHashReaffirms(t *testing.T) {
	db := NewDatabase()
	add(t, db, "a.go", 1, "x")
	db.BeginRun()
	add(t, db, "a.go", 1, "x")
	assert.Empty(t, db.EndRun(datatypes.WatchAll()))
}

func TestDebugViews(t *testing.T) {
	db := NewDatabase()
	add(t, db, "b.go", 0, "b")
	add(t, db, "a.go", 2, "a2")
	add(t, db, "a.go", 0, "a0")

	assert.Equal(t, []string{"a.go", "b.go"}, db.Files())
	dump := db.Dump("a.go")
	require.Len(t, dump, 2)
	assert.Equal(t, "a0", dump[0].Content)
	assert.Len(t, db.Dump(datatypes.AllFiles), 3)
	assert.Equal(t, 3, db.Len())
}

// =============================================================================
// Diagnostics
// =============================================================================

func diag(msg string, offset int) datatypes.Diagnostic {
	return datatypes.Diagnostic{Severity: datatypes.SeverityError, File: "a.go", Offset: offset, Length: 1, ID: "compile", Message: msg}
}

func TestDiffDiagnostics(t *testing.T) {
	db := NewDatabase()

	removed, added := db.DiffDiagnostics([]datatypes.Diagnostic{diag("x", 1), diag("y", 2)})
	assert.Empty(t, removed)
	require.Len(t, added, 2)
	assert.Equal(t, int64(1), added[0].Tag)
	assert.Equal(t, int64(2), added[1].Tag)

	// Same diagnostics from a new build: no churn.
	removed, added = db.DiffDiagnostics([]datatypes.Diagnostic{diag("y", 2), diag("x", 1)})
	assert.Empty(t, removed)
	assert.Empty(t, added)

	removed, added = db.DiffDiagnostics([]datatypes.Diagnostic{diag("y", 2), diag("z", 3)})
	require.Len(t, removed, 1)
	assert.Equal(t, "x", removed[0].Message)
	assert.Equal(t, int64(1), removed[0].Tag)
	require.Len(t, added, 1)
	assert.Equal(t, int64(3), added[0].Tag)

	assert.Len(t, db.Diagnostics(), 2)
	cleared := db.ClearDiagnostics()
	assert.Len(t, cleared, 2)
	assert.Empty(t, db.Diagnostics())
}

func TestDiffDiagnostics_Duplicates(t *testing.T) {
	db := NewDatabase()
	_, added := db.DiffDiagnostics([]datatypes.Diagnostic{diag("x", 1), diag("x", 1)})
	assert.Len(t, added, 2)

	removed, added := db.DiffDiagnostics([]datatypes.Diagnostic{diag("x", 1)})
	assert.Len(t, removed, 1)
	assert.Empty(t, added)
}

func TestDiagnosticTagsIndependentOfAdornmentTags(t *testing.T) {
	db := NewDatabase()
	add(t, db, "a.go", 0, "x")
	add(t, db, "a.go", 1, "y")
	_, added := db.DiffDiagnostics([]datatypes.Diagnostic{diag("x", 1)})
	require.Len(t, added, 1)
	assert.Equal(t, int64(1), added[0].Tag)
}
