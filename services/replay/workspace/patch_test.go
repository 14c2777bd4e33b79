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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const original = "line1\nline2\nline3\nline4\nline5\nline6\nline7\nline8\nline9\nline10\n"

func TestApplyPatch_ModifyAndInsert(t *testing.T) {
	doc := NewDocument("/p", map[string]string{"a.go": original})
	patch := `--- a/a.go
+++ b/a.go
@@ -1,3 +1,3 @@
 line1
-line2
+LINE2
 line3
@@ -7,3 +7,5 @@
 line7
+extra1
+extra2
 line8
 line9
`
	next, edits, err := doc.ApplyPatch(patch)
	require.NoError(t, err)

	text, _ := next.Text("a.go")
	assert.Equal(t, "line1\nLINE2\nline3\nline4\nline5\nline6\nline7\nextra1\nextra2\nline8\nline9\nline10\n", text)
	assert.Equal(t, []LineEdit{
		{File: "a.go", Line: 1, OldCount: 1, NewCount: 1},
		{File: "a.go", Line: 7, OldCount: 0, NewCount: 2},
	}, edits)
}

func TestApplyPatch_DeletionShiftsLaterHunks(t *testing.T) {
	doc := NewDocument("/p", map[string]string{"a.go": original})
	patch := `--- a/a.go
+++ b/a.go
@@ -2,3 +2,1 @@
 line2
-line3
-line4
@@ -9,2 +7,2 @@
 line9
-line10
+LINE10
`
	next, edits, err := doc.ApplyPatch(patch)
	require.NoError(t, err)

	text, _ := next.Text("a.go")
	assert.Equal(t, "line1\nline2\nline5\nline6\nline7\nline8\nline9\nLINE10\n", text)
	require.Len(t, edits, 2)
	assert.Equal(t, LineEdit{File: "a.go", Line: 2, OldCount: 2, NewCount: 0}, edits[0])
	// line10 was 0-based line 9, and sits at 7 once the first edit is applied.
	assert.Equal(t, LineEdit{File: "a.go", Line: 7, OldCount: 1, NewCount: 1}, edits[1])
}

func TestApplyPatch_NewAndDeletedFiles(t *testing.T) {
	doc := NewDocument("/p", map[string]string{"old.go": "package x\nvar a = 1\n"})
	patch := `diff --git a/old.go b/old.go
deleted file mode 100644
--- a/old.go
+++ /dev/null
@@ -1,2 +0,0 @@
-package x
-var a = 1
diff --git a/new.go b/new.go
new file mode 100644
--- /dev/null
+++ b/new.go
@@ -0,0 +1,2 @@
+package x
+var b = 2
`
	next, edits, err := doc.ApplyPatch(patch)
	require.NoError(t, err)

	assert.False(t, next.Has("old.go"))
	text, ok := next.Text("new.go")
	require.True(t, ok)
	assert.Equal(t, "package x\nvar b = 2\n", text)
	assert.Equal(t, []LineEdit{
		{File: "old.go", Line: 0, OldCount: 2},
		{File: "new.go", Line: 0, NewCount: 2},
	}, edits)
}

func TestApplyPatch_ContextMismatch(t *testing.T) {
	doc := NewDocument("/p", map[string]string{"a.go": original})
	patch := `--- a/a.go
+++ b/a.go
@@ -1,2 +1,2 @@
 nope
-line2
+x
`
	_, _, err := doc.ApplyPatch(patch)
	assert.ErrorIs(t, err, ErrPatchMismatch)
}

func TestApplyPatch_UnknownFile(t *testing.T) {
	doc := NewDocument("/p", map[string]string{"a.go": original})
	patch := `--- a/b.go
+++ b/b.go
@@ -1,1 +1,1 @@
-x
+y
`
	_, _, err := doc.ApplyPatch(patch)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestApplyPatch_Empty(t *testing.T) {
	doc := NewDocument("/p", map[string]string{"a.go": original})
	_, _, err := doc.ApplyPatch("garbage\n")
	assert.ErrorIs(t, err, ErrEmptyPatch)
}
