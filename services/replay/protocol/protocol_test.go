// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

// =============================================================================
// Client wire
// =============================================================================

func TestDecodeClientLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{"handshake", "OK", HandshakeOK{}},
		{"replay add", "REPLAY\tadd\tfoo.cs\t3\t12345\tx=5", ReplayAdd{File: "foo.cs", Line: 3, Hash: 12345, Content: "x=5"}},
		{"replay add content with tab", "REPLAY\tadd\ta.go\t0\t-7\tx\ty", ReplayAdd{File: "a.go", Line: 0, Hash: -7, Content: "x\ty"}},
		{"replay add empty content", "REPLAY\tadd\ta.go\t1\t2\t", ReplayAdd{File: "a.go", Line: 1, Hash: 2, Content: ""}},
		{"replay remove", "REPLAY\tremove\ta.go\t4\t99", ReplayRemove{File: "a.go", Line: 4, Hash: 99}},
		{"end run", "END\trun", EndRun{}},
		{"end watch", "END\twatch\t17", EndWatch{Correlation: "17"}},
		{"error", "ERROR\tboom", ClientError{Text: "boom"}},
		{"debug", "DEBUG\thello\tworld", Debug{Text: "hello\tworld"}},
		{"file", "FILE\ta.go", FileEntry{File: "a.go"}},
		{"dump", "DUMP\ta.go\t2\tx=1", DumpEntry{File: "a.go", Line: 2, Content: "x=1"}},
		{"trailing cr", "END\trun\r", EndRun{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeClientLine(tt.line))
		})
	}
}

func TestDecodeClientLine_Unrecognized(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		cause error
	}{
		{"empty", "", ErrUnknownVerb},
		{"unknown verb", "HELLO\tworld", ErrUnknownVerb},
		{"replay bad line", "REPLAY\tadd\ta.go\tx\t1\tc", ErrMalformedLine},
		{"replay negative line", "REPLAY\tadd\ta.go\t-1\t1\tc", ErrMalformedLine},
		{"replay bad hash", "REPLAY\tadd\ta.go\t1\tnope\tc", ErrMalformedLine},
		{"replay add missing content", "REPLAY\tadd\ta.go\t1\t2", ErrMalformedLine},
		{"replay remove extra field", "REPLAY\tremove\ta.go\t1\t2\tc", ErrMalformedLine},
		{"replay unknown action", "REPLAY\tupsert\ta.go\t1\t2\tc", ErrMalformedLine},
		{"replay numeric file", "REPLAY\tadd\t123\t1\t2\tc", ErrMalformedLine},
		{"end unknown", "END\tsomething", ErrMalformedLine},
		{"end watch missing token", "END\twatch", ErrMalformedLine},
		{"dump bad line", "DUMP\ta.go\tx\tc", ErrMalformedLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := DecodeClientLine(tt.line)
			u, ok := msg.(Unrecognized)
			require.True(t, ok, "got %#v", msg)
			assert.Equal(t, tt.line, u.Line)
			assert.ErrorIs(t, u.Err, tt.cause)

			var de *DecodeError
			require.True(t, errors.As(u.Err, &de))
			assert.Contains(t, de.Error(), "got '"+tt.line+"'")
		})
	}
}

func TestClientEncoders(t *testing.T) {
	assert.Equal(t, "REPLAY\tadd\ta.go\t3\t-5\tx=1 y=2", EncodeReplayAdd("a.go", 3, -5, "x=1\ty=2"))
	assert.Equal(t, `REPLAY`+"\t"+`add`+"\t"+`a.go`+"\t"+`0`+"\t"+`1`+"\t"+`hi\r\n`, EncodeReplayAdd("a.go", 0, 1, "hi\r\n"))
	assert.Equal(t, "REPLAY\tremove\ta.go\t3\t-5", EncodeReplayRemove("a.go", 3, -5))
	assert.Equal(t, "END\trun", EncodeEndRun())
	assert.Equal(t, "END\twatch\t4", EncodeEndWatch("4"))
	assert.Equal(t, "ERROR\tbad command", EncodeError("bad\tcommand"))
	assert.Equal(t, "DEBUG\tx", EncodeDebug("x"))
	assert.Equal(t, "FILE\ta.go", EncodeFile("a.go"))
	assert.Equal(t, "DUMP\ta.go\t7\tv", EncodeDumpEntry("a.go", 7, "v"))
	assert.Equal(t, "FILES", EncodeFiles())
	assert.Equal(t, "DUMP", EncodeDump())
}

func TestEncodeDecodeReplayAdd_ContentSurvives(t *testing.T) {
	line := EncodeReplayAdd("a.go", 2, 42, "a\tb\nc")
	got := DecodeClientLine(line)
	assert.Equal(t, ReplayAdd{File: "a.go", Line: 2, Hash: 42, Content: `a b\nc`}, got)
}

// =============================================================================
// WATCH
// =============================================================================

func TestEncodeWatch_SingleFile(t *testing.T) {
	w := datatypes.WatchWindow{File: "foo.cs", Line: 0, Count: 10}
	assert.Equal(t, "WATCH\t1\tfoo.cs\t0\t10", EncodeWatch("1", w, nil))

	known := []datatypes.Adornment{
		{File: "foo.cs", Line: 3, ContentHash: 12345},
		{File: "foo.cs", Line: 12, ContentHash: 1}, // outside
		{File: "bar.cs", Line: 4, ContentHash: 2},  // other file
		{File: "foo.cs", Line: 5, ContentHash: -9},
	}
	assert.Equal(t, "WATCH\t2\tfoo.cs\t0\t10\t3\t12345\t5\t-9", EncodeWatch("2", w, known))
}

func TestEncodeWatch_AllFiles(t *testing.T) {
	known := []datatypes.Adornment{
		{File: "a.go", Line: 1, ContentHash: 10},
		{File: "a.go", Line: 2, ContentHash: 20},
		{File: "b.go", Line: 0, ContentHash: 30},
	}
	got := EncodeWatch("3", datatypes.WatchAll(), known)
	assert.Equal(t, "WATCH\t3\t*\t-1\t-1\ta.go\t1\t10\t2\t20\tb.go\t0\t30", got)

	cmd, err := DecodeWatch(got)
	require.NoError(t, err)
	assert.Equal(t, "3", cmd.Correlation)
	assert.Equal(t, datatypes.WatchAll(), cmd.Window)
	assert.Equal(t, map[string]map[int]int32{
		"a.go": {1: 10, 2: 20},
		"b.go": {0: 30},
	}, cmd.Known)
}

func TestValidFile(t *testing.T) {
	assert.True(t, ValidFile("main.go"))
	assert.True(t, ValidFile("123.go"))
	assert.True(t, ValidFile("pkg/7"))
	assert.False(t, ValidFile(""))
	assert.False(t, ValidFile("123"))
	assert.False(t, ValidFile("-4"))
	assert.False(t, ValidFile("a\tb"))
}

func TestDecodeWatch_SingleFileForm(t *testing.T) {
	cmd, err := DecodeWatch("WATCH\t1\tfoo.cs\t0\t10\t3\t12345")
	require.NoError(t, err)
	assert.Equal(t, datatypes.WatchWindow{File: "foo.cs", Line: 0, Count: 10}, cmd.Window)
	assert.Equal(t, map[string]map[int]int32{"foo.cs": {3: 12345}}, cmd.Known)
}

func TestDecodeWatch_Errors(t *testing.T) {
	for _, line := range []string{
		"WATCH\t1\tfoo.cs\t0",
		"WATCH\t1\tfoo.cs\tx\t10",
		"WATCH\t1\t\t0\t10",
		"WATCH\t1\t*\t-1\t-1\t3\t4", // pairs before any file on a wildcard window
		"FILES",
	} {
		_, err := DecodeWatch(line)
		assert.ErrorIs(t, err, ErrMalformedLine, line)
	}
}

func TestDecodeHostLine(t *testing.T) {
	assert.Equal(t, FilesCommand{}, DecodeHostLine("FILES"))
	assert.Equal(t, DumpCommand{}, DecodeHostLine("DUMP"))

	w, ok := DecodeHostLine("WATCH\t9\ta.go\t-1\t-1").(WatchCommand)
	require.True(t, ok)
	assert.Equal(t, "9", w.Correlation)
	assert.True(t, w.Window.AllLines())

	u, ok := DecodeHostLine("JUMP").(UnknownCommand)
	require.True(t, ok)
	assert.ErrorIs(t, u.Err, ErrUnknownVerb)

	u, ok = DecodeHostLine("FILES\textra").(UnknownCommand)
	require.True(t, ok)
	assert.ErrorIs(t, u.Err, ErrMalformedLine)
}

// =============================================================================
// Editor wire
// =============================================================================

func TestDecodeEditorLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want EditorCommand
	}{
		{"get", "GET\tmain.go", GetCommand{File: "main.go"}},
		{"change", `CHANGE` + "\tmain.go\t4\t0\t1\t2\t5\t" + `a\nb`, ChangeCommand{
			File: "main.go", StartLine: 3, StartColumn: 0, OldLineCount: 1, NewLineCount: 2, OldLength: 5, NewContent: "a\nb",
		}},
		{"change content keeps tabs", "CHANGE\tmain.go\t1\t0\t0\t1\t0\tx\ty", ChangeCommand{
			File: "main.go", StartLine: 0, OldLineCount: 0, NewLineCount: 1, NewContent: "x\ty",
		}},
		{"watch file", "WATCH\tmain.go", EditorWatchCommand{Window: datatypes.WatchWindow{File: "main.go", Line: -1, Count: -1}}},
		{"watch range", "WATCH\tmain.go\t1\t20", EditorWatchCommand{Window: datatypes.WatchWindow{File: "main.go", Line: 0, Count: 20}}},
		{"watch all", "WATCH\t*", EditorWatchCommand{Window: datatypes.WatchAll()}},
		{"patch", `PATCH` + "\t" + `--- a\n+++ b\n`, PatchCommand{Diff: "--- a\n+++ b\n"}},
		{"files", "FILES", EditorDebugCommand{Verb: "FILES"}},
		{"dump", "DUMP", EditorDebugCommand{Verb: "DUMP"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeEditorLine(tt.line))
		})
	}
}

func TestDecodeEditorLine_Invalid(t *testing.T) {
	for _, line := range []string{
		"",
		"HELLO",
		"GET",
		"CHANGE\tmain.go\t1\t0\t1",
		"CHANGE\tmain.go\t0\t0\t1\t1\t0\tx", // lines are 1-based
		"CHANGE\tmain.go\ta\t0\t1\t1\t0\tx",
		"WATCH",
		"WATCH\tmain.go\t0\t10",
		"WATCH\tmain.go\t1",
		"DUMP\tx",
	} {
		cmd := DecodeEditorLine(line)
		inv, ok := cmd.(InvalidCommand)
		require.True(t, ok, "%q decoded as %#v", line, cmd)
		assert.Error(t, inv.Err)
	}
}

func TestEditorEncoders(t *testing.T) {
	assert.Equal(t, "ADORNMENT\tadd\t1\tfoo.cs\t4\tx=5", EncodeAdornmentAdd(1, "foo.cs", 3, "x=5"))
	assert.Equal(t, `ADORNMENT`+"\tadd\t2\ta.go\t1\t"+`a\tb`, EncodeAdornmentAdd(2, "a.go", 0, "a\tb"))
	assert.Equal(t, "ADORNMENT\tremove\t1\tfoo.cs", EncodeAdornmentRemove(1, "foo.cs"))
	assert.Equal(t, "DIAGNOSTIC\tremove\t3", EncodeDiagnosticRemove(3))
	assert.Equal(t, "ERROR\toops", EncodeEditorError("oops"))
	assert.Equal(t, `GOT`+"\ta.go\t"+`package a\n`, EncodeGot("a.go", "package a\n"))

	d := datatypes.Diagnostic{Tag: 5, Severity: datatypes.SeverityError, File: "a.go", Line: 2, Column: 3, Length: 1, ID: "compile", Message: "undefined: x"}
	assert.Equal(t, "DIAGNOSTIC\tadd\t5\ta.go\tError\t2\t3\t1\tcompile: undefined: x", EncodeDiagnosticAdd(d))
}

func TestEscapeUnescape(t *testing.T) {
	for _, s := range []string{
		"",
		"plain",
		"a\tb",
		"line1\r\nline2",
		`back\slash`,
		`\n literal`,
		"mixed \\\t\n\\n",
	} {
		assert.Equal(t, s, UnescapeText(EscapeText(s)), "%q", s)
	}
	assert.Equal(t, `a\\n`, EscapeText(`a\n`))
	assert.Equal(t, `\q`, UnescapeText(`\q`))
	assert.Equal(t, `tail\`, UnescapeText(`tail\`))
}

func TestSanitizeContent(t *testing.T) {
	assert.Equal(t, "no change", SanitizeContent("no change"))
	assert.Equal(t, `a b\r\nc`, SanitizeContent("a\tb\r\nc"))
}
