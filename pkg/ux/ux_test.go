// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeFull, ParseMode("FULL"))
	assert.Equal(t, ModeMachine, ParseMode("quiet"))
	assert.Equal(t, ModeMachine, ParseMode("q"))
	assert.Equal(t, ModeMinimal, ParseMode("minimal"))
	assert.Equal(t, ModeMinimal, ParseMode("unknown"))
}

func TestDetectMode(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	t.Setenv(ModeEnv, "")
	assert.Equal(t, ModeMachine, DetectMode(f))
	assert.Equal(t, ModeMachine, DetectMode(nil))

	t.Setenv(ModeEnv, "full")
	assert.Equal(t, ModeFull, DetectMode(f))
}

func TestPrinter_Modes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeMachine)
	p.Title("ignored")
	p.Success("built")
	p.Warning("slow")
	p.Error("broken")
	p.Info("plain")
	assert.Equal(t, "OK: built\nWARN: slow\nERROR: broken\nplain\n", buf.String())

	buf.Reset()
	p = NewPrinter(&buf, ModeMinimal)
	p.Success("built")
	p.Info("note")
	assert.Equal(t, "✓ built\n│ note\n", buf.String())
}

func TestTruncateAndFlatten(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab…", Truncate("abcd", 3))
	assert.Equal(t, "…", Truncate("abcd", 1))
	assert.Equal(t, "", Truncate("abcd", 0))
	assert.Equal(t, "héll…", Truncate("héllo world", 5))
	assert.Equal(t, "a⏎b c", Flatten("a\r\nb\tc"))
}

func TestConsoleSink_Minimal(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, ModeMinimal)

	require.NoError(t, sink.OnAdornmentChanged(ctx, true, 1, "main.go", 3, "x=1"))
	require.NoError(t, sink.OnAdornmentChanged(ctx, true, 2, "main.go", 4, "line\nbreak"))
	require.NoError(t, sink.OnAdornmentChanged(ctx, false, 1, "main.go", 0, ""))
	require.NoError(t, sink.OnDiagnosticChanged(ctx, true, datatypes.Diagnostic{
		Tag: 1, Severity: datatypes.SeverityError, File: "main.go", Line: 5, Column: 2, ID: "compile", Message: "undefined: y",
	}))
	require.NoError(t, sink.OnDiagnosticChanged(ctx, true, datatypes.Diagnostic{Tag: 2, Severity: datatypes.SeverityHidden}))
	require.NoError(t, sink.OnDiagnosticChanged(ctx, false, datatypes.Diagnostic{Tag: 1}))
	require.NoError(t, sink.OnError(ctx, "Build failed: 'boom'"))

	assert.Equal(t,
		"+ main.go:4  x=1\n"+
			"+ main.go:5  line⏎break\n"+
			"- main.go:4\n"+
			"✗ main.go:5:2 compile: undefined: y\n"+
			"✓ resolved main.go:5:2\n"+
			"✗ Build failed: 'boom'\n",
		buf.String())

	require.Len(t, sink.Adornments(), 1)
	assert.Equal(t, int64(2), sink.Adornments()[0].Tag)
	require.Len(t, sink.Diagnostics(), 1)
	assert.Equal(t, int64(2), sink.Diagnostics()[0].Tag)
}

func TestConsoleSink_Machine(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, ModeMachine)

	require.NoError(t, sink.OnAdornmentChanged(ctx, true, 7, "a.go", 0, "v\tw"))
	require.NoError(t, sink.OnAdornmentChanged(ctx, false, 7, "a.go", 0, ""))
	require.NoError(t, sink.OnDiagnosticChanged(ctx, true, datatypes.Diagnostic{
		Tag: 3, Severity: datatypes.SeverityWarning, File: "a.go", Line: 2, Column: 1, Length: 4, Message: "unused",
	}))
	require.NoError(t, sink.OnDiagnosticChanged(ctx, false, datatypes.Diagnostic{Tag: 3}))
	require.NoError(t, sink.OnError(ctx, "multi\nline"))

	assert.Equal(t,
		"ADORNMENT\tadd\t7\ta.go\t1\tv w\n"+
			"ADORNMENT\tremove\t7\ta.go\n"+
			"DIAGNOSTIC\tadd\t3\ta.go\tWarning\t2\t1\t4\tunused\n"+
			"DIAGNOSTIC\tremove\t3\n"+
			"ERROR\tmulti⏎line\n",
		buf.String())
}

func TestConsoleSink_Render(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, ModeMachine)
	sink.SetValueWidth(4)
	require.NoError(t, sink.OnAdornmentChanged(ctx, true, 3, "b.go", 1, "later"))
	require.NoError(t, sink.OnAdornmentChanged(ctx, true, 1, "a.go", 9, "z"))
	require.NoError(t, sink.OnAdornmentChanged(ctx, true, 2, "a.go", 2, "y"))

	buf.Reset()
	sink.Render()
	assert.Equal(t, "a.go\t3\ty\na.go\t10\tz\nb.go\t2\tlat…\n", buf.String())
}
