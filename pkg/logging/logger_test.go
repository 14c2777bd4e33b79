// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(7), "level(7)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_TextRoundTrip(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, LevelWarn, l)
	b, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warn", string(b))
	assert.Error(t, l.UnmarshalText([]byte("loud")))
}

func TestNew_ConsoleText(t *testing.T) {
	var out syncBuffer
	logger := New(Config{Service: "replay", Output: &out})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("Generation started", "generation", 3)

	text := out.String()
	assert.NotContains(t, text, "hidden")
	assert.Contains(t, text, "Generation started")
	assert.Contains(t, text, "generation=3")
	assert.Contains(t, text, "service=replay")
}

func TestNew_ConsoleJSON(t *testing.T) {
	var out syncBuffer
	logger := New(Config{JSON: true, Output: &out})
	logger.Warn("slow build", "ms", 1200)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "slow build", rec["msg"])
	assert.EqualValues(t, 1200, rec["ms"])
}

func TestNew_LogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var out syncBuffer
	logger := New(Config{LogDir: dir, Service: "editor", Output: &out})
	logger.Error("session failed", "session_id", "abc")
	require.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	name := "editor_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"session failed"`)
	assert.Contains(t, string(data), `"session_id":"abc"`)
	assert.Contains(t, out.String(), "session failed")
}

func TestNew_LogFileUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	var out syncBuffer
	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Output: &out})
	defer logger.Close()
	assert.Contains(t, out.String(), "Log destination unavailable")
}

func TestNew_QuietFileOnly(t *testing.T) {
	dir := t.TempDir()
	var out syncBuffer
	logger := New(Config{LogDir: dir, Quiet: true, Output: &out})
	logger.Info("only in file")
	require.NoError(t, logger.Close())

	assert.Empty(t, out.String())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "replay_"))
}

func TestSetLevel_AppliesToDerived(t *testing.T) {
	var out syncBuffer
	logger := New(Config{Level: LevelWarn, Output: &out})
	child := logger.With("session_id", "s1")

	child.Info("before")
	logger.SetLevel(LevelDebug)
	child.Debug("after")

	text := out.String()
	assert.NotContains(t, text, "before")
	assert.Contains(t, text, "after")
	assert.Contains(t, text, "session_id=s1")
}

func TestTraceCorrelation(t *testing.T) {
	var out syncBuffer
	logger := New(Config{Output: &out})

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Slog().InfoContext(ctx, "with span")
	logger.Slog().InfoContext(context.Background(), "without span")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id="+span.SpanContext().TraceID().String())
	assert.Contains(t, lines[0], "span_id=")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestConcurrentUse(t *testing.T) {
	var out syncBuffer
	logger := New(Config{Output: &out})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.With("worker", i).Info("tick", "n", j)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 400, strings.Count(out.String(), "msg=tick"))
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "SESSION_ID", journalKey("session_id"))
	assert.Equal(t, "TRACE_ID", journalKey("trace.id"))
	assert.Equal(t, "A1", journalKey("a1"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".replay/logs"), expandPath("~/.replay/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "~user/x", expandPath("~user/x"))
}
