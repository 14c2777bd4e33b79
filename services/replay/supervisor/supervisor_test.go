// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// The test binary doubles as the instrumented program.
func TestMain(m *testing.M) {
	if mode := os.Getenv("SUPERVISOR_HELPER"); mode != "" {
		runHelper(mode)
		return
	}
	os.Exit(m.Run())
}

func runHelper(mode string) {
	switch mode {
	case "ok":
		fmt.Println("OK")
		fmt.Println(os.Getenv(datatypes.AutorunEnv))
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
		}
	case "garbage":
		fmt.Println("HELLO")
		time.Sleep(time.Hour)
	case "silent":
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

// =============================================================================
// Fakes
// =============================================================================

type fakeBuilder struct {
	results []BuildResult
	errs    []error
	calls   []*workspace.Document
}

func (b *fakeBuilder) Build(_ context.Context, doc *workspace.Document) (BuildResult, error) {
	i := len(b.calls)
	b.calls = append(b.calls, doc)
	var err error
	if i < len(b.errs) {
		err = b.errs[i]
	}
	if i < len(b.results) {
		return b.results[i], err
	}
	return BuildResult{}, err
}

type fakeInstrumenter struct {
	autoruns []datatypes.Autorun
	err      error
}

func (f *fakeInstrumenter) Instrument(_ context.Context, doc *workspace.Document) (Instrumented, error) {
	if f.err != nil {
		return Instrumented{}, f.err
	}
	return Instrumented{Document: doc.WithText("zz_replay.go", "package main\n"), Autoruns: f.autoruns}, nil
}

type closeCounter struct {
	closed int
}

func (c *closeCounter) Lines() <-chan string               { return nil }
func (c *closeCounter) Send(context.Context, string) error { return nil }
func (c *closeCounter) Close() error                       { c.closed++; return errors.New("already gone") }
func (c *closeCounter) Err() error                         { return nil }

func helperSupervisor(t *testing.T, mode string, b Builder, i Instrumenter) *Supervisor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Args = []string{"-test.run=^$"}
	cfg.Env = []string{"SUPERVISOR_HELPER=" + mode}
	cfg.HandshakeTimeout = 500 * time.Millisecond
	return New(cfg, b, i, nil)
}

func artifact(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(os.Args[0])
	require.NoError(t, err)
	return path
}

func testDoc(t *testing.T) *workspace.Document {
	return workspace.NewDocument(t.TempDir(), map[string]string{"main.go": "package main\n"})
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Tests
// =============================================================================

func TestRebuildAndLaunch_Success(t *testing.T) {
	ctx := testCtx(t)
	warn := datatypes.Diagnostic{Severity: datatypes.SeverityWarning, File: "main.go", Offset: 1, Length: 1, Message: "unused"}
	extra := datatypes.Diagnostic{Severity: datatypes.SeverityWarning, File: "zz_replay.go", Message: "shadowed"}
	b := &fakeBuilder{results: []BuildResult{
		{Success: true, Diagnostics: []datatypes.Diagnostic{warn}},
		{Success: true, ArtifactPath: artifact(t), Diagnostics: []datatypes.Diagnostic{warn, extra}},
	}}
	autoruns := []datatypes.Autorun{{TypeName: "Demo", MethodName: "Run", File: "main.go", Line: 4}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{autoruns: autoruns})

	prev := &closeCounter{}
	var reports []BuildReport
	proc, err := s.RebuildAndLaunch(ctx, testDoc(t), prev, func(r BuildReport) { reports = append(reports, r) })
	require.NoError(t, err)
	defer proc.Close()

	assert.Equal(t, 1, prev.closed)
	require.Len(t, b.calls, 2)
	assert.True(t, b.calls[1].Has("zz_replay.go"))
	require.Len(t, reports, 1)
	assert.Equal(t, []datatypes.Diagnostic{warn}, reports[0].Diagnostics)
	assert.Equal(t, []datatypes.Diagnostic{extra}, reports[0].Instrumentation)

	select {
	case line := <-proc.Lines():
		assert.Equal(t, datatypes.EncodeAutoruns(autoruns), line)
	case <-ctx.Done():
		t.Fatal("no output after handshake")
	}
}

func TestRebuildAndLaunch_NilDocument(t *testing.T) {
	s := helperSupervisor(t, "ok", &fakeBuilder{}, &fakeInstrumenter{})
	reported := 0
	_, err := s.RebuildAndLaunch(testCtx(t), nil, nil, func(r BuildReport) {
		reported++
		assert.Empty(t, r.Diagnostics)
	})
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.Equal(t, 1, reported)
}

func TestRebuildAndLaunch_CompileErrorsStopBeforeInstrumenting(t *testing.T) {
	bad := datatypes.Diagnostic{Severity: datatypes.SeverityError, File: "main.go", Message: "undefined: x"}
	b := &fakeBuilder{results: []BuildResult{{Success: false, Diagnostics: []datatypes.Diagnostic{bad}}}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{err: errors.New("must not be called")})

	var reports []BuildReport
	_, err := s.RebuildAndLaunch(testCtx(t), testDoc(t), nil, func(r BuildReport) { reports = append(reports, r) })
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Len(t, b.calls, 1)
	require.Len(t, reports, 1)
	assert.Equal(t, []datatypes.Diagnostic{bad}, reports[0].Diagnostics)
}

func TestRebuildAndLaunch_BuilderCrash(t *testing.T) {
	b := &fakeBuilder{errs: []error{errors.New("go: not found")}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{})
	reported := false
	_, err := s.RebuildAndLaunch(testCtx(t), testDoc(t), nil, func(BuildReport) { reported = true })
	assert.ErrorIs(t, err, ErrBuilderCrashed)
	assert.False(t, reported)
}

func TestRebuildAndLaunch_InstrumentFailure(t *testing.T) {
	b := &fakeBuilder{results: []BuildResult{{Success: true}}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{err: errors.New("boom")})
	reported := 0
	_, err := s.RebuildAndLaunch(testCtx(t), testDoc(t), nil, func(BuildReport) { reported++ })
	assert.ErrorIs(t, err, ErrInstrumentFailed)
	assert.Equal(t, 1, reported)
}

func TestRebuildAndLaunch_InstrumentedBuildFails(t *testing.T) {
	broken := datatypes.Diagnostic{Severity: datatypes.SeverityError, File: "zz_replay.go", Message: "syntax error"}
	b := &fakeBuilder{results: []BuildResult{
		{Success: true},
		{Success: false, Diagnostics: []datatypes.Diagnostic{broken}},
	}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{})
	var reports []BuildReport
	_, err := s.RebuildAndLaunch(testCtx(t), testDoc(t), nil, func(r BuildReport) { reports = append(reports, r) })
	assert.ErrorIs(t, err, ErrBuildFailed)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Diagnostics)
	assert.Equal(t, []datatypes.Diagnostic{broken}, reports[0].Instrumentation)
}

func TestRebuildAndLaunch_Handshake(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"garbage", "expected 'OK', got 'HELLO'"},
		{"silent", "deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			b := &fakeBuilder{results: []BuildResult{{Success: true}, {Success: true, ArtifactPath: artifact(t)}}}
			s := helperSupervisor(t, tt.mode, b, &fakeInstrumenter{})
			_, err := s.RebuildAndLaunch(testCtx(t), testDoc(t), nil, nil)
			require.ErrorIs(t, err, ErrHandshake)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRebuildAndLaunch_MissingArtifact(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	b := &fakeBuilder{results: []BuildResult{{Success: true}, {Success: true, ArtifactPath: missing}}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{})
	_, err := s.RebuildAndLaunch(testCtx(t), testDoc(t), nil, nil)
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestRebuildAndLaunch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &fakeBuilder{errs: []error{context.Canceled}}
	s := helperSupervisor(t, "ok", b, &fakeInstrumenter{})
	_, err := s.RebuildAndLaunch(ctx, testDoc(t), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
