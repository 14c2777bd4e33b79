// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package asyncproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The test binary doubles as the child process.
func TestMain(m *testing.M) {
	if mode := os.Getenv("ASYNCPROC_HELPER"); mode != "" {
		runHelper(mode)
		return
	}
	os.Exit(m.Run())
}

func runHelper(mode string) {
	switch mode {
	case "echo":
		fmt.Println("OK")
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			if in.Text() == "quit" {
				os.Exit(0)
			}
			fmt.Println(strings.ToUpper(in.Text()))
		}
		os.Exit(0)
	case "exit3":
		fmt.Println("bye")
		fmt.Fprintln(os.Stderr, "something went wrong")
		os.Exit(3)
	case "longline":
		fmt.Println("OK")
		fmt.Println(strings.Repeat("x", 300_000))
		fmt.Println("after")
		time.Sleep(time.Hour)
	case "hang":
		fmt.Println("OK")
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

func helper(mode string) Config {
	return Config{
		Path: os.Args[0],
		Args: []string{"-test.run=^$"},
		Env:  []string{"ASYNCPROC_HELPER=" + mode},
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestProcess_HandshakeAndEcho(t *testing.T) {
	ctx := testCtx(t)
	p, err := Start(ctx, helper("echo"))
	require.NoError(t, err)
	defer p.Close()

	line, err := p.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", line)

	require.NoError(t, p.Send(ctx, "hello"))
	line, err = p.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", line)

	require.NoError(t, p.Send(ctx, "quit"))
	_, err = p.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Err())
}

func TestProcess_ExitStatus(t *testing.T) {
	ctx := testCtx(t)
	p, err := Start(ctx, helper("exit3"))
	require.NoError(t, err)

	var got []string
	for line := range p.Lines() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"bye"}, got)

	var exitErr *ExitError
	require.True(t, errors.As(p.Err(), &exitErr), "err = %v", p.Err())
	assert.Equal(t, 3, exitErr.Code)
	assert.NoError(t, p.Close())
}

func TestProcess_CloseKillsOnce(t *testing.T) {
	ctx := testCtx(t)
	p, err := Start(ctx, helper("hang"))
	require.NoError(t, err)

	line, err := p.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "OK", line)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	select {
	case <-p.Exited():
	default:
		t.Fatal("process not reaped after Close")
	}
	assert.NoError(t, p.Err(), "a killed process is not a failure")
	assert.ErrorIs(t, p.Send(ctx, "late"), ErrClosed)
}

func TestProcess_ContextCancelKills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := Start(ctx, helper("hang"))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.ReadLine(testCtx(t))
	require.NoError(t, err)

	cancel()
	select {
	case <-p.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("process survived context cancellation")
	}
}

func TestProcess_ReadLineHonorsContext(t *testing.T) {
	p, err := Start(testCtx(t), helper("hang"))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.ReadLine(testCtx(t))
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.ReadLine(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcess_LineTooLongKillsAndReports(t *testing.T) {
	ctx := testCtx(t)
	cfg := helper("longline")
	cfg.MaxLineBytes = 64 * 1024
	p, err := Start(ctx, cfg)
	require.NoError(t, err)
	defer p.Close()

	line, err := p.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", line)

	_, err = p.ReadLine(ctx)
	require.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.ErrorIs(t, p.Err(), ErrLineTooLong)

	select {
	case <-p.Exited():
	case <-ctx.Done():
		t.Fatal("process was not reaped")
	}
}

func TestStart_NotInstalled(t *testing.T) {
	_, err := Start(context.Background(), Config{Path: "definitely-not-a-real-binary-xyz"})
	assert.ErrorIs(t, err, ErrNotInstalled)
}
