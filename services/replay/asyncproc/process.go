// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package asyncproc wraps a spawned subprocess with line-based send and
// receive and a kill-once teardown.
package asyncproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultMaxLineBytes bounds a single line read from the process.
const DefaultMaxLineBytes = 1 << 20

// Config describes the process to start.
type Config struct {
	// Path is the executable. Looked up in PATH when it has no separator.
	Path string

	// Args are passed after Path.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Env is appended to the parent's environment.
	Env []string

	// Stderr receives the child's stderr. Nil logs it at debug level.
	Stderr io.Writer

	// MaxLineBytes bounds a single stdout line. Zero means DefaultMaxLineBytes.
	MaxLineBytes int

	// WaitDelay bounds how long Close waits for pipes after the kill.
	WaitDelay time.Duration

	// Logger is used for lifecycle logs. Nil means slog.Default().
	Logger *slog.Logger
}

// Process is a running subprocess.
//
// Description:
//
//	Stdout is read line by line by a background goroutine and delivered on
//	Lines(). The channel is closed when stdout ends, after the process has
//	been reaped. Send writes one line to stdin.
//
// Thread Safety:
//
//	Send, Close, Err and Lines are safe for concurrent use. Lines() should
//	have a single consumer.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	lines  chan string
	closed chan struct{}
	exited chan struct{}

	writeMu sync.Mutex

	closeOnce sync.Once
	killed    bool
	killMu    sync.Mutex

	errMu sync.Mutex
	err   error
}

// Start spawns the process described by cfg.
//
// Description:
//
//	The process is bound to ctx: when ctx is done the whole process group
//	is killed. Start does not wait for any output; use ReadLine for a
//	handshake.
//
// Inputs:
//
//	ctx - Lifetime of the process.
//	cfg - What to run.
//
// Outputs:
//
//	*Process - The running process.
//	error - ErrNotInstalled if the executable cannot be found, or the
//	        wrapped start error.
func Start(ctx context.Context, cfg Config) (*Process, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path, err := exec.LookPath(cfg.Path)
	if err != nil {
		recordSpawn(ctx, false)
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, cfg.Path)
	}

	p := &Process{
		logger: logger,
		lines:  make(chan string),
		closed: make(chan struct{}),
		exited: make(chan struct{}),
	}

	cmd := exec.CommandContext(ctx, path, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		p.kill()
		return nil
	}
	cmd.WaitDelay = cfg.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}
	if cfg.Stderr != nil {
		cmd.Stderr = cfg.Stderr
	} else {
		cmd.Stderr = &logWriter{logger: logger, pid: func() int { return p.Pid() }}
	}

	p.stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	p.cmd = cmd
	if err := cmd.Start(); err != nil {
		recordSpawn(ctx, false)
		return nil, fmt.Errorf("start process: %w", err)
	}
	recordSpawn(ctx, true)

	logger.Debug("Process started",
		slog.String("path", path),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("dir", cfg.Dir),
	)

	maxLine := cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	go p.readLoop(stdout, maxLine)
	return p, nil
}

// readLoop delivers stdout lines until EOF, then reaps the process.
func (p *Process) readLoop(stdout io.Reader, maxLine int) {
	defer close(p.lines)
	defer close(p.exited)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.closed:
			// Nobody is listening any more. Drain so the child never
			// blocks on a full pipe before it dies.
			_, _ = io.Copy(io.Discard, stdout)
			p.reap(nil)
			return
		}
	}
	readErr := scanner.Err()
	if errors.Is(readErr, bufio.ErrTooLong) {
		// The rest of the stream cannot be framed; stop the child so the
		// failure shows up as its exit.
		readErr = fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, maxLine)
		p.logger.Warn("Process output line too long", slog.Int("pid", p.Pid()), slog.Int("limit", maxLine))
		p.kill()
	}
	p.reap(readErr)
}

func (p *Process) reap(readErr error) {
	waitErr := p.cmd.Wait()

	p.killMu.Lock()
	killed := p.killed
	p.killMu.Unlock()

	var err error
	switch {
	case errors.Is(readErr, ErrLineTooLong):
		err = fmt.Errorf("read stdout: %w", readErr)
	case readErr != nil && !killed:
		err = fmt.Errorf("read stdout: %w", readErr)
	case waitErr != nil && !killed:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			err = &ExitError{Code: exitErr.ExitCode(), Err: waitErr}
		} else {
			err = waitErr
		}
	}
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()

	p.logger.Debug("Process exited",
		slog.Int("pid", p.Pid()),
		slog.Bool("killed", killed),
		slog.Any("error", err),
	)
}

// Lines returns the channel of stdout lines, without newlines. It is closed
// once stdout ends and the process has been reaped.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// ReadLine waits for the next stdout line.
//
// Outputs:
//
//	string - The line.
//	error - ErrClosed (wrapping the process error, if any) when stdout has
//	        ended, or ctx.Err().
func (p *Process) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-p.lines:
		if !ok {
			if err := p.Err(); err != nil {
				return "", fmt.Errorf("%w: %w", ErrClosed, err)
			}
			return "", ErrClosed
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Send writes line and a newline to the process's stdin.
func (p *Process) Send(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrClosed
	case <-p.exited:
		return ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Close kills the process group and waits until the process is reaped.
// Safe to call more than once; the kill happens exactly once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.kill()
		_ = p.stdin.Close()
	})
	<-p.exited
	return nil
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err returns the process failure once it has exited: a read error
// (including ErrLineTooLong) or an *ExitError. It is nil for a clean exit,
// for a process killed by Close, and while the process is running.
func (p *Process) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Pid returns the process id.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) kill() {
	p.killMu.Lock()
	defer p.killMu.Unlock()
	if p.killed {
		return
	}
	p.killed = true
	select {
	case <-p.exited:
		return
	default:
	}
	if err := killProcessGroup(p.cmd); err != nil {
		p.logger.Debug("Kill failed", slog.Int("pid", p.Pid()), slog.String("error", err.Error()))
		return
	}
	recordKill(context.Background())
}

// logWriter forwards the child's stderr to the logger, one record per line.
type logWriter struct {
	logger *slog.Logger
	pid    func() int
	mu     sync.Mutex
	buf    strings.Builder
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(b)
	s := w.buf.String()
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		w.logger.Debug("Process stderr", slog.Int("pid", w.pid()), slog.String("line", s[:i]))
		s = s[i+1:]
	}
	w.buf.Reset()
	w.buf.WriteString(s)
	return len(b), nil
}
