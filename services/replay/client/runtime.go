// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/protocol"
)

const (
	defaultQueueSize = 1024
	maxCommandLine   = 16 << 20
)

// Config configures a Runtime.
type Config struct {
	// Autoruns are run, in order, after the main program returns.
	Autoruns []datatypes.Autorun

	// QueueSize bounds the reports waiting for the Run loop.
	// Default: 1024
	QueueSize int

	// Logger receives diagnostics about the runtime itself. It must not
	// write to the protocol stream. Nil means slog.Default().
	Logger *slog.Logger
}

// item is one event for the Run loop, posted by the program side.
type item struct {
	li      lineItem
	errText string
	end     bool
}

// Runtime is one client session.
//
// # Description
//
// Run owns every piece of state: reports from the program and commands
// from the host are handled on its goroutine, in the order each side
// produced them. Log and Output may be called from any goroutine.
//
// # Thread Safety
//
// Log, Output and Report are safe for concurrent use. Run must be called
// once.
type Runtime struct {
	in       io.Reader
	out      io.Writer
	registry *Registry
	autoruns []datatypes.Autorun
	logger   *slog.Logger

	items    chan item
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a runtime reading host commands from in and writing protocol
// lines to out.
func New(in io.Reader, out io.Writer, registry *Registry, config Config) *Runtime {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		in:       in,
		out:      out,
		registry: registry,
		autoruns: config.Autoruns,
		logger:   logger,
		items:    make(chan item, config.QueueSize),
		stopped:  make(chan struct{}),
	}
}

// =============================================================================
// REPORTING
// =============================================================================

// Log reports the value of an instrumented declaration or expression. A
// non-empty id is shown as "id=value".
func (r *Runtime) Log(file string, line int, id string, value any) {
	r.Report(file, line, FormatValue(id, value))
}

// Output reports text the program wrote to its console on line.
func (r *Runtime) Output(file string, line int, text string) {
	if text == "" {
		return
	}
	r.Report(file, line, QuoteOutput(text))
}

// Report records raw content for a 0-based line. A file name the protocol
// cannot carry is reported to the host as an error instead.
func (r *Runtime) Report(file string, line int, content string) {
	if !protocol.ValidFile(file) || line < 0 {
		r.post(item{errText: fmt.Sprintf("Cannot report '%s:(%d)'", file, line)})
		return
	}
	r.post(item{li: newLineItem(file, line, content)})
}

func (r *Runtime) post(it item) {
	select {
	case r.items <- it:
	case <-r.stopped:
	}
}

// FormatValue renders a reported value.
func FormatValue(id string, value any) string {
	s := "nil"
	if value != nil {
		s = fmt.Sprint(value)
	}
	if id == "" {
		return s
	}
	return id + "=" + s
}

var outputEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`)

// QuoteOutput renders console text as a quoted, escaped string.
func QuoteOutput(text string) string {
	return `"` + outputEscaper.Replace(text) + `"`
}

// =============================================================================
// RUN LOOP
// =============================================================================

// Run serves the host until it closes stdin.
//
// Description:
//
//	Prints the handshake, starts program (which may be nil) on its own
//	goroutine and then answers host commands and records reports. When
//	program returns, the autoruns run; then the run is reconciled against
//	the host's belief and "END run" is printed. Run keeps answering
//	commands after that; a WATCH that arrives once the run has ended is
//	answered with removals for the advertised lines the run never
//	produced, so the host's END run sweep may precede it.
//
// Inputs:
//
//	ctx - Cancels the session. Also passed to program.
//	program - The main program.
//
// Outputs:
//
//	error - ErrHostClosed when stdin ends, a read or write error, or
//	        ctx.Err().
func (r *Runtime) Run(ctx context.Context, program func(context.Context) error) error {
	defer r.stopOnce.Do(func() { close(r.stopped) })

	w := bufio.NewWriter(r.out)
	emit := func(lines ...string) error {
		for _, l := range lines {
			if _, err := w.WriteString(l + "\n"); err != nil {
				return err
			}
		}
		return w.Flush()
	}
	if err := emit(protocol.Handshake); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}

	commands := make(chan string)
	readErr := make(chan error, 1)
	go r.readCommands(commands, readErr)
	go r.runProgram(ctx, program)

	st := newState()
	for {
		var out []string
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-commands:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("read command: %w", err)
				}
				return ErrHostClosed
			}
			out = r.handleCommand(st, line)

		case it := <-r.items:
			switch {
			case it.end:
				out = st.endRun()
			case it.errText != "":
				out = []string{protocol.EncodeError(it.errText)}
			default:
				if l, ok := st.record(it.li); ok {
					out = []string{l}
				}
			}
		}
		if len(out) > 0 {
			if err := emit(out...); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (r *Runtime) handleCommand(st *state, line string) []string {
	switch cmd := protocol.DecodeHostLine(line).(type) {
	case protocol.WatchCommand:
		return st.watch(cmd)
	case protocol.FilesCommand:
		return st.files()
	case protocol.DumpCommand:
		return st.dump()
	case protocol.UnknownCommand:
		var de *protocol.DecodeError
		if errors.As(cmd.Err, &de) && errors.Is(cmd.Err, protocol.ErrMalformedLine) {
			return []string{protocol.EncodeError(de.Error())}
		}
		return []string{protocol.EncodeError(fmt.Sprintf("Client expected one FILES|DUMP|WATCH, got '%s'", cmd.Line))}
	}
	return nil
}

func (r *Runtime) readCommands(commands chan<- string, readErr chan<- error) {
	defer close(commands)
	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 64*1024), maxCommandLine)
	for sc.Scan() {
		select {
		case commands <- sc.Text():
		case <-r.stopped:
			readErr <- nil
			return
		}
	}
	readErr <- sc.Err()
}

// runProgram runs the main program and the autoruns, then ends the run.
func (r *Runtime) runProgram(ctx context.Context, program func(context.Context) error) {
	if program != nil {
		if err := call(func() error { return program(ctx) }); err != nil {
			r.post(item{errText: "Program failed: " + err.Error()})
		}
	}
	for _, a := range r.autoruns {
		r.autorun(a)
	}
	r.post(item{end: true})
}

func (r *Runtime) autorun(a datatypes.Autorun) {
	fn, ok := r.registry.Lookup(a.Name())
	if !ok {
		r.post(item{errText: fmt.Sprintf("AUTORUN '%s' not found", a.Name())})
		return
	}
	r.logger.Debug("Running autorun", slog.String("name", a.Name()))
	if err := call(fn); err != nil {
		r.Report(a.File, a.Line, "TEST FAILED - "+describeFailure(err))
	}
}

// call runs fn and turns a panic into an error.
func call(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", p)
		}
	}()
	return fn()
}

func describeFailure(err error) string {
	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		return fmt.Sprintf("EXPECTED '%s' - ACTUAL '%s'", mismatch.Expected, mismatch.Actual)
	}
	return err.Error()
}

// =============================================================================
// PROCESS ENTRY POINT
// =============================================================================

var current atomic.Pointer[Runtime]

// Log reports through the runtime started by Main. It does nothing before
// Main has been called.
func Log(file string, line int, id string, value any) {
	if r := current.Load(); r != nil {
		r.Log(file, line, id, value)
	}
}

// Output reports console text through the runtime started by Main.
func Output(file string, line int, text string) {
	if r := current.Load(); r != nil {
		r.Output(file, line, text)
	}
}

// Main runs program under a runtime bound to the process's stdin and
// stdout and exits the process when the host goes away.
//
// Autoruns are read from REPLAY_AUTORUNS. A malformed value is reported
// to the host and no autoruns run.
func Main(registry *Registry, program func(context.Context) error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	autoruns, err := datatypes.ParseAutoruns(os.Getenv(datatypes.AutorunEnv))
	rt := New(os.Stdin, os.Stdout, registry, Config{Autoruns: autoruns, Logger: logger})
	current.Store(rt)
	if err != nil {
		rt.post(item{errText: err.Error()})
	}

	err = rt.Run(context.Background(), program)
	if errors.Is(err, ErrHostClosed) {
		os.Exit(0)
	}
	logger.Error("Replay client stopped", slog.String("error", err.Error()))
	os.Exit(1)
}
