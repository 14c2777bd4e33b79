// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianReplay/services/replay/adornments"
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/protocol"
	"github.com/AleutianAI/AleutianReplay/services/replay/supervisor"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// EditorSink receives every change the editor has to show. Each call is
// awaited before the loop handles the next event. A returned error means
// the editor is gone and stops the Orchestrator.
type EditorSink interface {
	// OnAdornmentChanged adds or removes one adornment. Line is 0-based.
	OnAdornmentChanged(ctx context.Context, isAdd bool, tag int64, file string, line int, content string) error

	// OnDiagnosticChanged adds or removes one diagnostic, identified by its tag.
	OnDiagnosticChanged(ctx context.Context, isAdd bool, diagnostic datatypes.Diagnostic) error

	// OnError shows a one-shot error.
	OnError(ctx context.Context, message string) error
}

// Launcher rebuilds the document and launches the instrumented process.
//
// *supervisor.Supervisor implements it.
type Launcher interface {
	RebuildAndLaunch(ctx context.Context, doc *workspace.Document, prev supervisor.Process, report supervisor.ReportFunc) (supervisor.Process, error)
}

// =============================================================================
// STATE
// =============================================================================

// State is the Orchestrator's life cycle state.
type State int32

const (
	// StateIdle means no process is alive.
	StateIdle State = iota

	// StateBuilding means a generation is building or launching.
	StateBuilding

	// StateRunning means a process is alive and no WATCH is outstanding.
	StateRunning

	// StateWatching means at least one WATCH awaits its END watch.
	StateWatching

	// StateDisposed means the loop has exited.
	StateDisposed
)

var stateNames = [...]string{"idle", "building", "running", "watching", "disposed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures the Orchestrator.
type Config struct {
	// ForwardDebug forwards the client's DEBUG lines to EditorSink.OnError.
	// When false they are only logged.
	ForwardDebug bool

	// ShutdownGrace bounds how long Dispose waits for the loop when its own
	// context has no deadline. Default: 10s
	ShutdownGrace time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ForwardDebug:  true,
		ShutdownGrace: 10 * time.Second,
	}
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// pendingWatch is an outstanding WATCH. completion is nil for the WATCH
// sent on launch.
type pendingWatch struct {
	correlation string
	completion  *Completion
	sentAt      time.Time
}

// Orchestrator owns one replay session.
//
// Description:
//
//	Created by New, which starts the event loop. Commands are queued
//	without blocking and return a Completion. Dispose stops the loop,
//	closes the process and resolves everything still pending.
//
// Thread Safety:
//
//	Exported methods are safe for concurrent use. Fields below the loop
//	marker are only touched by the loop goroutine.
type Orchestrator struct {
	config   Config
	launcher Launcher
	sink     EditorSink
	logger   *slog.Logger

	queue    *commandQueue
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	state    atomic.Int32

	errMu sync.Mutex
	err   error

	// Owned by the loop goroutine.
	db              *adornments.Database
	shown           map[int64]struct{}
	doc             *workspace.Document
	gen             *generation
	genEvents       <-chan genEvent
	genCounter      int64
	proc            supervisor.Process
	lines           <-chan string
	window          *datatypes.WatchWindow
	sentWindow      *datatypes.WatchWindow
	fifo            []pendingWatch
	run             *Completion
	runEnded        bool
	lastCorrelation int64
}

// New creates an Orchestrator and starts its event loop.
//
// Inputs:
//
//	config - Behavior settings.
//	launcher - Builds and launches processes, usually a *supervisor.Supervisor.
//	sink - Receives editor notifications. Must not be nil.
//	logger - Nil means slog.Default().
//
// Outputs:
//
//	*Orchestrator - Running. Call Dispose when done.
func New(config Config, launcher Launcher, sink EditorSink, logger *slog.Logger) *Orchestrator {
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultConfig().ShutdownGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		config:   config,
		launcher: launcher,
		sink:     sink,
		logger:   logger,
		queue:    newCommandQueue(),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
		db:       adornments.NewDatabase(),
		shown:    make(map[int64]struct{}),
	}
	o.state.Store(int32(StateIdle))
	go o.loop()
	return o
}

// State returns the current life cycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Err returns the error that stopped the loop, if any.
func (o *Orchestrator) Err() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.err
}

// ChangeDocument starts a new generation for doc.
//
// Description:
//
//	Lines [line, line+oldCount) of file were replaced by newCount lines.
//	Adornments are shifted before the rebuild starts; adornments on the
//	replaced lines are removed. An empty file skips the shift, as when a
//	project is first loaded. A nil doc unloads the project: diagnostics
//	are cleared and the process is closed.
//
// Outputs:
//
//	*Completion - Resolves nil when the run ends or the build fails, with
//	              ErrSuperseded when another change replaces it, with the
//	              launch error, or with ErrProcessExited.
//	error - ErrDisposed.
func (o *Orchestrator) ChangeDocument(ctx context.Context, doc *workspace.Document, file string, line, oldCount, newCount int) (*Completion, error) {
	var edits []workspace.LineEdit
	if file != "" {
		edits = []workspace.LineEdit{{File: file, Line: line, OldCount: oldCount, NewCount: newCount}}
	}
	return o.ChangeDocumentEdits(ctx, doc, edits)
}

// ChangeDocumentEdits is ChangeDocument for a batch of edits, applied in
// order.
func (o *Orchestrator) ChangeDocumentEdits(ctx context.Context, doc *workspace.Document, edits []workspace.LineEdit) (*Completion, error) {
	return o.enqueue(ctx, command{change: &changeCommand{doc: doc, edits: edits}})
}

// Watch makes window the region of interest.
//
// Description:
//
//	Adornments already known inside window are sent to the editor at once.
//	If a process is alive and window differs from the one it was last
//	sent, a WATCH is sent and the completion resolves on its END watch.
//
// Outputs:
//
//	*Completion - Resolves nil when the client has answered, immediately
//	              when nothing has to be asked, ErrSuperseded or
//	              ErrProcessExited.
//	error - An invalid window or ErrDisposed.
func (o *Orchestrator) Watch(ctx context.Context, window datatypes.WatchWindow) (*Completion, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return o.enqueue(ctx, command{watch: &window})
}

// Debug forwards FILES or DUMP to the running process. Its replies reach
// the editor through OnError.
func (o *Orchestrator) Debug(ctx context.Context, verb string) (*Completion, error) {
	if verb != protocol.VerbFiles && verb != protocol.VerbDump {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDebugVerb, verb)
	}
	return o.enqueue(ctx, command{debugVerb: verb})
}

// Dispose stops the loop, closes the process and resolves every pending
// completion with nil. Safe to call more than once.
//
// Outputs:
//
//	error - The error that stopped the loop, ctx.Err() if the loop did not
//	        stop in time.
func (o *Orchestrator) Dispose(ctx context.Context) error {
	o.cancel()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.ShutdownGrace)
		defer cancel()
	}
	select {
	case <-o.loopDone:
		return o.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) enqueue(ctx context.Context, cmd command) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd.completion = newCompletion()
	if err := o.queue.push(cmd); err != nil {
		return nil, err
	}
	return cmd.completion, nil
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}
