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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianReplay/services/replay/adornments"
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/protocol"
	"github.com/AleutianAI/AleutianReplay/services/replay/supervisor"
)

// =============================================================================
// LOOP
// =============================================================================

func (o *Orchestrator) loop() {
	defer close(o.loopDone)
	var failure error
	defer func() { o.teardown(failure) }()

	for {
		select {
		case <-o.ctx.Done():
			return

		case <-o.queue.signal:
			for o.ctx.Err() == nil {
				cmd, ok := o.queue.pop()
				if !ok {
					break
				}
				if err := o.handleCommand(cmd); err != nil {
					failure = err
					return
				}
			}

		case ev := <-o.genEvents:
			if err := o.handleGenEvent(ev); err != nil {
				failure = err
				return
			}

		case line, ok := <-o.lines:
			var err error
			if !ok {
				err = o.handleExit()
			} else {
				err = o.handleLine(line)
			}
			if err != nil {
				failure = err
				return
			}
		}
	}
}

// teardown runs when the loop exits. failure is a sink error or nil.
func (o *Orchestrator) teardown(failure error) {
	if failure != nil {
		o.errMu.Lock()
		o.err = failure
		o.errMu.Unlock()
		o.logger.Error("Orchestrator stopped", slog.String("error", failure.Error()))
	}
	o.cancel()

	o.run.resolve(failure)
	o.run = nil
	for _, w := range o.fifo {
		w.completion.resolve(failure)
	}
	o.fifo = nil
	for _, cmd := range o.queue.close() {
		cmd.completion.resolve(failure)
	}

	if o.gen != nil {
		<-o.gen.done
		o.gen.closeOrphan(o.logger)
	}
	if o.proc != nil {
		if err := o.proc.Close(); err != nil {
			o.logger.Debug("Closing process failed", slog.String("error", err.Error()))
		}
		o.proc = nil
	}
	o.setState(StateDisposed)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (o *Orchestrator) handleCommand(cmd command) error {
	switch {
	case cmd.change != nil:
		return o.handleChange(cmd.change, cmd.completion)
	case cmd.watch != nil:
		return o.handleWatch(*cmd.watch, cmd.completion)
	default:
		return o.handleDebug(cmd.debugVerb, cmd.completion)
	}
}

func (o *Orchestrator) handleChange(change *changeCommand, completion *Completion) error {
	o.run.resolve(ErrSuperseded)
	o.run = completion
	for _, w := range o.fifo {
		w.completion.resolve(ErrSuperseded)
	}
	o.fifo = nil
	o.runEnded = false

	for _, edit := range change.edits {
		dropped := o.db.ShiftOnEdit(edit.File, edit.Line, edit.OldCount, edit.NewCount)
		for _, a := range dropped {
			if err := o.notifyRemove(a); err != nil {
				return err
			}
		}
	}
	o.doc = change.doc

	prev := o.gen
	if prev != nil {
		prev.cancel()
	}
	prevProc := o.proc
	o.proc, o.lines, o.sentWindow = nil, nil, nil

	o.genCounter++
	o.gen = newGeneration(o.ctx, o.genCounter)
	o.genEvents = o.gen.events
	go o.gen.run(o.launcher, change.doc, prev, prevProc, o.logger)

	o.setState(StateBuilding)
	recordGeneration(o.ctx)
	o.logger.Debug("Generation started",
		slog.Int64("generation", o.genCounter),
		slog.Int("edits", len(change.edits)),
	)
	return nil
}

func (o *Orchestrator) handleWatch(window datatypes.WatchWindow, completion *Completion) error {
	for _, a := range o.db.DiffWindow(window) {
		if _, ok := o.shown[a.Tag]; ok {
			continue
		}
		if err := o.notifyAdd(a); err != nil {
			return err
		}
	}

	o.window = &window
	if o.lines == nil {
		completion.resolve(nil)
		return nil
	}
	if o.sentWindow != nil && *o.sentWindow == window {
		completion.resolve(nil)
		return nil
	}
	o.sendWatch(window, completion)
	return nil
}

func (o *Orchestrator) handleDebug(verb string, completion *Completion) error {
	defer completion.resolve(nil)
	if o.lines == nil {
		return nil
	}
	line := protocol.EncodeFiles()
	if verb == protocol.VerbDump {
		line = protocol.EncodeDump()
	}
	o.send(line)
	return nil
}

// sendWatch issues a correlation, queues its waiter and sends the WATCH
// with the hashes the host already holds inside window.
func (o *Orchestrator) sendWatch(window datatypes.WatchWindow, completion *Completion) {
	o.lastCorrelation++
	correlation := strconv.FormatInt(o.lastCorrelation, 10)
	o.fifo = append(o.fifo, pendingWatch{correlation: correlation, completion: completion, sentAt: time.Now()})

	known := o.db.DiffWindow(window)
	o.db.MarkAdvertised(window)
	w := window
	o.sentWindow = &w
	o.send(protocol.EncodeWatch(correlation, window, known))
	o.setState(StateWatching)
}

func (o *Orchestrator) send(line string) {
	if o.proc == nil {
		return
	}
	if err := o.proc.Send(o.gen.ctx, line); err != nil {
		// The exit shows up as the end of Lines.
		o.logger.Debug("Send to process failed", slog.String("error", err.Error()))
	}
}

// =============================================================================
// GENERATION EVENTS
// =============================================================================

func (o *Orchestrator) handleGenEvent(ev genEvent) error {
	if ev.report != nil {
		return o.applyReport(*ev.report)
	}
	o.genEvents = nil

	if ev.err == nil {
		o.proc = ev.proc
		o.lines = ev.proc.Lines()
		o.db.BeginRun()
		o.setState(StateRunning)
		if o.window != nil {
			o.sendWatch(*o.window, nil)
		}
		return nil
	}

	o.setState(StateIdle)
	err := ev.err
	switch {
	case errors.Is(err, supervisor.ErrBuildFailed), errors.Is(err, supervisor.ErrNoDocument):
		o.run.resolve(nil)
		o.run = nil
		return nil
	case errors.Is(err, context.Canceled):
		o.run.resolve(nil)
		o.run = nil
		return nil
	case errors.Is(err, supervisor.ErrBuilderCrashed):
		o.run.resolve(err)
		o.run = nil
		return o.sink.OnError(o.ctx, fmt.Sprintf("Build failed: '%v'", err))
	case errors.Is(err, supervisor.ErrInstrumentFailed):
		o.run.resolve(err)
		o.run = nil
		return o.sink.OnError(o.ctx, fmt.Sprintf("Instrumenting error: '%v'", err))
	default:
		o.run.resolve(err)
		o.run = nil
		return o.sink.OnError(o.ctx, fmt.Sprintf("Launch failed: '%v'", err))
	}
}

// applyReport diffs the reported diagnostics against the stored ones.
func (o *Orchestrator) applyReport(report supervisor.BuildReport) error {
	removed, added := o.db.DiffDiagnostics(report.Diagnostics)
	for _, d := range removed {
		if err := o.sink.OnDiagnosticChanged(o.ctx, false, d); err != nil {
			return err
		}
	}
	for _, d := range added {
		if err := o.sink.OnDiagnosticChanged(o.ctx, true, d); err != nil {
			return err
		}
	}
	for _, d := range report.Instrumentation {
		if err := o.sink.OnError(o.ctx, fmt.Sprintf("Instrumenting error: '%s'", d)); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// PROCESS OUTPUT
// =============================================================================

func (o *Orchestrator) handleLine(line string) error {
	switch msg := protocol.DecodeClientLine(line).(type) {
	case protocol.ReplayAdd:
		if o.window == nil {
			return o.protocolError("Host received 'REPLAY add' but isn't watching any files")
		}
		content := msg.Content
		change, err := o.db.ApplyReplay(msg.File, msg.Line, msg.Hash, &content)
		if err != nil {
			return o.protocolError(fmt.Sprintf("Host database rejected '%s': %v", line, err))
		}
		return o.notifyChange(change)

	case protocol.ReplayRemove:
		change, err := o.db.ApplyReplay(msg.File, msg.Line, msg.Hash, nil)
		if nerr := o.notifyChange(change); nerr != nil {
			return nerr
		}
		if err != nil {
			return o.protocolError(fmt.Sprintf("Host database lacks '%s'", line))
		}
		return nil

	case protocol.EndRun:
		if o.window != nil {
			for _, a := range o.db.EndRun(*o.window) {
				if err := o.notifyRemove(a); err != nil {
					return err
				}
			}
		}
		if len(o.fifo) > 0 {
			// The client finished before reading these WATCHes and settles
			// the advertised lines in its replies.
			o.runEnded = true
			return nil
		}
		o.run.resolve(nil)
		o.run = nil
		return nil

	case protocol.EndWatch:
		if len(o.fifo) == 0 {
			return o.protocolError(fmt.Sprintf("Not expecting '%s'", line))
		}
		head := o.fifo[0]
		if head.correlation != msg.Correlation {
			return o.protocolError(fmt.Sprintf("Expecting 'END watch %s', got '%s'", head.correlation, line))
		}
		o.fifo = o.fifo[1:]
		recordWatchRoundTrip(o.ctx, time.Since(head.sentAt))
		head.completion.resolve(nil)
		if len(o.fifo) == 0 {
			o.setState(StateRunning)
			if o.runEnded {
				o.runEnded = false
				o.run.resolve(nil)
				o.run = nil
			}
		}
		return nil

	case protocol.ClientError:
		return o.sink.OnError(o.ctx, "CLIENT: "+msg.Text)

	case protocol.Debug:
		if !o.config.ForwardDebug {
			o.logger.Debug("Client debug", slog.String("text", msg.Text))
			return nil
		}
		return o.sink.OnError(o.ctx, "CLIENT DEBUG: "+msg.Text)

	case protocol.FileEntry, protocol.DumpEntry:
		return o.sink.OnError(o.ctx, "CLIENT: "+line)

	case protocol.Unrecognized:
		return o.protocolError(fmt.Sprintf("Host %v", msg.Err))

	default:
		return o.protocolError(fmt.Sprintf("Host expected REPLAY, got '%s'", line))
	}
}

// handleExit runs when the process's output ends.
func (o *Orchestrator) handleExit() error {
	exitErr := o.proc.Err()
	o.lines = nil
	o.sentWindow = nil
	o.setState(StateIdle)

	// A run that already reported END run succeeded even if its WATCH
	// replies never arrived.
	if o.runEnded {
		o.runEnded = false
		o.run.resolve(nil)
		o.run = nil
	}
	pending := ""
	switch {
	case o.run != nil:
		pending = "END run"
	case len(o.fifo) > 0:
		pending = "END watch " + o.fifo[0].correlation
	}
	o.run.resolve(ErrProcessExited)
	o.run = nil
	for _, w := range o.fifo {
		w.completion.resolve(ErrProcessExited)
	}
	o.fifo = nil

	o.logger.Debug("Process output ended", slog.String("pending", pending))
	switch {
	case pending != "" && exitErr != nil:
		return o.sink.OnError(o.ctx, fmt.Sprintf("Process exited before '%s': '%v'", pending, exitErr))
	case pending != "":
		return o.sink.OnError(o.ctx, fmt.Sprintf("Process exited before '%s'", pending))
	case exitErr != nil:
		return o.sink.OnError(o.ctx, fmt.Sprintf("Process exited: '%v'", exitErr))
	}
	return nil
}

func (o *Orchestrator) protocolError(message string) error {
	recordProtocolError(o.ctx)
	return o.sink.OnError(o.ctx, message)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (o *Orchestrator) notifyChange(change adornments.Change) error {
	if change.Removed != nil {
		if err := o.notifyRemove(*change.Removed); err != nil {
			return err
		}
	}
	if change.Added != nil {
		return o.notifyAdd(*change.Added)
	}
	return nil
}

func (o *Orchestrator) notifyAdd(a datatypes.Adornment) error {
	o.shown[a.Tag] = struct{}{}
	recordNotification(o.ctx, true)
	return o.sink.OnAdornmentChanged(o.ctx, true, a.Tag, a.File, a.Line, a.Content)
}

// notifyRemove retires a tag the editor has been shown.
func (o *Orchestrator) notifyRemove(a datatypes.Adornment) error {
	if _, ok := o.shown[a.Tag]; !ok {
		return nil
	}
	delete(o.shown, a.Tag)
	recordNotification(o.ctx, false)
	return o.sink.OnAdornmentChanged(o.ctx, false, a.Tag, a.File, a.Line, a.Content)
}
