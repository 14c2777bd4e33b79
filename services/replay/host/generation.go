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
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReplay/services/replay/supervisor"
	"github.com/AleutianAI/AleutianReplay/services/replay/telemetry"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// genEvent is sent by a generation goroutine to the loop.
type genEvent struct {
	report *supervisor.BuildReport
	proc   supervisor.Process
	err    error
}

// generation is one rebuild-and-launch attempt.
type generation struct {
	id     int64
	ctx    context.Context
	cancel context.CancelFunc

	// events carries at most one report and one launch result. Buffered so
	// the goroutine never blocks on a loop that moved on.
	events chan genEvent
	done   chan struct{}
}

func newGeneration(parent context.Context, id int64) *generation {
	ctx, cancel := context.WithCancel(parent)
	return &generation{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan genEvent, 3),
		done:   make(chan struct{}),
	}
}

// run waits for prev, then rebuilds and launches doc.
func (g *generation) run(launcher Launcher, doc *workspace.Document, prev *generation, prevProc supervisor.Process, logger *slog.Logger) {
	defer close(g.done)

	if prev != nil {
		<-prev.done
		prev.closeOrphan(logger)
	}
	if g.ctx.Err() != nil {
		// Superseded before it started; still release the previous process.
		if prevProc != nil {
			_ = prevProc.Close()
		}
		g.events <- genEvent{err: g.ctx.Err()}
		return
	}

	ctx, span := tracer.Start(g.ctx, "Orchestrator.generation",
		trace.WithAttributes(attribute.Int64("replay.generation", g.id)),
	)
	defer span.End()

	reported := false
	report := func(r supervisor.BuildReport) {
		if reported {
			return
		}
		reported = true
		g.events <- genEvent{report: &r}
	}

	proc, err := launcher.RebuildAndLaunch(ctx, doc, prevProc, report)
	if proc != nil && g.ctx.Err() != nil {
		_ = proc.Close()
		proc, err = nil, g.ctx.Err()
	}
	if err != nil {
		telemetry.RecordError(span, err, attribute.Bool("replay.superseded", g.ctx.Err() != nil))
	}
	g.events <- genEvent{proc: proc, err: err}
}

// closeOrphan closes a process this generation launched but the loop never
// took over. Only valid once done is closed and the loop stopped reading
// events.
func (g *generation) closeOrphan(logger *slog.Logger) {
	for {
		select {
		case ev := <-g.events:
			if ev.proc != nil {
				logger.Debug("Closing orphaned process", slog.Int64("generation", g.id))
				_ = ev.proc.Close()
			}
		default:
			return
		}
	}
}
