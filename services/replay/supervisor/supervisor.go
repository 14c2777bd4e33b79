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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReplay/services/replay/asyncproc"
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/protocol"
	"github.com/AleutianAI/AleutianReplay/services/replay/telemetry"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// BuildResult is the outcome of one build.
type BuildResult struct {
	// Success is true when an artifact was produced.
	Success bool

	// ArtifactPath is the executable. Empty unless Success.
	ArtifactPath string

	// Diagnostics are the compiler messages, successful or not.
	Diagnostics []datatypes.Diagnostic
}

// Builder compiles a document snapshot.
//
// A returned error means the builder itself failed; compile errors are
// reported through BuildResult.Diagnostics.
type Builder interface {
	Build(ctx context.Context, doc *workspace.Document) (BuildResult, error)
}

// Instrumented is a document rewritten to report line values.
type Instrumented struct {
	Document *workspace.Document
	Autoruns []datatypes.Autorun
}

// Instrumenter rewrites a document so that it reports line values.
type Instrumenter interface {
	Instrument(ctx context.Context, doc *workspace.Document) (Instrumented, error)
}

// Process is the running instrumented program as seen by the host.
//
// *asyncproc.Process implements it.
type Process interface {
	Lines() <-chan string
	Send(ctx context.Context, line string) error
	Close() error
	Err() error
}

// BuildReport carries the diagnostics of one build attempt.
type BuildReport struct {
	// Diagnostics of the original document.
	Diagnostics []datatypes.Diagnostic

	// Instrumentation holds diagnostics that only the instrumented build
	// produced. They are bugs in the instrumenter, not in the user's code.
	Instrumentation []datatypes.Diagnostic
}

// ReportFunc receives the build report. It is called at most once per
// RebuildAndLaunch.
type ReportFunc func(report BuildReport)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures the Supervisor.
type Config struct {
	// HandshakeTimeout bounds the wait for the process's "OK".
	// Default: 10s
	HandshakeTimeout time.Duration

	// Args are passed to the artifact.
	Args []string

	// Env is added to the artifact's environment.
	Env []string

	// WaitDelay bounds how long closing a process waits for its pipes.
	// Default: 2s
	WaitDelay time.Duration

	// Stderr receives the artifact's stderr. Nil logs it at debug level.
	Stderr io.Writer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WaitDelay:        2 * time.Second,
	}
}

// =============================================================================
// SUPERVISOR
// =============================================================================

// Supervisor rebuilds and relaunches the instrumented program.
type Supervisor struct {
	config       Config
	builder      Builder
	instrumenter Instrumenter
	logger       *slog.Logger
}

// New creates a Supervisor.
//
// Inputs:
//
//	config - Launch settings. Zero durations take their defaults.
//	builder - Compiles both the original and the instrumented document.
//	instrumenter - Rewrites the document.
//	logger - Nil means slog.Default().
func New(config Config, builder Builder, instrumenter Instrumenter, logger *slog.Logger) *Supervisor {
	defaults := DefaultConfig()
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.WaitDelay <= 0 {
		config.WaitDelay = defaults.WaitDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		config:       config,
		builder:      builder,
		instrumenter: instrumenter,
		logger:       logger,
	}
}

// RebuildAndLaunch replaces prev with a freshly built process for doc.
//
// Description:
//
//	Closes prev, builds the original document and reports its diagnostics,
//	instruments and builds the instrumented document, then spawns the
//	artifact and waits for its "OK". Compile errors stop the sequence
//	before anything is launched. The process is bound to ctx and is killed
//	when ctx is cancelled.
//
// Inputs:
//
//	ctx - Generation context. Cancellation aborts the sequence.
//	doc - Snapshot to build. Nil unloads: diagnostics are cleared.
//	prev - Process of the previous generation, or nil.
//	report - Receives the diagnostics. May be nil.
//
// Outputs:
//
//	Process - The handshaken process.
//	error - ErrNoDocument, ErrBuildFailed, ErrBuilderCrashed,
//	        ErrInstrumentFailed, ErrLaunch, ErrHandshake or ctx.Err().
func (s *Supervisor) RebuildAndLaunch(ctx context.Context, doc *workspace.Document, prev Process, report ReportFunc) (Process, error) {
	if report == nil {
		report = func(BuildReport) {}
	}
	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Debug("Closing previous process failed", slog.String("error", err.Error()))
		}
	}
	if doc == nil {
		report(BuildReport{})
		return nil, ErrNoDocument
	}

	ctx, span := tracer.Start(ctx, "Supervisor.RebuildAndLaunch",
		trace.WithAttributes(
			attribute.String("replay.root", doc.Root()),
			attribute.Int64("replay.version", doc.Version()),
		),
	)
	defer span.End()

	proc, err := s.rebuildAndLaunch(ctx, doc, report)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return proc, nil
}

func (s *Supervisor) rebuildAndLaunch(ctx context.Context, doc *workspace.Document, report ReportFunc) (Process, error) {
	start := time.Now()
	original, err := s.builder.Build(ctx, doc)
	recordBuild(ctx, "original", time.Since(start), err == nil && original.Success)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrBuilderCrashed, err)
	}
	if !original.Success || datatypes.HasErrors(original.Diagnostics) {
		report(BuildReport{Diagnostics: original.Diagnostics})
		return nil, ErrBuildFailed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instrumented, err := s.instrumenter.Instrument(ctx, doc)
	if err != nil {
		report(BuildReport{Diagnostics: original.Diagnostics})
		return nil, fmt.Errorf("%w: %w", ErrInstrumentFailed, err)
	}
	if instrumented.Document == nil {
		instrumented.Document = doc
	}

	start = time.Now()
	built, err := s.builder.Build(ctx, instrumented.Document)
	recordBuild(ctx, "instrumented", time.Since(start), err == nil && built.Success)
	if err != nil {
		report(BuildReport{Diagnostics: original.Diagnostics})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrBuilderCrashed, err)
	}
	report(BuildReport{
		Diagnostics:     original.Diagnostics,
		Instrumentation: datatypes.Subtract(built.Diagnostics, original.Diagnostics),
	})
	if !built.Success {
		return nil, ErrBuildFailed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.launch(ctx, doc.Root(), built.ArtifactPath, instrumented.Autoruns)
}

// launch spawns the artifact and performs the "OK" handshake.
func (s *Supervisor) launch(ctx context.Context, dir, artifact string, autoruns []datatypes.Autorun) (Process, error) {
	env := append([]string(nil), s.config.Env...)
	if len(autoruns) > 0 {
		env = append(env, datatypes.AutorunEnv+"="+datatypes.EncodeAutoruns(autoruns))
	}

	start := time.Now()
	proc, err := asyncproc.Start(ctx, asyncproc.Config{
		Path:      artifact,
		Args:      s.config.Args,
		Dir:       dir,
		Env:       env,
		Stderr:    s.config.Stderr,
		WaitDelay: s.config.WaitDelay,
		Logger:    s.logger,
	})
	if err != nil {
		recordLaunch(ctx, time.Since(start), "spawn_failed")
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	hctx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()
	line, err := proc.ReadLine(hctx)
	if err != nil {
		_ = proc.Close()
		recordLaunch(ctx, time.Since(start), "no_handshake")
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if line = strings.TrimSuffix(line, "\r"); line != protocol.Handshake {
		_ = proc.Close()
		recordLaunch(ctx, time.Since(start), "bad_handshake")
		return nil, fmt.Errorf("%w: expected '%s', got '%s'", ErrHandshake, protocol.Handshake, line)
	}

	recordLaunch(ctx, time.Since(start), "ok")
	s.logger.Debug("Process launched",
		slog.String("artifact", artifact),
		slog.Int("pid", proc.Pid()),
		slog.Int("autoruns", len(autoruns)),
	)
	return proc, nil
}
