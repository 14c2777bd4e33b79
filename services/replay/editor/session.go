// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/host"
	"github.com/AleutianAI/AleutianReplay/services/replay/protocol"
	"github.com/AleutianAI/AleutianReplay/services/replay/telemetry"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// session is one connected editor.
//
// The read loop owns doc and orch. Everything written to the socket goes
// through send and is written by writeLoop, the connection's only writer.
type session struct {
	id      string
	project string
	ws      *websocket.Conn
	server  *Server
	config  Config
	logger  *slog.Logger
	limiter *rate.Limiter

	send      chan string
	closed    chan struct{}
	closeOnce sync.Once
	written   chan struct{}

	doc  *workspace.Document
	orch *host.Orchestrator
}

func newSession(id, project string, ws *websocket.Conn, server *Server) *session {
	return &session{
		id:      id,
		project: project,
		ws:      ws,
		server:  server,
		config:  server.config,
		logger:  server.logger.With(slog.String("session", id), slog.String("project", project)),
		limiter: rate.NewLimiter(server.config.CommandRate, server.config.CommandBurst),
		send:    make(chan string, server.config.SendBuffer),
		closed:  make(chan struct{}),
		written: make(chan struct{}),
	}
}

// =============================================================================
// EditorSink
// =============================================================================

func (s *session) OnAdornmentChanged(ctx context.Context, isAdd bool, tag int64, file string, line int, content string) error {
	if isAdd {
		return s.enqueue(ctx, protocol.EncodeAdornmentAdd(tag, file, line, content))
	}
	return s.enqueue(ctx, protocol.EncodeAdornmentRemove(tag, file))
}

func (s *session) OnDiagnosticChanged(ctx context.Context, isAdd bool, d datatypes.Diagnostic) error {
	if isAdd {
		return s.enqueue(ctx, protocol.EncodeDiagnosticAdd(d))
	}
	return s.enqueue(ctx, protocol.EncodeDiagnosticRemove(d.Tag))
}

func (s *session) OnError(ctx context.Context, message string) error {
	return s.enqueue(ctx, protocol.EncodeEditorError(message))
}

func (s *session) enqueue(ctx context.Context, message string) error {
	select {
	case s.send <- message:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) reply(ctx context.Context, message string) {
	if err := s.enqueue(ctx, message); err != nil {
		s.logger.Debug("Reply dropped", slog.String("error", err.Error()))
	}
}

func (s *session) replyError(ctx context.Context, format string, args ...any) {
	s.reply(ctx, protocol.EncodeEditorError(fmt.Sprintf(format, args...)))
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// =============================================================================
// Connection
// =============================================================================

// serve runs the session until the editor disconnects or the server stops.
func (s *session) serve(ctx context.Context) {
	go s.writeLoop()
	defer func() {
		s.close()
		<-s.written
		_ = s.ws.Close()
		s.logger.Info("Editor disconnected")
	}()
	s.ws.SetReadLimit(s.config.MaxMessageBytes)
	s.logger.Info("Editor connected")

	dir, err := s.server.resolveProject(s.project)
	switch {
	case errors.Is(err, ErrInvalidProject):
		s.replyError(ctx, "No project specified")
		return
	case err != nil:
		s.replyError(ctx, "Project doesn't exist '%s'", s.project)
		return
	}
	doc, err := workspace.Load(ctx, dir, s.config.Load)
	if err != nil {
		s.replyError(ctx, "Loading project failed: %v", err)
		return
	}
	s.doc = doc

	s.reply(ctx, protocol.Handshake)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	first, err := s.readMessage()
	if err != nil {
		s.logger.Info("Handshake failed", slog.String("error", err.Error()))
		return
	}
	if first != protocol.Handshake {
		s.replyError(ctx, "Expected 'OK' not '%s'", first)
		return
	}
	_ = s.ws.SetReadDeadline(time.Time{})

	s.orch = host.New(s.config.Host, s.server.launcher, s, s.logger)
	defer func() {
		disposeCtx, cancel := context.WithTimeout(context.Background(), s.config.Host.ShutdownGrace)
		defer cancel()
		if err := s.orch.Dispose(disposeCtx); err != nil && !errors.Is(err, ErrSessionClosed) {
			s.logger.Warn("Orchestrator stopped with error", slog.String("error", err.Error()))
		}
	}()
	if _, err := s.orch.ChangeDocument(ctx, doc, "", 0, 0, 0); err != nil {
		return
	}

	for {
		message, err := s.readMessage()
		if err != nil {
			s.logger.Debug("Read ended", slog.String("error", err.Error()))
			return
		}
		if !s.limiter.Allow() {
			recordThrottled(ctx)
			s.replyError(ctx, "Too many commands, dropped '%s'", message)
			continue
		}
		spanCtx, span := telemetry.StartSpan(ctx, "aleutian.replay.editor", "Session.handle",
			attribute.String("replay.session_id", s.id),
			attribute.String("replay.verb", verbOf(message)),
		)
		err = s.handle(spanCtx, message)
		telemetry.RecordError(span, err)
		span.End()
		if err != nil {
			s.logger.Info("Session ending", slog.String("error", err.Error()))
			return
		}
	}
}

// verbOf returns the command word of an editor line.
func verbOf(line string) string {
	verb, _, _ := strings.Cut(line, "\t")
	return verb
}

func (s *session) readMessage() (string, error) {
	for {
		kind, data, err := s.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// writeLoop is the only writer of the socket. Once the session closes it
// flushes what is queued and sends a close frame.
func (s *session) writeLoop() {
	defer close(s.written)
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-s.send:
			if err := s.write(message); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := s.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.close()
				return
			}
		case <-s.closed:
			for {
				select {
				case message := <-s.send:
					if err := s.write(message); err != nil {
						return
					}
				default:
					deadline := time.Now().Add(s.config.WriteTimeout)
					_ = s.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
					return
				}
			}
		}
	}
}

func (s *session) write(message string) error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.ws.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		s.logger.Debug("Write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

// handle runs one editor command. A returned error ends the session.
func (s *session) handle(ctx context.Context, line string) error {
	switch cmd := protocol.DecodeEditorLine(line).(type) {
	case protocol.GetCommand:
		recordCommand(ctx, protocol.VerbGet)
		text, ok := s.doc.Text(cmd.File)
		if !ok {
			s.replyError(ctx, "File doesn't exist '%s'", cmd.File)
			return nil
		}
		s.reply(ctx, protocol.EncodeGot(cmd.File, text))
		return nil

	case protocol.ChangeCommand:
		recordCommand(ctx, protocol.VerbChange)
		next, _, err := s.doc.ApplyChange(cmd.File, cmd.StartLine, cmd.StartColumn, cmd.OldLength, cmd.NewContent)
		if err != nil {
			s.replyError(ctx, "Change rejected: %v", err)
			return nil
		}
		s.doc = next
		_, err = s.orch.ChangeDocument(ctx, next, cmd.File, cmd.StartLine, cmd.OldLineCount, cmd.NewLineCount)
		return err

	case protocol.EditorWatchCommand:
		recordCommand(ctx, protocol.VerbWatch)
		if cmd.Window.File != datatypes.AllFiles && !s.doc.Has(cmd.Window.File) {
			s.replyError(ctx, "File doesn't exist '%s'", cmd.Window.File)
			return nil
		}
		_, err := s.orch.Watch(ctx, cmd.Window)
		if err != nil && !errors.Is(err, host.ErrDisposed) {
			s.replyError(ctx, "Watch rejected: %v", err)
			return nil
		}
		return err

	case protocol.PatchCommand:
		recordCommand(ctx, protocol.VerbPatch)
		next, edits, err := s.doc.ApplyPatch(cmd.Diff)
		if err != nil {
			s.replyError(ctx, "Patch rejected: %v", err)
			return nil
		}
		s.doc = next
		_, err = s.orch.ChangeDocumentEdits(ctx, next, edits)
		return err

	case protocol.EditorDebugCommand:
		recordCommand(ctx, cmd.Verb)
		_, err := s.orch.Debug(ctx, cmd.Verb)
		return err

	case protocol.InvalidCommand:
		recordCommand(ctx, "invalid")
		s.reply(ctx, protocol.EncodeEditorError(invalidMessage(cmd)))
		return nil
	}
	return nil
}

func invalidMessage(cmd protocol.InvalidCommand) string {
	var de *protocol.DecodeError
	if !errors.As(cmd.Err, &de) {
		return fmt.Sprintf("Invalid command '%s'", cmd.Line)
	}
	if errors.Is(de, protocol.ErrUnknownVerb) {
		return fmt.Sprintf("Server doesn't recognize command '%s'", cmd.Line)
	}
	return fmt.Sprintf("Expected '%s', got '%s'", de.Expected, de.Line)
}
