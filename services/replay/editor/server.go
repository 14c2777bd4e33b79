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
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianReplay/services/replay/host"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// Config configures the editor bridge.
type Config struct {
	// ProjectsRoot is the directory that holds one subdirectory per project.
	ProjectsRoot string

	// Load controls which project files are read.
	Load workspace.LoadOptions

	// Host configures each session's orchestrator.
	Host host.Config

	// HandshakeTimeout bounds the wait for the editor's "OK".
	// Default: 10s
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single websocket write.
	// Default: 10s
	WriteTimeout time.Duration

	// PingInterval is how often an idle connection is pinged.
	// Default: 30s
	PingInterval time.Duration

	// MaxMessageBytes limits one editor message.
	// Default: 16MB
	MaxMessageBytes int64

	// SendBuffer is the number of outbound messages queued per session.
	// Default: 256
	SendBuffer int

	// CommandRate and CommandBurst limit editor commands per session.
	// Default: 100/s, burst 200
	CommandRate  rate.Limit
	CommandBurst int

	// AllowedOrigins restricts the Origin header. Empty allows any.
	AllowedOrigins []string

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	// ServiceName names the otelgin spans.
	// Default: "replay-editor"
	ServiceName string

	// Logger is the base logger. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the defaults used by the serve command.
func DefaultConfig() Config {
	return Config{
		Load:             workspace.DefaultLoadOptions(),
		Host:             host.DefaultConfig(),
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageBytes:  16 << 20,
		SendBuffer:       256,
		CommandRate:      100,
		CommandBurst:     200,
		ServiceName:      "replay-editor",
	}
}

// Server accepts editor connections.
//
// # Description
//
// Serves /ws/*project for editors, /healthz for liveness and, when a
// metrics handler is configured, /metrics. Every accepted connection runs
// as a session with its own orchestrator; all sessions share the
// launcher.
//
// # Thread Safety
//
// Safe for concurrent use.
type Server struct {
	config   Config
	launcher host.Launcher
	router   *gin.Engine
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// NewServer creates a server that launches programs with launcher.
func NewServer(config Config, launcher host.Launcher) *Server {
	defaults := DefaultConfig()
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.CommandRate <= 0 {
		config.CommandRate = defaults.CommandRate
	}
	if config.CommandBurst <= 0 {
		config.CommandBurst = defaults.CommandBurst
	}
	if config.ServiceName == "" {
		config.ServiceName = defaults.ServiceName
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   config,
		launcher: launcher,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	s.initRouter()
	return s
}

func (s *Server) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(s.config.ServiceName))

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/ws/*project", s.handleSocket)
	if s.config.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.config.MetricsHandler))
	}
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Sessions returns the number of connected editors.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Serve listens on addr until ctx is done, then closes every session.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("Editor bridge listening", slog.String("addr", addr), slog.String("projects_root", s.config.ProjectsRoot))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Host.ShutdownGrace)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeSessions()
	s.wg.Wait()
	return err
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.close()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.Sessions(),
	})
}

func (s *Server) handleSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := uuid.New().String()
	project := strings.Trim(c.Param("project"), "/")
	sess := newSession(id, project, ws, s)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.wg.Add(1)
	recordSession(c.Request.Context(), 1)

	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		recordSession(context.Background(), -1)
		s.wg.Done()
	}()

	sess.serve(c.Request.Context())
}

// resolveProject maps a project name to its directory under the root.
func (s *Server) resolveProject(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no project specified", ErrInvalidProject)
	}
	root, err := filepath.Abs(s.config.ProjectsRoot)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProject, name)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}
	return dir, nil
}
