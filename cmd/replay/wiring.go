// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianReplay/services/replay/buildcache"
	"github.com/AleutianAI/AleutianReplay/services/replay/editor"
	"github.com/AleutianAI/AleutianReplay/services/replay/gobuild"
	"github.com/AleutianAI/AleutianReplay/services/replay/host"
	"github.com/AleutianAI/AleutianReplay/services/replay/supervisor"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// =============================================================================
// Launcher
// =============================================================================

// newLauncher builds the supervisor: build cache, go builder and autorun
// instrumenter.
//
// Outputs:
//
//	*supervisor.Supervisor - Shared by every orchestrator of the command.
//	func() error - Closes the build cache. Always non-nil.
//	error - The cache could not be opened.
func (a *app) newLauncher() (*supervisor.Supervisor, func() error, error) {
	logger := a.logger.Slog()
	closeCache := func() error { return nil }

	var cache *buildcache.Cache
	if a.cfg.Build.CacheEnabled {
		cc := buildcache.DefaultConfig()
		cc.Path = a.cfg.Build.CacheDir
		cc.TTL = a.cfg.Build.CacheTTL
		cc.Logger = logger.With(slog.String("component", "buildcache"))
		c, err := buildcache.Open(cc)
		if err != nil {
			return nil, closeCache, fmt.Errorf("open build cache: %w", err)
		}
		cache = c
		closeCache = c.Close
	}

	builder := gobuild.NewBuilder(gobuild.BuilderConfig{
		GoBinary: a.cfg.Build.GoBinary,
		Flags:    a.cfg.Build.Flags,
		Package:  a.cfg.Build.Package,
		WorkDir:  a.cfg.Build.WorkDir,
		Cache:    cache,
		Logger:   logger.With(slog.String("component", "gobuild")),
	})
	sup := supervisor.New(supervisor.Config{
		HandshakeTimeout: a.cfg.Host.HandshakeTimeout,
		Args:             a.cfg.Host.Args,
		Env:              a.cfg.Host.Env,
		WaitDelay:        a.cfg.Host.WaitDelay,
	}, builder, gobuild.NewInstrumenter(logger), logger.With(slog.String("component", "supervisor")))
	return sup, closeCache, nil
}

func (a *app) hostConfig() host.Config {
	return host.Config{
		ForwardDebug:  a.cfg.Host.ForwardDebug,
		ShutdownGrace: a.cfg.Host.ShutdownGrace,
	}
}

func (a *app) loadOptions() workspace.LoadOptions {
	return workspace.LoadOptions{
		Ignore:       a.cfg.Watch.Ignore,
		MaxFileBytes: a.cfg.Watch.MaxFileBytes,
	}
}

func (a *app) editorConfig() editor.Config {
	cfg := editor.DefaultConfig()
	s := a.cfg.Server
	cfg.ProjectsRoot = s.ProjectsRoot
	cfg.Load = a.loadOptions()
	cfg.Host = a.hostConfig()
	cfg.HandshakeTimeout = s.HandshakeTimeout
	cfg.WriteTimeout = s.WriteTimeout
	cfg.PingInterval = s.PingInterval
	cfg.MaxMessageBytes = s.ReadLimitBytes
	cfg.SendBuffer = s.SendBuffer
	cfg.CommandRate = rate.Limit(s.CommandsPerSecond)
	cfg.CommandBurst = s.Burst
	cfg.AllowedOrigins = s.AllowedOrigins
	cfg.ServiceName = a.cfg.Telemetry.ServiceName
	cfg.Logger = a.logger.Slog()
	if s.Metrics && a.telemetry != nil {
		cfg.MetricsHandler = a.telemetry.MetricsHandler()
	}
	return cfg
}

// =============================================================================
// Helpers
// =============================================================================

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runErr maps a completion result to the command's error. A superseded or
// interrupted run is not a failure.
func runErr(err error) error {
	switch {
	case err == nil,
		errors.Is(err, host.ErrSuperseded),
		errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// dispose stops orch within the host's shutdown grace.
func dispose(orch *host.Orchestrator, logger *slog.Logger) {
	if err := orch.Dispose(context.Background()); err != nil {
		logger.Warn("Dispose failed", slog.String("error", err.Error()))
	}
}
