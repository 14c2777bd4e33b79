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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianReplay/pkg/ux"
	"github.com/AleutianAI/AleutianReplay/services/replay/editor"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, projects string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor websocket bridge",
		Long: "serve accepts editor connections on /ws/<project>. Each project is a directory\n" +
			"under server.projects_root and gets its own replay session per connection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if projects != "" {
				a.cfg.Server.ProjectsRoot = projects
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&projects, "projects", "", "projects directory (overrides server.projects_root)")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()
	logger := a.logger.Slog()
	printer := ux.NewPrinter(stdout, a.mode)

	if err := os.MkdirAll(a.cfg.Server.ProjectsRoot, 0o755); err != nil {
		return fmt.Errorf("create projects root: %w", err)
	}
	sup, closeCache, err := a.newLauncher()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			logger.Warn("Close build cache failed", slog.String("error", err.Error()))
		}
	}()

	server := editor.NewServer(a.editorConfig(), sup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, a.cfg.Server.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		printer.Info(fmt.Sprintf("Shutting down, %d session(s) open", server.Sessions()))
		return nil
	})

	printer.Success(fmt.Sprintf("Listening on ws://%s/ws/<project>", a.cfg.Server.Addr))
	printer.Info("Projects: " + a.cfg.Server.ProjectsRoot)
	return g.Wait()
}
