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
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianReplay/pkg/ux"
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/host"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

var _ host.EditorSink = (*ux.ConsoleSink)(nil)

type runOptions struct {
	once   bool
	file   string
	line   int
	count  int
	values int
}

func newRunCmd(a *app) *cobra.Command {
	opts := runOptions{line: -1, count: -1}
	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Run a project and print line values as files are saved",
		Long: "run builds and runs the Go project in dir (default \".\"), prints the value every\n" +
			"line produced, and reruns it each time a file is saved. Only changed values are printed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return a.run(cmd.Context(), dir, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.once, "once", false, "run once and exit instead of watching")
	cmd.Flags().StringVar(&opts.file, "file", datatypes.AllFiles, "only show values from this file")
	cmd.Flags().IntVar(&opts.line, "line", -1, "first line (1-based) to show; -1 for all lines")
	cmd.Flags().IntVar(&opts.count, "count", -1, "number of lines to show; -1 for all lines")
	cmd.Flags().IntVar(&opts.values, "width", ux.DefaultValueWidth, "maximum characters of each value")
	return cmd
}

// window converts the flags to a 0-based watch window.
func (o runOptions) window() datatypes.WatchWindow {
	w := datatypes.WatchWindow{File: filepath.ToSlash(o.file), Line: -1, Count: -1}
	if o.line > 0 && o.count >= 0 {
		w.Line, w.Count = o.line-1, o.count
	}
	return w
}

func (a *app) run(parent context.Context, dir string, opts runOptions) error {
	ctx, stop := signalContext(parent)
	defer stop()
	logger := a.logger.Slog()
	printer := ux.NewPrinter(stdout, a.mode)

	doc, err := workspace.Load(ctx, dir, a.loadOptions())
	if err != nil {
		return err
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

	sink := ux.NewConsoleSink(stdout, a.mode)
	sink.SetValueWidth(opts.values)
	orch := host.New(a.hostConfig(), sup, sink, logger)
	defer dispose(orch, logger)

	if _, err := orch.Watch(ctx, opts.window()); err != nil {
		return err
	}
	printer.Title(fmt.Sprintf("replay %s", doc.Root()))
	first, err := orch.ChangeDocument(ctx, doc, "", 0, 0, 0)
	if err != nil {
		return err
	}
	if opts.once {
		return runErr(first.Wait(ctx))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchOpts := workspace.DefaultWatcherOptions()
	watchOpts.Debounce = a.cfg.Watch.Debounce
	watchOpts.Ignore = a.cfg.Watch.Ignore
	watchOpts.Logger = logger
	watcher, err := workspace.NewWatcher(doc, func(ctx context.Context, next *workspace.Document, edits []workspace.LineEdit) {
		if _, err := orch.ChangeDocumentEdits(ctx, next, edits); err != nil {
			if errors.Is(err, host.ErrDisposed) {
				cancel()
				return
			}
			logger.Warn("Change rejected", slog.String("error", err.Error()))
		}
	}, &watchOpts)
	if err != nil {
		return fmt.Errorf("watch %s: %w", doc.Root(), err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		watcher.Stop()
		return nil
	})
	printer.Info("Watching for changes, press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		return err
	}
	return orch.Err()
}
