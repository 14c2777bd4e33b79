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
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReplay/pkg/ux"
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/host"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// exitBuildFailed is the exit code when the patched project does not build.
const exitBuildFailed = 2

func newPatchCmd(a *app) *cobra.Command {
	var baseline bool
	cmd := &cobra.Command{
		Use:   "patch <dir> <patch-file|->",
		Short: "Apply a unified diff to a project and show the values it changes",
		Long: "patch runs the project in dir, applies the unified diff (read from stdin for \"-\")\n" +
			"in memory and reruns it, printing only the values the patch changed. The\n" +
			"project on disk is not modified.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			diff, err := readPatch(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			return a.patch(cmd.Context(), args[0], diff, baseline)
		},
	}
	cmd.Flags().BoolVar(&baseline, "baseline", true, "run the unpatched project first so only changes are shown")
	return cmd
}

func readPatch(stdin io.Reader, name string) (string, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read patch: %w", err)
	}
	return string(data), nil
}

func (a *app) patch(parent context.Context, dir, diff string, baseline bool) error {
	ctx, stop := signalContext(parent)
	defer stop()
	logger := a.logger.Slog()
	printer := ux.NewPrinter(stdout, a.mode)

	doc, err := workspace.Load(ctx, dir, a.loadOptions())
	if err != nil {
		return err
	}
	next, edits, err := doc.ApplyPatch(diff)
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
	orch := host.New(a.hostConfig(), sup, sink, logger)
	defer dispose(orch, logger)

	if _, err := orch.Watch(ctx, datatypes.WatchAll()); err != nil {
		return err
	}

	if baseline {
		printer.Title("Before")
		done, err := orch.ChangeDocument(ctx, doc, "", 0, 0, 0)
		if err != nil {
			return err
		}
		if err := runErr(done.Wait(ctx)); err != nil {
			return err
		}
		printer.Title(fmt.Sprintf("After (%d edit(s))", len(edits)))
	} else {
		edits = nil
	}

	done, err := orch.ChangeDocumentEdits(ctx, next, edits)
	if err != nil {
		return err
	}
	if err := runErr(done.Wait(ctx)); err != nil {
		return err
	}

	if datatypes.HasErrors(sink.Diagnostics()) {
		printer.Error("Patched project does not build")
		return &exitError{code: exitBuildFailed, err: fmt.Errorf("build failed")}
	}
	if printer.Mode() != ux.ModeMachine {
		printer.Title("Values")
		sink.Render()
	}
	return nil
}
