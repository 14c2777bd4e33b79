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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReplay/cmd/replay/config"
	"github.com/AleutianAI/AleutianReplay/pkg/logging"
	"github.com/AleutianAI/AleutianReplay/pkg/ux"
	"github.com/AleutianAI/AleutianReplay/services/replay/telemetry"
)

// app is the state shared by every subcommand, set up in PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	outputMode string

	cfg        config.ReplayConfig
	usedConfig string
	logger     *logging.Logger
	telemetry  *telemetry.Provider
	mode       ux.Mode
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "replay",
		Short:         "Run Go programs live while you edit them",
		Long:          "replay rebuilds and reruns an instrumented copy of a Go program on every edit\nand streams the value each line produced back to the editor or the console.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipSetup(cmd) {
				return nil
			}
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $REPLAY_CONFIG or ~/.aleutian/replay.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.outputMode, "output", "", "console output: full, minimal or machine (default depends on the terminal)")

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newPatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// skipSetup reports whether cmd runs without config, logging or telemetry.
func skipSetup(cmd *cobra.Command) bool {
	return cmd.Annotations["setup"] == "none"
}

func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, used, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		level, err := logging.ParseLevel(a.logLevel)
		if err != nil {
			return err
		}
		cfg.Logging.Level = level
	}
	a.cfg, a.usedConfig = cfg, used

	a.mode = ux.DetectMode(stdout)
	if a.outputMode != "" {
		a.mode = ux.ParseMode(a.outputMode)
	}

	a.logger = logging.New(cfg.Logging)
	a.logger.Debug("Configuration loaded", "path", used)

	provider, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	a.telemetry = provider
	return nil
}

func (a *app) teardown() error {
	var firstErr error
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("stop telemetry: %w", err)
		}
		a.telemetry = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
