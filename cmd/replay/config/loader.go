// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPath names the configuration file when --config is not given.
const EnvPath = "REPLAY_CONFIG"

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns ~/.aleutian/replay.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "replay.yaml"), nil
}

// Load reads and validates the configuration.
//
// Description:
//
//	The file is path, or $REPLAY_CONFIG, or DefaultPath. Values in the
//	file override DefaultConfig. A missing default file yields the
//	defaults; a missing explicit file is an error. Paths starting with ~
//	are expanded.
//
// Inputs:
//
//	path - Explicit file, or "".
//
// Outputs:
//
//	ReplayConfig - The effective configuration.
//	string - The file that was read, or "" when defaults were used.
//	error - Read, parse or validation failure.
func Load(path string) (ReplayConfig, string, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		explicit = false
		p, err := DefaultPath()
		if err != nil {
			return ReplayConfig{}, "", err
		}
		path = p
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		path = ""
	case err != nil:
		return ReplayConfig{}, "", fmt.Errorf("failed to read the config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ReplayConfig{}, "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.expandPaths()
	if err := Validate(cfg); err != nil {
		return ReplayConfig{}, "", err
	}
	return cfg, path, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg ReplayConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg ReplayConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes DefaultConfig to path unless a file already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *ReplayConfig) expandPaths() {
	c.Server.ProjectsRoot = expandHome(c.Server.ProjectsRoot)
	c.Build.CacheDir = expandHome(c.Build.CacheDir)
	c.Build.WorkDir = expandHome(c.Build.WorkDir)
	c.Logging.LogDir = expandHome(c.Logging.LogDir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
