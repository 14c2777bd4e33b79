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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianReplay/pkg/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:9000"
  projects_root: /srv/projects
host:
  shutdown_grace: 3s
build:
  flags: ["-race"]
  cache_enabled: false
logging:
  level: debug
  json: true
`)
	cfg, used, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/srv/projects", cfg.Server.ProjectsRoot)
	assert.Equal(t, 3*time.Second, cfg.Host.ShutdownGrace)
	assert.Equal(t, []string{"-race"}, cfg.Build.Flags)
	assert.False(t, cfg.Build.CacheEnabled)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Host.HandshakeTimeout)
	assert.Equal(t, 150*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "go", cfg.Build.GoBinary)
}

func TestLoad_EnvPath(t *testing.T) {
	path := writeConfig(t, "server:\n  burst: 5\n")
	t.Setenv(EnvPath, path)
	cfg, used, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 5, cfg.Server.Burst)
}

func TestLoad_MissingFiles(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	t.Setenv(EnvPath, "")
	t.Setenv("HOME", t.TempDir())
	cfg, used, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, _, err := Load(writeConfig(t, "server:\n  projects_root: ~/projects\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects"), cfg.Server.ProjectsRoot)
	assert.Equal(t, filepath.Join(home, ".aleutian/replay/cache"), cfg.Build.CacheDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad addr", "server:\n  addr: nowhere\n", "Server.Addr"},
		{"zero rate", "server:\n  commands_per_second: 0\n", "Server.CommandsPerSecond"},
		{"exporter", "telemetry:\n  trace_exporter: zipkin\n", "Telemetry.TraceExporter"},
		{"cache dir", "build:\n  cache_dir: \"\"\n", "Build.CacheDir"},
		{"origin", "server:\n  allowed_origins: [\"not a url\"]\n", "Server.AllowedOrigins[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, _, err := Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorIs(t, err, logging.ErrUnknownLevel)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "replay.yaml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "server")
	assert.Contains(t, string(data), "level: info")
	assert.Contains(t, string(data), "debounce: 150ms")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Build.CacheTTL, cfg.Build.CacheTTL)
	assert.Equal(t, DefaultConfig().Watch, cfg.Watch)
}
