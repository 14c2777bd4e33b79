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
	"time"

	"github.com/AleutianAI/AleutianReplay/pkg/logging"
	"github.com/AleutianAI/AleutianReplay/services/replay/telemetry"
)

// ReplayConfig is the on-disk configuration of the replay command.
type ReplayConfig struct {
	// Server: the editor websocket bridge
	Server ServerConfig `yaml:"server"`

	// Host: orchestrator and process supervision
	Host HostConfig `yaml:"host"`

	// Build: how projects are compiled and cached
	Build BuildConfig `yaml:"build"`

	// Watch: file system driven editing for the run command
	Watch WatchConfig `yaml:"watch"`

	Logging   logging.Config   `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" validate:"required,hostname_port"`
	ProjectsRoot      string        `yaml:"projects_root" validate:"required"`
	CommandsPerSecond float64       `yaml:"commands_per_second" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gte=1"`
	ReadLimitBytes    int64         `yaml:"read_limit_bytes" validate:"gte=1024"`
	SendBuffer        int           `yaml:"send_buffer" validate:"gte=1"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" validate:"gt=0"`
	PingInterval      time.Duration `yaml:"ping_interval" validate:"gt=0"`
	AllowedOrigins    []string      `yaml:"allowed_origins,omitempty" validate:"dive,url"`
	Metrics           bool          `yaml:"metrics"`
}

type HostConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" validate:"gt=0"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace" validate:"gt=0"`
	WaitDelay        time.Duration `yaml:"wait_delay" validate:"gte=0"`
	ForwardDebug     bool          `yaml:"forward_debug"`
	Args             []string      `yaml:"args,omitempty"`
	Env              []string      `yaml:"env,omitempty"`
}

type BuildConfig struct {
	GoBinary     string        `yaml:"go_binary" validate:"required"`
	Flags        []string      `yaml:"flags,omitempty"`
	Package      string        `yaml:"package" validate:"required"`
	WorkDir      string        `yaml:"work_dir,omitempty"`
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheDir     string        `yaml:"cache_dir" validate:"required_if=CacheEnabled true"`
	CacheTTL     time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce" validate:"gt=0"`
	Ignore       []string      `yaml:"ignore"`
	MaxFileBytes int64         `yaml:"max_file_bytes" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() ReplayConfig {
	return ReplayConfig{
		Server: ServerConfig{
			Addr:              "127.0.0.1:12345",
			ProjectsRoot:      "~/.aleutian/replay/projects",
			CommandsPerSecond: 100,
			Burst:             200,
			ReadLimitBytes:    16 << 20,
			SendBuffer:        256,
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      10 * time.Second,
			PingInterval:      30 * time.Second,
			Metrics:           true,
		},
		Host: HostConfig{
			HandshakeTimeout: 10 * time.Second,
			ShutdownGrace:    10 * time.Second,
			WaitDelay:        2 * time.Second,
			ForwardDebug:     true,
		},
		Build: BuildConfig{
			GoBinary:     "go",
			Package:      ".",
			CacheEnabled: true,
			CacheDir:     "~/.aleutian/replay/cache",
			CacheTTL:     24 * time.Hour,
		},
		Watch: WatchConfig{
			Debounce:     150 * time.Millisecond,
			Ignore:       []string{".git", "vendor", "node_modules", ".idea", "testdata"},
			MaxFileBytes: 4 << 20,
		},
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "replay",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
