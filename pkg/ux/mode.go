// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how much styling terminal output carries.
type Mode string

const (
	// ModeFull uses colors and icons.
	ModeFull Mode = "full"

	// ModeMinimal uses icons without colors.
	ModeMinimal Mode = "minimal"

	// ModeMachine writes tab-separated lines for scripts and pipes.
	ModeMachine Mode = "machine"
)

// ModeEnv overrides DetectMode.
const ModeEnv = "REPLAY_OUTPUT"

// ParseMode parses a mode name or abbreviation. Unknown names are
// ModeMinimal.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return ModeFull
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModeMinimal
	}
}

// DetectMode picks the mode for f.
//
// REPLAY_OUTPUT wins when set. Otherwise a terminal gets ModeFull and
// anything else (a pipe, a file) gets ModeMachine.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv(ModeEnv); env != "" {
		return ParseMode(env)
	}
	if f != nil && IsTerminal(f.Fd()) {
		return ModeFull
	}
	return ModeMachine
}

// IsTerminal reports whether fd is a terminal, including Cygwin and MSYS
// terminals on Windows.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
