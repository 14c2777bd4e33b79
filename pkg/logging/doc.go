// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the replay tools.
//
// Every component logs through a *slog.Logger. This package builds that
// logger from a Config and owns the resources behind it:
//
//   - stderr (or another writer) in text or JSON, unless Quiet
//   - an optional JSON log file named {service}_{date}.log
//   - the systemd journal, when Journal is set and the socket is reachable
//
// Records are fanned out with slog-multi. Records logged with a context that
// carries an OpenTelemetry span get trace_id and span_id attributes.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Level: logging.LevelDebug, Service: "replay"})
//	defer logger.Close()
//	host := host.New(sink, launcher, host.Config{Logger: logger.Slog()})
//
// # Thread Safety
//
// Logger is safe for concurrent use. SetLevel takes effect for every
// logger derived with With.
//
// # Security Considerations
//
// Adornment contents are user program output. Log their size, not their
// text.
package logging
