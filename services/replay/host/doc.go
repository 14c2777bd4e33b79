// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host is the replay orchestrator: the single event loop that owns
// the adornment database, drives the supervisor through one generation per
// document change and speaks the line protocol with the running client.
//
// # Event Loop
//
// One goroutine per Orchestrator waits on the first of:
//
//   - the command queue (ChangeDocument, Watch, Debug)
//   - events of the current generation (diagnostics, launch result)
//   - the next stdout line of the running process
//   - disposal
//
// Everything the loop touches (database, correlation FIFO, watch window,
// generation handles) is owned by that goroutine, so none of it is locked.
//
// # Generations
//
// Every ChangeDocument starts a generation with its own context. The new
// generation waits for the previous one to finish before rebuilding, and
// the previous process is closed before the next one is spawned, so at most
// one process is alive per Orchestrator.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. EditorSink methods are
// called from the loop goroutine only, one at a time.
package host
