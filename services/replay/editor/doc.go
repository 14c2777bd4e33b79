// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package editor bridges text editors to the replay host over websockets.
//
// An editor connects to /ws/<project>. The server loads the project from
// its projects root, sends "OK" and waits for "OK" back. After that every
// text message is one editor command (GET, CHANGE, WATCH, PATCH, FILES,
// DUMP) and every host notification is pushed as one text message
// (ADORNMENT, DIAGNOSTIC, ERROR, GOT). Lines on this wire are 1-based.
//
// Each connection owns one host.Orchestrator and therefore at most one
// running program.
package editor
