// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supervisor turns a document snapshot into a running, handshaken
// instrumented process.
//
// # Flow
//
//	close previous ──► build original ──► instrument ──► build instrumented
//	                        │                                  │
//	                        └──── report diagnostics ◄─────────┘
//	                                        │
//	                                        ▼
//	                             spawn artifact, expect "OK"
//
// The Builder and Instrumenter are collaborators supplied by the caller;
// services/replay/gobuild provides the Go implementations.
//
// # Thread Safety
//
// A Supervisor holds no per-call state and may be shared, but callers are
// expected to serialize RebuildAndLaunch so that at most one process is
// alive at a time.
package supervisor
