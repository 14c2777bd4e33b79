// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gobuild provides the Go implementations of the supervisor's
// Builder and Instrumenter.
//
// Builder compiles a document snapshot with "go build -overlay", so unsaved
// editor text is compiled without touching the files on disk, and turns the
// compiler output into diagnostics. Results are remembered in a build cache
// keyed by the document digest.
//
// Instrumenter finds functions marked with a "//replay:autorun" comment so
// the client runtime can call them once the program has finished.
package gobuild
