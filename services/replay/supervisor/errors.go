// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import "errors"

// Sentinel errors returned by RebuildAndLaunch.
var (
	// ErrNoDocument indicates there is no project loaded.
	ErrNoDocument = errors.New("no document")

	// ErrBuildFailed indicates the build produced errors. The diagnostics
	// have already been reported.
	ErrBuildFailed = errors.New("build failed")

	// ErrBuilderCrashed indicates the builder itself failed rather than
	// reporting diagnostics.
	ErrBuilderCrashed = errors.New("builder crashed")

	// ErrInstrumentFailed indicates the instrumenter failed.
	ErrInstrumentFailed = errors.New("instrumentation failed")

	// ErrLaunch indicates the artifact could not be started.
	ErrLaunch = errors.New("launch failed")

	// ErrHandshake indicates the process did not answer "OK" in time.
	ErrHandshake = errors.New("handshake failed")
)
