// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import "errors"

var (
	// ErrSuperseded resolves completions whose generation was replaced by a
	// newer ChangeDocument.
	ErrSuperseded = errors.New("superseded by a newer change")

	// ErrProcessExited resolves completions whose process ended before
	// answering.
	ErrProcessExited = errors.New("process exited")

	// ErrDisposed is returned by commands issued after Dispose.
	ErrDisposed = errors.New("orchestrator disposed")

	// ErrUnknownDebugVerb is returned by Debug for verbs other than FILES
	// and DUMP.
	ErrUnknownDebugVerb = errors.New("unknown debug verb")
)
