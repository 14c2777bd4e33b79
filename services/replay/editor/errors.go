// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import "errors"

var (
	// ErrSessionClosed is returned by the sink once the connection is gone.
	ErrSessionClosed = errors.New("editor session closed")

	// ErrProjectNotFound indicates the requested project directory does
	// not exist under the projects root.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidProject indicates an empty project name or one that
	// escapes the projects root.
	ErrInvalidProject = errors.New("invalid project")
)
