// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gobuild

import "errors"

var (
	// ErrNoModule indicates the document has no usable go.mod.
	ErrNoModule = errors.New("no go.mod in document")

	// ErrBuildCrashed indicates the go command failed without printing any
	// diagnostic it could be matched to.
	ErrBuildCrashed = errors.New("go build crashed")
)
