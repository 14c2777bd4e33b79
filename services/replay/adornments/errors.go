// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adornments

import "errors"

var (
	// ErrUnknownLine is returned when a removal names a line the database
	// holds nothing for.
	ErrUnknownLine = errors.New("no adornment at line")

	// ErrHashMismatch is returned when a removal's hash differs from the
	// stored one. The entry is removed anyway.
	ErrHashMismatch = errors.New("adornment hash mismatch")
)
