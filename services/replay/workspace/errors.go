// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import "errors"

var (
	// ErrFileNotFound indicates a file that is not part of the document.
	ErrFileNotFound = errors.New("file not in document")

	// ErrOutOfRange indicates a line, column or length outside the file.
	ErrOutOfRange = errors.New("position out of range")

	// ErrPatchMismatch indicates a hunk whose context does not match the file.
	ErrPatchMismatch = errors.New("patch does not apply")

	// ErrEmptyPatch indicates a patch without any file diff.
	ErrEmptyPatch = errors.New("patch has no file changes")

	// ErrNotDirectory indicates a project root that is not a directory.
	ErrNotDirectory = errors.New("project root is not a directory")
)
