// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package asyncproc

import (
	"errors"
	"fmt"
)

// Sentinel errors for subprocess operations.
var (
	// ErrNotInstalled indicates the executable was not found.
	ErrNotInstalled = errors.New("executable not found")

	// ErrClosed indicates the process was closed or its output ended.
	ErrClosed = errors.New("process closed")

	// ErrLineTooLong indicates a stdout line exceeded MaxLineBytes. The
	// process is killed when it happens.
	ErrLineTooLong = errors.New("output line too long")
)

// ExitError reports a process that exited with a non-zero status without
// being killed by Close.
type ExitError struct {
	// Code is the exit status, or -1 when terminated by a signal.
	Code int

	// Err is the underlying *exec.ExitError.
	Err error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with status %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}
