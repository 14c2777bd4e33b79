// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"errors"
	"fmt"
)

var (
	// ErrHostClosed is returned by Run when the host closes stdin.
	ErrHostClosed = errors.New("host closed the command stream")

	// ErrDuplicateAutorun is returned when a name is registered twice.
	ErrDuplicateAutorun = errors.New("autorun already registered")
)

// MismatchError is an autorun assertion failure with an expected and an
// actual value. The host shows it as "TEST FAILED - EXPECTED '...' - ACTUAL '...'".
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("expected '%s', got '%s'", e.Expected, e.Actual)
}

// Expect returns a *MismatchError when expected and actual print differently.
func Expect(expected, actual any) error {
	e, a := fmt.Sprint(expected), fmt.Sprint(actual)
	if e == a {
		return nil
	}
	return &MismatchError{Expected: e, Actual: a}
}
