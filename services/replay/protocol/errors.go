// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for protocol decoding.
var (
	// ErrMalformedLine indicates a known verb with the wrong fields.
	ErrMalformedLine = errors.New("malformed protocol line")

	// ErrUnknownVerb indicates a line whose first field is not a known verb.
	ErrUnknownVerb = errors.New("unknown protocol verb")
)

// DecodeError describes a line that could not be decoded.
type DecodeError struct {
	// Line is the offending line, verbatim.
	Line string

	// Expected is the shape the decoder wanted, e.g. "END run | END watch correlation".
	Expected string

	// Cause is ErrMalformedLine or ErrUnknownVerb.
	Cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("expected '%s', got '%s'", e.Expected, e.Line)
}

// Unwrap returns the sentinel cause.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func malformed(line, expected string) *DecodeError {
	return &DecodeError{Line: line, Expected: expected, Cause: ErrMalformedLine}
}

func unknown(line, expected string) *DecodeError {
	return &DecodeError{Line: line, Expected: expected, Cause: ErrUnknownVerb}
}
