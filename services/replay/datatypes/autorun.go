// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strconv"
	"strings"
)

// AutorunEnv is the environment variable that carries the autorun list to
// the instrumented process.
const AutorunEnv = "REPLAY_AUTORUNS"

// Autorun is a function the client runs after the main program completes.
//
// TypeName is empty for package-level functions. Line is 0-based.
type Autorun struct {
	TypeName   string
	MethodName string
	File       string
	Line       int
}

// Name is the registry key: "Type.Method", or "Func" with no receiver.
func (a Autorun) Name() string {
	if a.TypeName == "" {
		return a.MethodName
	}
	return a.TypeName + "." + a.MethodName
}

// EncodeAutoruns renders autoruns as "name@file:line" joined by commas.
func EncodeAutoruns(autoruns []Autorun) string {
	parts := make([]string, 0, len(autoruns))
	for _, a := range autoruns {
		parts = append(parts, fmt.Sprintf("%s@%s:%d", a.Name(), a.File, a.Line))
	}
	return strings.Join(parts, ",")
}

// ParseAutoruns is the inverse of EncodeAutoruns.
func ParseAutoruns(value string) ([]Autorun, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var out []Autorun
	for _, part := range strings.Split(value, ",") {
		at := strings.LastIndex(part, "@")
		colon := strings.LastIndex(part, ":")
		if at <= 0 || colon < at {
			return nil, fmt.Errorf("malformed autorun %q", part)
		}
		line, err := strconv.Atoi(part[colon+1:])
		if err != nil {
			return nil, fmt.Errorf("malformed autorun line %q: %w", part, err)
		}
		a := Autorun{File: part[at+1 : colon], Line: line}
		name := part[:at]
		if dot := strings.LastIndex(name, "."); dot >= 0 {
			a.TypeName, a.MethodName = name[:dot], name[dot+1:]
		} else {
			a.MethodName = name
		}
		out = append(out, a)
	}
	return out, nil
}
