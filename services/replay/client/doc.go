// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package client is the runtime linked into instrumented programs.
//
// It speaks the program side of the replay protocol over stdin and stdout:
// it prints the "OK" handshake, records every value the instrumented code
// reports, answers WATCH commands with the lines the host does not know
// yet, answers FILES and DUMP, runs the registered autoruns once the main
// program returns and closes each run with "END run".
//
// Instrumented code reports through Log and Output. Programs start the
// runtime with Main, which uses os.Stdin, os.Stdout and the autoruns named
// by the REPLAY_AUTORUNS environment variable.
package client
