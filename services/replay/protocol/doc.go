// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol encodes and decodes the tab-separated line protocols of
// the replay host.
//
// There are two wires:
//
//	┌────────┐  CHANGE/WATCH/GET   ┌──────┐   WATCH/FILES/DUMP   ┌────────┐
//	│ editor │ ──────────────────▶ │ host │ ───────────────────▶ │ client │
//	│        │ ◀────────────────── │      │ ◀─────────────────── │        │
//	└────────┘ ADORNMENT/DIAGNOSTIC└──────┘ REPLAY/END/ERROR/... └────────┘
//
// The client wire (host ⇄ instrumented process, one line per message):
//
//	client → host   OK                                  handshake, first line
//	host → client   WATCH\t<corr>\t<file>\t<line>\t<count>[\t<line>\t<hash>]*
//	client → host   REPLAY\tadd\t<file>\t<line>\t<hash>\t<content>
//	client → host   REPLAY\tremove\t<file>\t<line>\t<hash>
//	client → host   END\trun | END\twatch\t<corr>
//	client → host   ERROR\t<message> | DEBUG\t<message>
//	host → client   FILES  → FILE\t<file>*
//	host → client   DUMP   → DUMP\t<file>\t<line>\t<content>*
//
// For a "*" window the (line, hash) pairs of each file are preceded by the
// file name. Lines are 0-based on this wire.
//
// The editor wire (editor ⇄ host over a websocket) uses 1-based lines and
// escapes backslash, CR, LF and tab inside free text.
//
// Decoding never panics and never drops a line: anything that cannot be
// decoded comes back as an Unrecognized (client wire) or InvalidCommand
// (editor wire) value carrying a *DecodeError.
package protocol
