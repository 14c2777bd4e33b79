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

import (
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

// DiffDiagnostics replaces the stored diagnostics with next.
//
// Description:
//
//	Diagnostics are matched by structural identity (Diagnostic.Key), never
//	by tag. Stored diagnostics without a match in next are removed and
//	returned with their tags. Diagnostics of next without a stored match
//	get a fresh tag and are returned as added. Matched diagnostics keep
//	their old tag. Duplicate keys are matched one to one.
//
// Inputs:
//
//	next - The complete diagnostic set of the latest build.
//
// Outputs:
//
//	removed - Stored diagnostics that disappeared, in stored order.
//	added - New diagnostics with their tags, in next's order.
func (db *Database) DiffDiagnostics(next []datatypes.Diagnostic) (removed, added []datatypes.Diagnostic) {
	pending := make(map[datatypes.DiagnosticKey][]int, len(db.diagnostics))
	for i, d := range db.diagnostics {
		k := d.Key()
		pending[k] = append(pending[k], i)
	}

	kept := make([]bool, len(db.diagnostics))
	current := make([]datatypes.Diagnostic, 0, len(next))
	for _, d := range next {
		k := d.Key()
		if idx := pending[k]; len(idx) > 0 {
			pending[k] = idx[1:]
			kept[idx[0]] = true
			current = append(current, db.diagnostics[idx[0]])
			continue
		}
		db.lastDiagTag++
		d.Tag = db.lastDiagTag
		added = append(added, d)
		current = append(current, d)
	}
	for i, d := range db.diagnostics {
		if !kept[i] {
			removed = append(removed, d)
		}
	}
	db.diagnostics = current
	return removed, added
}

// ClearDiagnostics removes and returns every stored diagnostic.
func (db *Database) ClearDiagnostics() []datatypes.Diagnostic {
	removed := db.diagnostics
	db.diagnostics = nil
	return removed
}

// Diagnostics returns a copy of the stored diagnostics.
func (db *Database) Diagnostics() []datatypes.Diagnostic {
	out := make([]datatypes.Diagnostic, len(db.diagnostics))
	copy(out, db.diagnostics)
	return out
}
