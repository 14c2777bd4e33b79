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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

// Verbs of the editor wire that are not shared with the client wire.
const (
	VerbGet        = "GET"
	VerbGot        = "GOT"
	VerbChange     = "CHANGE"
	VerbPatch      = "PATCH"
	VerbAdornment  = "ADORNMENT"
	VerbDiagnostic = "DIAGNOSTIC"
)

const (
	expectEditor  = "GET | CHANGE | WATCH | PATCH | DUMP | FILES"
	expectChange  = "CHANGE file startLine startCol oldLineCount newLineCount oldLength newContent"
	expectEdWatch = "WATCH file [line count]"
)

// EditorCommand is one decoded line sent by the editor.
type EditorCommand interface {
	isEditorCommand()
}

// GetCommand asks for the current text of File.
type GetCommand struct {
	File string
}

// ChangeCommand replaces OldLineCount lines starting at StartLine with
// NewContent. StartLine is 0-based after decoding.
type ChangeCommand struct {
	File         string
	StartLine    int
	StartColumn  int
	OldLineCount int
	NewLineCount int
	OldLength    int
	NewContent   string
}

// EditorWatchCommand sets the watch window. Lines are 0-based after decoding.
type EditorWatchCommand struct {
	Window datatypes.WatchWindow
}

// PatchCommand applies a unified diff to the project.
type PatchCommand struct {
	Diff string
}

// EditorDebugCommand forwards FILES or DUMP to the client.
type EditorDebugCommand struct {
	Verb string
}

// InvalidCommand is an editor line that could not be decoded.
type InvalidCommand struct {
	Line string
	Err  error
}

func (GetCommand) isEditorCommand()         {}
func (ChangeCommand) isEditorCommand()      {}
func (EditorWatchCommand) isEditorCommand() {}
func (PatchCommand) isEditorCommand()       {}
func (EditorDebugCommand) isEditorCommand() {}
func (InvalidCommand) isEditorCommand()     {}

// DecodeEditorLine decodes one editor line, converting 1-based lines to
// 0-based and unescaping free text.
func DecodeEditorLine(line string) EditorCommand {
	line = strings.TrimSuffix(line, "\r")
	verb, rest, _ := strings.Cut(line, "\t")
	switch verb {
	case VerbGet:
		if rest == "" || strings.Contains(rest, "\t") {
			return InvalidCommand{Line: line, Err: malformed(line, "GET file")}
		}
		return GetCommand{File: rest}
	case VerbChange:
		return decodeChange(line)
	case VerbWatch:
		return decodeEditorWatch(line)
	case VerbPatch:
		return PatchCommand{Diff: UnescapeText(rest)}
	case VerbFiles, VerbDump:
		if rest != "" {
			return InvalidCommand{Line: line, Err: malformed(line, verb)}
		}
		return EditorDebugCommand{Verb: verb}
	}
	return InvalidCommand{Line: line, Err: unknown(line, expectEditor)}
}

func decodeChange(line string) EditorCommand {
	fields := strings.SplitN(line, "\t", 8)
	if len(fields) != 8 {
		return InvalidCommand{Line: line, Err: malformed(line, expectChange)}
	}
	nums := make([]int, 5)
	for i := range nums {
		n, err := strconv.Atoi(fields[2+i])
		if err != nil || n < 0 {
			return InvalidCommand{Line: line, Err: malformed(line, expectChange)}
		}
		nums[i] = n
	}
	if nums[0] < 1 {
		return InvalidCommand{Line: line, Err: malformed(line, expectChange)}
	}
	return ChangeCommand{
		File:         fields[1],
		StartLine:    nums[0] - 1,
		StartColumn:  nums[1],
		OldLineCount: nums[2],
		NewLineCount: nums[3],
		OldLength:    nums[4],
		NewContent:   UnescapeText(fields[7]),
	}
}

func decodeEditorWatch(line string) EditorCommand {
	fields := strings.Split(line, "\t")
	switch len(fields) {
	case 2:
		if fields[1] == "" {
			break
		}
		return EditorWatchCommand{Window: datatypes.WatchWindow{File: fields[1], Line: -1, Count: -1}}
	case 4:
		start, err1 := strconv.Atoi(fields[2])
		count, err2 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || fields[1] == "" || start < 1 || count < 0 {
			break
		}
		return EditorWatchCommand{Window: datatypes.WatchWindow{File: fields[1], Line: start - 1, Count: count}}
	}
	return InvalidCommand{Line: line, Err: malformed(line, expectEdWatch)}
}

// EncodeAdornmentAdd formats an adornment for the editor. line is 0-based.
func EncodeAdornmentAdd(tag int64, file string, line int, content string) string {
	return fmt.Sprintf("ADORNMENT\tadd\t%d\t%s\t%d\t%s", tag, file, line+1, EscapeText(content))
}

// EncodeAdornmentRemove formats an adornment removal for the editor.
func EncodeAdornmentRemove(tag int64, file string) string {
	return fmt.Sprintf("ADORNMENT\tremove\t%d\t%s", tag, file)
}

// EncodeDiagnosticAdd formats a diagnostic for the editor.
func EncodeDiagnosticAdd(d datatypes.Diagnostic) string {
	return fmt.Sprintf("DIAGNOSTIC\tadd\t%d\t%s\t%s\t%d\t%d\t%d\t%s",
		d.Tag, d.File, d.Severity, d.Line, d.Column, d.Length, EscapeText(d.FullMessage()))
}

// EncodeDiagnosticRemove formats a diagnostic removal for the editor.
func EncodeDiagnosticRemove(tag int64) string {
	return fmt.Sprintf("DIAGNOSTIC\tremove\t%d", tag)
}

// EncodeEditorError formats an error for the editor.
func EncodeEditorError(message string) string {
	return "ERROR\t" + EscapeText(message)
}

// EncodeGot replies to GET.
func EncodeGot(file, text string) string {
	return "GOT\t" + file + "\t" + EscapeText(text)
}

var escaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, "\t", `\t`)

// EscapeText escapes backslash, CR, LF and tab.
func EscapeText(s string) string {
	return escaper.Replace(s)
}

// UnescapeText reverses EscapeText. Unknown escapes are kept verbatim.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '\\':
			sb.WriteByte('\\')
		case 'r':
			sb.WriteByte('\r')
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
