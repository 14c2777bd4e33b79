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

// Verbs of the client wire.
const (
	Handshake  = "OK"
	VerbWatch  = "WATCH"
	VerbReplay = "REPLAY"
	VerbEnd    = "END"
	VerbError  = "ERROR"
	VerbDebug  = "DEBUG"
	VerbFiles  = "FILES"
	VerbFile   = "FILE"
	VerbDump   = "DUMP"
)

const (
	expectReplay = "REPLAY add file line hash content | REPLAY remove file line hash"
	expectEnd    = "END run | END watch correlation"
	expectClient = "REPLAY | END | ERROR | DEBUG | FILE | DUMP"
	expectDump   = "DUMP file line content"
	expectFile   = "FILE file"
)

// =============================================================================
// CLIENT → HOST MESSAGES
// =============================================================================

// Message is one decoded client line. The concrete types are listed below.
type Message interface {
	isMessage()
}

// ReplayAdd reports that (File, Line) now shows Content.
type ReplayAdd struct {
	File    string
	Line    int
	Hash    int32
	Content string
}

// ReplayRemove reports that (File, Line) no longer executes.
type ReplayRemove struct {
	File string
	Line int
	Hash int32
}

// EndRun marks the end of the program's execution.
type EndRun struct{}

// EndWatch acknowledges the WATCH that carried Correlation.
type EndWatch struct {
	Correlation string
}

// ClientError is an ERROR line raised by the client.
type ClientError struct {
	Text string
}

// Debug is a DEBUG line raised by the client.
type Debug struct {
	Text string
}

// FileEntry is one reply line to FILES.
type FileEntry struct {
	File string
}

// DumpEntry is one reply line to DUMP.
type DumpEntry struct {
	File    string
	Line    int
	Content string
}

// HandshakeOK is the "OK" line.
type HandshakeOK struct{}

// Unrecognized is a line that could not be decoded. Err is a *DecodeError.
type Unrecognized struct {
	Line string
	Err  error
}

func (ReplayAdd) isMessage()    {}
func (ReplayRemove) isMessage() {}
func (EndRun) isMessage()       {}
func (EndWatch) isMessage()     {}
func (ClientError) isMessage()  {}
func (Debug) isMessage()        {}
func (FileEntry) isMessage()    {}
func (DumpEntry) isMessage()    {}
func (HandshakeOK) isMessage()  {}
func (Unrecognized) isMessage() {}

// DecodeClientLine decodes one line sent by the client.
//
// Description:
//
//	Returns exactly one Message. Lines that do not match the grammar are
//	returned as Unrecognized with a *DecodeError describing the expected
//	shape; they are never silently dropped.
//
// Inputs:
//
//	line - One line without its trailing newline. A trailing "\r" is tolerated.
//
// Outputs:
//
//	Message - One of the concrete message types of this package.
func DecodeClientLine(line string) Message {
	line = strings.TrimSuffix(line, "\r")
	if line == Handshake {
		return HandshakeOK{}
	}
	verb, rest, _ := strings.Cut(line, "\t")
	switch verb {
	case VerbReplay:
		return decodeReplay(line)
	case VerbEnd:
		return decodeEnd(line)
	case VerbError:
		return ClientError{Text: rest}
	case VerbDebug:
		return Debug{Text: rest}
	case VerbFile:
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return Unrecognized{Line: line, Err: malformed(line, expectFile)}
		}
		return FileEntry{File: fields[1]}
	case VerbDump:
		fields := strings.SplitN(line, "\t", 4)
		if len(fields) != 4 {
			return Unrecognized{Line: line, Err: malformed(line, expectDump)}
		}
		n, err := parseLine(fields[2])
		if err != nil {
			return Unrecognized{Line: line, Err: malformed(line, expectDump)}
		}
		return DumpEntry{File: fields[1], Line: n, Content: fields[3]}
	}
	return Unrecognized{Line: line, Err: unknown(line, expectClient)}
}

func decodeReplay(line string) Message {
	fields := strings.SplitN(line, "\t", 6)
	if len(fields) < 5 {
		return Unrecognized{Line: line, Err: malformed(line, expectReplay)}
	}
	n, err := parseLine(fields[3])
	if err != nil {
		return Unrecognized{Line: line, Err: malformed(line, expectReplay)}
	}
	hash, err := parseHash(fields[4])
	if err != nil {
		return Unrecognized{Line: line, Err: malformed(line, expectReplay)}
	}
	if !ValidFile(fields[2]) {
		return Unrecognized{Line: line, Err: malformed(line, expectReplay)}
	}
	switch {
	case fields[1] == "add" && len(fields) == 6:
		return ReplayAdd{File: fields[2], Line: n, Hash: hash, Content: fields[5]}
	case fields[1] == "remove" && len(fields) == 5:
		return ReplayRemove{File: fields[2], Line: n, Hash: hash}
	}
	return Unrecognized{Line: line, Err: malformed(line, expectReplay)}
}

func decodeEnd(line string) Message {
	fields := strings.Split(line, "\t")
	switch {
	case len(fields) == 2 && fields[1] == "run":
		return EndRun{}
	case len(fields) == 3 && fields[1] == "watch":
		return EndWatch{Correlation: fields[2]}
	}
	return Unrecognized{Line: line, Err: malformed(line, expectEnd)}
}

// EncodeReplayAdd formats a REPLAY add line. Content is sanitized.
func EncodeReplayAdd(file string, line int, hash int32, content string) string {
	return fmt.Sprintf("REPLAY\tadd\t%s\t%d\t%d\t%s", file, line, hash, SanitizeContent(content))
}

// EncodeReplayRemove formats a REPLAY remove line.
func EncodeReplayRemove(file string, line int, hash int32) string {
	return fmt.Sprintf("REPLAY\tremove\t%s\t%d\t%d", file, line, hash)
}

// EncodeEndRun formats END run.
func EncodeEndRun() string {
	return "END\trun"
}

// EncodeEndWatch formats END watch.
func EncodeEndWatch(correlation string) string {
	return "END\twatch\t" + correlation
}

// EncodeError formats an ERROR line.
func EncodeError(message string) string {
	return "ERROR\t" + SanitizeContent(message)
}

// EncodeDebug formats a DEBUG line.
func EncodeDebug(message string) string {
	return "DEBUG\t" + SanitizeContent(message)
}

// EncodeFile formats one FILES reply line.
func EncodeFile(file string) string {
	return "FILE\t" + file
}

// EncodeDumpEntry formats one DUMP reply line.
func EncodeDumpEntry(file string, line int, content string) string {
	return fmt.Sprintf("DUMP\t%s\t%d\t%s", file, line, SanitizeContent(content))
}

// SanitizeContent makes free text safe as the last field of a line: tabs
// become spaces, CR and LF become the two-character sequences \r and \n.
func SanitizeContent(s string) string {
	if !strings.ContainsAny(s, "\t\r\n") {
		return s
	}
	return contentReplacer.Replace(s)
}

var contentReplacer = strings.NewReplacer("\t", " ", "\r", `\r`, "\n", `\n`)

// ValidFile reports whether name can travel as a file field. A name that
// parses as an integer is rejected: in a wildcard WATCH it could not be told
// apart from a line number.
func ValidFile(name string) bool {
	if name == "" || strings.ContainsAny(name, "\t\r\n") {
		return false
	}
	_, err := strconv.Atoi(name)
	return err != nil
}

func parseLine(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative line %d", n)
	}
	return n, nil
}

func parseHash(s string) (int32, error) {
	h, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(h), nil
}

// =============================================================================
// HOST → CLIENT COMMANDS
// =============================================================================

// HostCommand is one decoded line sent by the host to the client.
type HostCommand interface {
	isHostCommand()
}

// WatchCommand is a decoded WATCH line.
//
// Known holds the host's current belief about line hashes inside the
// window, per file, so the client only needs to send differences.
type WatchCommand struct {
	Correlation string
	Window      datatypes.WatchWindow
	Known       map[string]map[int]int32
}

// FilesCommand asks the client to list the files it has seen.
type FilesCommand struct{}

// DumpCommand asks the client to dump its whole database.
type DumpCommand struct{}

// UnknownCommand is a host line the client could not decode.
type UnknownCommand struct {
	Line string
	Err  error
}

func (WatchCommand) isHostCommand()   {}
func (FilesCommand) isHostCommand()   {}
func (DumpCommand) isHostCommand()    {}
func (UnknownCommand) isHostCommand() {}

const (
	expectWatch = "WATCH correlation file line count <hashes>"
	expectHost  = "FILES | DUMP | WATCH"
)

// EncodeWatch formats a WATCH line.
//
// Description:
//
//	Known adornments outside the window are skipped. For a single-file
//	window the (line, hash) pairs follow the header directly. For a "*"
//	window every file's pairs are preceded by the file name. Callers pass
//	known in file order (DiffWindow already sorts that way); a file that
//	reappears later simply starts a new group. File names must pass
//	ValidFile, which decoding REPLAY lines already enforces.
//
// Inputs:
//
//	correlation - Token echoed back in END watch. May be empty.
//	window - The window being watched.
//	known - Adornments the host already holds.
//
// Outputs:
//
//	string - The WATCH line without a newline.
func EncodeWatch(correlation string, window datatypes.WatchWindow, known []datatypes.Adornment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "WATCH\t%s\t%s\t%d\t%d", correlation, window.File, window.Line, window.Count)
	current := ""
	if window.File != datatypes.AllFiles {
		current = window.File
	}
	for _, a := range known {
		if !window.Contains(a.File, a.Line) {
			continue
		}
		if a.File != current {
			sb.WriteString("\t")
			sb.WriteString(a.File)
			current = a.File
		}
		fmt.Fprintf(&sb, "\t%d\t%d", a.Line, a.ContentHash)
	}
	return sb.String()
}

// EncodeFiles formats the FILES debug command.
func EncodeFiles() string { return VerbFiles }

// EncodeDump formats the DUMP debug command.
func EncodeDump() string { return VerbDump }

// DecodeHostLine decodes one line received by the client.
func DecodeHostLine(line string) HostCommand {
	line = strings.TrimSuffix(line, "\r")
	fields := strings.Split(line, "\t")
	switch fields[0] {
	case VerbFiles:
		if len(fields) != 1 {
			return UnknownCommand{Line: line, Err: malformed(line, VerbFiles)}
		}
		return FilesCommand{}
	case VerbDump:
		if len(fields) != 1 {
			return UnknownCommand{Line: line, Err: malformed(line, VerbDump)}
		}
		return DumpCommand{}
	case VerbWatch:
		cmd, err := DecodeWatch(line)
		if err != nil {
			return UnknownCommand{Line: line, Err: err}
		}
		return cmd
	}
	return UnknownCommand{Line: line, Err: unknown(line, expectHost)}
}

// DecodeWatch decodes a WATCH line. It accepts both the single-file form
// and the form where each file's pairs are preceded by the file name.
func DecodeWatch(line string) (WatchCommand, error) {
	line = strings.TrimSuffix(line, "\r")
	fields := strings.Split(line, "\t")
	if len(fields) < 5 || fields[0] != VerbWatch {
		return WatchCommand{}, malformed(line, expectWatch)
	}
	start, err1 := strconv.Atoi(fields[3])
	count, err2 := strconv.Atoi(fields[4])
	if err1 != nil || err2 != nil || fields[2] == "" {
		return WatchCommand{}, malformed(line, expectWatch)
	}
	cmd := WatchCommand{
		Correlation: fields[1],
		Window:      datatypes.WatchWindow{File: fields[2], Line: start, Count: count},
		Known:       make(map[string]map[int]int32),
	}
	current := ""
	if cmd.Window.File != datatypes.AllFiles {
		current = cmd.Window.File
	}
	for i := 5; i < len(fields); {
		if i+1 < len(fields) {
			n, errLine := strconv.Atoi(fields[i])
			h, errHash := parseHash(fields[i+1])
			if errLine == nil && errHash == nil {
				if current == "" {
					return WatchCommand{}, malformed(line, expectWatch)
				}
				if cmd.Known[current] == nil {
					cmd.Known[current] = make(map[int]int32)
				}
				cmd.Known[current][n] = h
				i += 2
				continue
			}
		}
		current = fields[i]
		if cmd.Known[current] == nil {
			cmd.Known[current] = make(map[int]int32)
		}
		i++
	}
	return cmd, nil
}
