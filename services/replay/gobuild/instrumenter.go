// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gobuild

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/supervisor"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// AutorunDirective marks a function the client runs after main returns.
const AutorunDirective = "//replay:autorun"

// Instrumenter discovers autoruns. The document itself is passed through
// unchanged.
type Instrumenter struct {
	logger *slog.Logger
}

var _ supervisor.Instrumenter = (*Instrumenter)(nil)

// NewInstrumenter creates an Instrumenter. Nil logger means slog.Default().
func NewInstrumenter(logger *slog.Logger) *Instrumenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumenter{logger: logger}
}

// Instrument implements supervisor.Instrumenter.
func (i *Instrumenter) Instrument(ctx context.Context, doc *workspace.Document) (supervisor.Instrumented, error) {
	var autoruns []datatypes.Autorun
	for _, file := range doc.Files() {
		if !strings.HasSuffix(file, ".go") || strings.HasSuffix(file, "_test.go") {
			continue
		}
		text, _ := doc.Text(file)
		found, err := FindAutoruns(ctx, file, []byte(text))
		if err != nil {
			return supervisor.Instrumented{}, err
		}
		autoruns = append(autoruns, found...)
	}
	if len(autoruns) > 0 {
		i.logger.Debug("Autoruns found", slog.Int("count", len(autoruns)))
	}
	return supervisor.Instrumented{Document: doc, Autoruns: autoruns}, nil
}

// FindAutoruns returns the functions and methods in content that are
// directly preceded by AutorunDirective and take no parameters.
//
// Inputs:
//
//	ctx - Cancels the parse.
//	file - Document file name, copied into the results.
//	content - Go source.
//
// Outputs:
//
//	[]datatypes.Autorun - In source order. Line is 0-based.
//	error - Parse failure.
func FindAutoruns(ctx context.Context, file string, content []byte) ([]datatypes.Autorun, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	var out []datatypes.Autorun
	for idx := 0; idx < int(root.ChildCount()); idx++ {
		node := root.Child(idx)
		if node.Type() != "function_declaration" && node.Type() != "method_declaration" {
			continue
		}
		if !hasDirective(root, idx, node, content) {
			continue
		}
		a, ok := autorunFor(node, content)
		if !ok {
			continue
		}
		a.File = file
		a.Line = int(node.StartPoint().Row)
		out = append(out, a)
	}
	return out, nil
}

// hasDirective reports whether the comment block right above node holds
// the directive.
func hasDirective(root *sitter.Node, idx int, node *sitter.Node, content []byte) bool {
	row := node.StartPoint().Row
	for j := idx - 1; j >= 0; j-- {
		prev := root.Child(j)
		if prev.Type() != "comment" || prev.EndPoint().Row+1 != row {
			return false
		}
		if strings.TrimSpace(prev.Content(content)) == AutorunDirective {
			return true
		}
		row = prev.StartPoint().Row
	}
	return false
}

// autorunFor extracts the name and receiver type of a parameterless
// declaration.
func autorunFor(node *sitter.Node, content []byte) (datatypes.Autorun, bool) {
	var a datatypes.Autorun
	lists := 0
	for k := 0; k < int(node.ChildCount()); k++ {
		child := node.Child(k)
		switch child.Type() {
		case "identifier", "field_identifier":
			a.MethodName = child.Content(content)
		case "parameter_list":
			lists++
			isReceiver := node.Type() == "method_declaration" && lists == 1
			if isReceiver {
				a.TypeName = receiverType(child.Content(content))
				continue
			}
			isParams := (node.Type() == "method_declaration" && lists == 2) ||
				(node.Type() == "function_declaration" && lists == 1)
			if isParams && child.NamedChildCount() > 0 {
				return a, false
			}
		case "type_parameter_list":
			return a, false
		}
	}
	return a, a.MethodName != ""
}

// receiverType turns "(d *Demo)" into "Demo".
func receiverType(receiver string) string {
	receiver = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(receiver, "("), ")"))
	parts := strings.Fields(receiver)
	if len(parts) == 0 {
		return ""
	}
	t := strings.TrimPrefix(parts[len(parts)-1], "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t
}
