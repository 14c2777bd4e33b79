// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"sync"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// command is one queued request. Exactly one of the payloads is set.
type command struct {
	change     *changeCommand
	watch      *datatypes.WatchWindow
	debugVerb  string
	completion *Completion
}

type changeCommand struct {
	doc   *workspace.Document
	edits []workspace.LineEdit
}

// commandQueue is an unbounded FIFO. push never blocks; the loop is woken
// through signal.
type commandQueue struct {
	mu     sync.Mutex
	items  []command
	closed bool
	signal chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{signal: make(chan struct{}, 1)}
}

func (q *commandQueue) push(cmd command) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrDisposed
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *commandQueue) pop() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return command{}, false
	}
	cmd := q.items[0]
	q.items[0] = command{}
	q.items = q.items[1:]
	return cmd, true
}

// close rejects further pushes and returns whatever was still queued.
func (q *commandQueue) close() []command {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}
