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
	"fmt"
	"sort"
	"sync"
)

// AutorunFunc is a parameterless function run after the main program.
// A returned error or a panic is shown on the function's line.
type AutorunFunc func() error

// Registry maps autorun names ("Type.Method" or "Func") to functions.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]AutorunFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]AutorunFunc)}
}

// Register adds fn under name.
func (r *Registry) Register(name string, fn AutorunFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAutorun, name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister is Register for package initialization; it panics on a
// duplicate name.
func (r *Registry) MustRegister(name string, fn AutorunFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the function registered under name. A nil registry has
// no functions.
func (r *Registry) Lookup(name string) (AutorunFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
