//
// Copyright 2024 The ViperOS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package assign implements the system-global name registry described in
// spec.md §4.5, indexing names with a persistent radix tree the way
// handler/handlerDB.go indexes filesystem-emulation handlers by path —
// generalized here from path-prefix handler dispatch to exact-name service
// lookup, since assign names have no meaningful prefix relationship to
// each other.
package assign

import (
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/splanck/viperos/domain"
)

type entry struct {
	handle domain.Handle
	flags  domain.AssignFlags
}

// Registry is the system-global assign table. The zero value is not
// usable; construct with New.
type Registry struct {
	mu   sync.RWMutex
	tree *iradix.Tree
}

var _ domain.AssignRegistry = (*Registry)(nil)

// New returns an empty registry.
func New() *Registry {
	return &Registry{tree: iradix.New()}
}

// Set installs or unconditionally replaces name's entry, matching spec.md
// §4.5's assign_set: "register; replaces existing." Re-registering a name
// does not invalidate handles previously returned by Get/Resolve for it
// (see DESIGN.md); existing holders keep their own copy, only future
// lookups observe the new handle.
func (r *Registry) Set(name string, h domain.Handle, flags domain.AssignFlags) error {
	if len(name) == 0 || len(name) > domain.MaxAssignNameLen {
		return domain.InvalidArg
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tree, _, _ := r.tree.Insert([]byte(name), entry{handle: h, flags: flags})
	r.tree = tree
	return nil
}

// Get resolves an exact name to its handle.
func (r *Registry) Get(name string) (domain.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.tree.Get([]byte(name))
	if !ok {
		return domain.NoHandle, domain.NotFound
	}
	return v.(entry).handle, nil
}

// Remove drops name's entry.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, _, ok := r.tree.Delete([]byte(name))
	if !ok {
		return domain.NotFound
	}
	r.tree = tree
	return nil
}

// List returns a snapshot of every registered entry.
func (r *Registry) List() []domain.AssignEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.AssignEntry
	r.tree.Root().Walk(func(k []byte, v interface{}) bool {
		e := v.(entry)
		out = append(out, domain.AssignEntry{Name: string(k), Handle: e.handle, Flags: e.flags})
		return false
	})
	return out
}

// Resolve splits a "NAME:rest/of/path" style string at its first ':',
// looks up NAME, and returns its handle together with the remainder.
func (r *Registry) Resolve(path string) (domain.Handle, string, error) {
	idx := strings.IndexByte(path, ':')
	if idx < 0 {
		return domain.NoHandle, "", domain.InvalidArg
	}
	name, rest := path[:idx], path[idx+1:]

	h, err := r.Get(name)
	if err != nil {
		return domain.NoHandle, "", err
	}
	return h, rest, nil
}
