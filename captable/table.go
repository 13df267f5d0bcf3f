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

// Package captable implements the per-process capability table described
// in spec.md §4.1: a handle-indexed map from (kind, rights, generation) to
// a kernel object reference, with lowest-free-slot allocation and
// generation-based stale-handle detection.
//
// The locking pattern (a single sync.RWMutex guarding a slice of slots)
// follows handler/handlerDB.go's handlerService in the teacher repo.
package captable

import (
	"sync"

	"github.com/splanck/viperos/domain"
)

// slotBits is the number of bits of a Handle devoted to the slot index;
// the remaining high bits carry the generation counter. This lets a stale
// handle (one referencing a slot that has since been reused) be rejected
// without any table lookup beyond a single slice index.
const slotBits = 24
const slotMask = (1 << slotBits) - 1

func encode(slot int, generation uint8) domain.Handle {
	return domain.Handle(uint32(generation)<<slotBits | uint32(slot)&slotMask)
}

func decode(h domain.Handle) (slot int, generation uint8) {
	v := uint32(h)
	return int(v & slotMask), uint8(v >> slotBits)
}

type slot struct {
	used       bool
	kind       domain.Kind
	rights     domain.Rights
	generation uint8
	obj        domain.Object
}

// Table is a per-process capability table. The zero value is not usable;
// construct with New.
type Table struct {
	mu    sync.RWMutex
	slots []slot
	// freeHint is the lowest index that might be free, kept as a cheap
	// forward-scan starting point (slot allocation is always lowest-free,
	// per spec.md §4.1, to keep handle values small and reproducible).
	freeHint int
}

// New returns an empty capability table.
func New() *Table {
	return &Table{}
}

var _ domain.CapTable = (*Table)(nil)

// Install allocates the lowest free slot for obj and returns its handle.
func (t *Table) Install(obj domain.Object, kind domain.Kind, rights domain.Rights) (domain.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i := t.freeHint; i < len(t.slots); i++ {
		if !t.slots[i].used {
			idx = i
			break
		}
	}
	if idx == -1 {
		if len(t.slots) > slotMask {
			return domain.NoHandle, domain.OutOfMemory
		}
		idx = len(t.slots)
		t.slots = append(t.slots, slot{})
	}

	s := &t.slots[idx]
	s.used = true
	s.kind = kind
	s.rights = rights
	s.obj = obj
	t.freeHint = idx + 1

	return encode(idx, s.generation), nil
}

// Lookup validates h and returns its underlying object.
func (t *Table) Lookup(h domain.Handle, expectedKind domain.Kind, neededRights domain.Rights) (domain.Object, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, err := t.find(h)
	if err != nil {
		return nil, err
	}
	if expectedKind != domain.KindInvalid && s.kind != expectedKind {
		return nil, domain.WrongType
	}
	if !s.rights.Has(neededRights) {
		return nil, domain.Permission
	}
	return s.obj, nil
}

// find returns the slot backing h without any rights/kind check, validating
// only that the slot is in use and the generation matches. Caller must hold
// at least a read lock.
func (t *Table) find(h domain.Handle) (*slot, error) {
	idx, generation := decode(h)
	if idx < 0 || idx >= len(t.slots) {
		return nil, domain.InvalidHandle
	}
	s := &t.slots[idx]
	if !s.used || s.generation != generation {
		return nil, domain.InvalidHandle
	}
	return s, nil
}

// Derive creates a new handle with newRights, a subset of h's rights.
func (t *Table) Derive(h domain.Handle, newRights domain.Rights) (domain.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.find(h)
	if err != nil {
		return 0, err
	}
	if !s.rights.Has(domain.RightDerive) {
		return 0, domain.Permission
	}
	if !newRights.Subset(s.rights) {
		return 0, domain.Permission
	}

	idx := -1
	for i := t.freeHint; i < len(t.slots); i++ {
		if !t.slots[i].used {
			idx = i
			break
		}
	}
	obj := s.obj
	kind := s.kind
	if idx == -1 {
		idx = len(t.slots)
		t.slots = append(t.slots, slot{})
	}
	ns := &t.slots[idx]
	ns.used = true
	ns.kind = kind
	ns.rights = newRights
	ns.obj = obj
	t.freeHint = idx + 1

	// A derived handle is a second live reference onto the same object, not
	// a move: anything ref-counted (domain.SharedMemory) must count it, or
	// the first Revoke/Unref of either handle releases the object out from
	// under the other.
	if rc, ok := obj.(interface{ Ref() }); ok {
		rc.Ref()
	}

	return encode(idx, ns.generation), nil
}

// Revoke drops the slot backing h, bumping its generation so any
// outstanding copy of h is detectably stale once the slot is reused.
func (t *Table) Revoke(h domain.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.find(h)
	if err != nil {
		return err
	}
	idx, _ := decode(h)
	s.used = false
	s.obj = nil
	s.generation++
	if idx < t.freeHint {
		t.freeHint = idx
	}
	return nil
}

// Transfer moves the slot backing h into dst, freeing it here.
func (t *Table) Transfer(dst domain.CapTable, h domain.Handle) (domain.Handle, error) {
	t.mu.Lock()
	s, err := t.find(h)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	if !s.rights.Has(domain.RightXfer) {
		t.mu.Unlock()
		return 0, domain.Permission
	}
	obj, kind, rights := s.obj, s.kind, s.rights
	idx, _ := decode(h)
	s.used = false
	s.obj = nil
	s.generation++
	if idx < t.freeHint {
		t.freeHint = idx
	}
	t.mu.Unlock()

	return dst.Install(obj, kind, rights)
}

// Query returns introspection info about h.
func (t *Table) Query(h domain.Handle) (domain.Info, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, err := t.find(h)
	if err != nil {
		return domain.Info{}, err
	}
	return domain.Info{
		Handle:     h,
		Kind:       s.kind,
		Generation: s.generation,
		Rights:     s.rights,
	}, nil
}

// List fills out with up to len(out) entries for diagnostics.
func (t *Table) List(out []domain.ListEntry) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for i := range t.slots {
		if n >= len(out) {
			break
		}
		s := &t.slots[i]
		if !s.used {
			continue
		}
		out[n] = domain.ListEntry{
			Handle:     encode(i, s.generation),
			Kind:       s.kind,
			Generation: s.generation,
			Rights:     s.rights,
		}
		n++
	}
	return n
}
