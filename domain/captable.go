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

package domain

// CapTable is the per-process capability namespace (spec.md §4.1). Every
// operation here is what a numbered syscall consults before touching the
// underlying kernel object.
type CapTable interface {
	// Install allocates the lowest free slot for obj, returning its new
	// handle. Fails with OutOfMemory when the table is exhausted.
	Install(obj Object, kind Kind, rights Rights) (Handle, error)

	// Lookup validates h against expectedKind/neededRights and returns the
	// underlying object. expectedKind == KindInvalid skips the kind check
	// (used by handle-agnostic syscalls like cap_query).
	Lookup(h Handle, expectedKind Kind, neededRights Rights) (Object, error)

	// Derive creates a new handle referencing the same object as h with
	// newRights, which must be a subset of h's current rights.
	Derive(h Handle, newRights Rights) (Handle, error)

	// Revoke drops the slot backing h.
	Revoke(h Handle) error

	// Transfer moves the slot backing h out of this table and installs it
	// into dst, requiring RightXfer on h. The source slot is freed.
	Transfer(dst CapTable, h Handle) (Handle, error)

	// Query returns introspection info about h without consuming rights.
	Query(h Handle) (Info, error)

	// List fills out with up to len(out) entries, returning the count
	// written.
	List(out []ListEntry) int
}
