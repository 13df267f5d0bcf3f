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

// AssignFlags describes the behavior of an assign-registry entry
// (spec.md §4.5).
type AssignFlags uint32

const (
	AssignNone     AssignFlags = 0
	AssignSystem   AssignFlags = 1 << 0
	AssignDeferred AssignFlags = 1 << 1
	// AssignMulti is carried through Set/List for callers that want to mark
	// an entry as one of several registrations sharing a name prefix; no
	// lookup (Get or Resolve) treats such entries as a group, and it does
	// not gate Set's replace behavior, which is unconditional per spec.md §4.5.
	AssignMulti AssignFlags = 1 << 2
)

// MaxAssignNameLen is the maximum length of an assign name, not counting
// the trailing ':' convention which is never stored.
const MaxAssignNameLen = 31

// AssignEntry is one row of an assign_list dump.
type AssignEntry struct {
	Name   string
	Handle Handle
	Flags  AssignFlags
}

// AssignRegistry is the process-/system-global name → capability mapping
// used for service discovery (spec.md §4.5). This repository resolves the
// Open Question in favor of system-global (see DESIGN.md).
type AssignRegistry interface {
	Set(name string, h Handle, flags AssignFlags) error
	Get(name string) (Handle, error)
	Remove(name string) error
	List() []AssignEntry

	// Resolve walks a "NAME:rest/of/path" style path: it looks up NAME and
	// returns its handle together with the remaining path components.
	Resolve(path string) (Handle, string, error)
}
