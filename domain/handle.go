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

import "fmt"

// Handle is a process-local, opaque 32-bit identifier for a capability
// table slot. Handle values encode no information user-space may rely on
// beyond equality and the two distinguished constants below; the kernel
// is free to pick any encoding internally (see captable.encode/decode).
type Handle uint32

// NoHandle is used in transfer lists and optional-handle fields to mean
// "no handle present".
const NoHandle Handle = 0

// ConsoleInput is the pseudo-handle denoting the console input source.
// It is only valid as an argument to poll_add/poll_remove; it never
// appears as a capability-table entry.
const ConsoleInput Handle = 0xFFFF0001

// BootstrapHandle is the well-known handle value a freshly spawned task
// finds its bootstrap receive endpoint installed at.
const BootstrapHandle Handle = 0

func (h Handle) String() string {
	switch h {
	case NoHandle:
		return "<none>"
	case ConsoleInput:
		return "<console>"
	default:
		return fmt.Sprintf("0x%x", uint32(h))
	}
}

// Valid reports whether h could plausibly identify a real capability
// slot (i.e. is neither NoHandle nor a pseudo-handle).
func (h Handle) Valid() bool {
	return h != NoHandle && h != ConsoleInput
}
