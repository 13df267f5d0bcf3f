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

// SharedMemory is an anonymous, page-backed region that can be mapped
// into multiple processes (spec.md §4.3). A SharedMemory value itself
// represents the kernel object; per-process mappings are tracked by the
// kernel's process/task layer, not here.
type SharedMemory interface {
	Object

	// Size returns the page-rounded size in bytes.
	Size() int

	// Bytes returns the backing slice. Callers holding a mapping read and
	// write through this slice directly; there is no kernel-mediated
	// locking (spec.md §5).
	Bytes() []byte

	// Ref/Unref track combined handle+mapping liveness; when the count
	// drops to zero the region's pages are released.
	Ref()
	Unref() (released bool)
}
