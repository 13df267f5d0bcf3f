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

// Package shm implements anonymous page-backed shared memory regions
// (spec.md §4.3), mmap'd with golang.org/x/sys/unix so the backing bytes
// are real, zero-copy-mappable pages rather than a plain Go slice — the
// same dependency the teacher repo uses for its mount/namespace syscalls,
// here generalized from process-namespace entry to page allocation.
package shm

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/splanck/viperos/domain"
)

const pageSize = 4096

func roundUpPage(n int) int {
	if n <= 0 {
		return pageSize
	}
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Region is one anonymous shared-memory object, ref-counted across the
// capability handles and mappings referencing it.
type Region struct {
	mu       sync.Mutex
	data     []byte
	refCount int
	released bool
}

var _ domain.SharedMemory = (*Region)(nil)

// New allocates a zero-filled region of at least size bytes, rounded up
// to a whole number of pages.
func New(size int) (*Region, error) {
	sz := roundUpPage(size)
	data, err := unix.Mmap(-1, 0, sz, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, domain.OutOfMemory
	}
	return &Region{data: data, refCount: 1}, nil
}

func (r *Region) Kind() domain.Kind { return domain.KindSharedMemory }

func (r *Region) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Ref records one more live reference (a handle install or a mapping).
func (r *Region) Ref() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.released {
		r.refCount++
	}
}

// Unref drops one reference, releasing the backing pages once the count
// reaches zero. Safe to call more than once past release (a no-op).
func (r *Region) Unref() (released bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return true
	}
	r.refCount--
	if r.refCount > 0 {
		return false
	}
	_ = unix.Munmap(r.data)
	r.data = nil
	r.released = true
	return true
}
