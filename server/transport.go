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

package server

import (
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
)

// SendBulk allocates a shared-memory region sized to data, copies data
// into it, and returns a transferable handle to it. Services route
// payloads over MaxInlineData/MaxPayload through this path instead of
// the message body (spec.md §4.8's "mixed inline vs SHM bulk paths"
// design note) — blkd sector data and displayd surface pixel buffers are
// the two canonical users, grounded on blk_client.hpp's write_block,
// which shm_creates before every write.
func SendBulk(disp *kernel.Dispatcher, task domain.Task, data []byte) (domain.Handle, error) {
	if len(data) == 0 {
		return domain.NoHandle, nil
	}
	res := disp.Dispatch(task, domain.OpShmCreate, [6]uint64{uint64(len(data))})
	if !res.OK() {
		return domain.NoHandle, res.Error
	}
	h := domain.Handle(res.Val0)

	obj, err := task.Caps().Lookup(h, domain.KindSharedMemory, domain.RightWrite)
	if err != nil {
		_ = disp.Dispatch(task, domain.OpCapRevoke, [6]uint64{uint64(h)})
		return domain.NoHandle, err
	}
	region := obj.(domain.SharedMemory)
	copy(region.Bytes(), data)
	return h, nil
}

// RecvBulk reads n bytes out of the shm region behind h, the receiving
// side of SendBulk. The caller still owns h afterward and is responsible
// for releasing it (OpShmClose/OpCapRevoke) once done.
func RecvBulk(task domain.Task, h domain.Handle, n int) ([]byte, error) {
	obj, err := task.Caps().Lookup(h, domain.KindSharedMemory, domain.RightRead)
	if err != nil {
		return nil, err
	}
	region := obj.(domain.SharedMemory)
	if n > region.Size() {
		n = region.Size()
	}
	out := make([]byte, n)
	copy(out, region.Bytes()[:n])
	return out, nil
}
