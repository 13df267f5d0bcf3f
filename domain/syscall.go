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

// SyscallResult is the {error, val0, val1, val2} tuple every numbered
// syscall returns (spec.md §3 "Syscall Dispatcher", §6). Result fields are
// undefined when Error is non-zero.
type SyscallResult struct {
	Error VError
	Val0  uint64
	Val1  uint64
	Val2  uint64
}

// OK reports whether the call succeeded.
func (r SyscallResult) OK() bool { return r.Error == 0 }

// Op is a numbered syscall operation selector (spec.md §4.6/§6). The
// numeric values are this repository's own stable ABI; original_source's
// syscall_nums.hpp defines the equivalent for the AArch64 ABI but was
// filtered out of the retrieval pack, so these are assigned fresh,
// grouped by category in the same order spec.md §6 lists them.
type Op uint32

const (
	// Task
	OpTaskSpawn Op = iota + 1
	OpTaskExit
	OpTaskWait
	OpTaskWaitpid
	OpTaskYield

	// Console
	OpConsolePrint
	OpConsoleGetchar
	OpConsolePutchar

	// Channel
	OpChannelCreate
	OpChannelSend
	OpChannelRecv
	OpChannelClose

	// Poll
	OpPollCreate
	OpPollAdd
	OpPollRemove
	OpPollWait

	// Shared memory
	OpShmCreate
	OpShmMap
	OpShmUnmap
	OpShmClose

	// Capability
	OpCapDerive
	OpCapRevoke
	OpCapQuery
	OpCapList
	OpCapTransfer

	// Assign
	OpAssignSet
	OpAssignGet
	OpAssignRemove
	OpAssignList
	OpAssignResolve
)

// Dispatcher is the numbered-operation entry point (spec.md §4.6): up to
// six machine-word arguments in, a SyscallResult out.
type Dispatcher interface {
	Dispatch(caller Task, op Op, args [6]uint64) SyscallResult
}
