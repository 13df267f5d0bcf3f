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

package kernel

import (
	"github.com/splanck/viperos/assign"
	"github.com/splanck/viperos/captable"
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/ipc/channel"
	"github.com/splanck/viperos/ipc/pollset"
	"github.com/splanck/viperos/ipc/shm"
)

// Dispatcher is the concrete numbered-syscall entry point (spec.md §4.6),
// resolving each domain.Op against the caller's own capability table and
// the kernel-wide assign registry. It holds no per-caller state itself;
// every Task carries its own CapTable, the same split the teacher keeps
// between a stateless handler and the per-container state it operates on
// (state/containerDB.go).
type Dispatcher struct {
	assign *assign.Registry

	// store holds the actual capability object behind every assign
	// registration. A registered service's handle is only meaningful
	// inside the registering process's own table, so the kernel re-homes
	// a copy of the object into this kernel-owned table at assign_set
	// time and hands out fresh handles into it at assign_get time — the
	// assign.Registry itself only tracks store-relative handles plus
	// metadata for diagnostics (assign_list).
	store *captable.Table
}

var _ domain.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher returns a dispatcher backed by reg for assign_* ops.
func NewDispatcher(reg *assign.Registry) *Dispatcher {
	return &Dispatcher{assign: reg, store: captable.New()}
}

func errResult(e domain.VError) domain.SyscallResult {
	return domain.SyscallResult{Error: e}
}

func okResult(v0, v1, v2 uint64) domain.SyscallResult {
	return domain.SyscallResult{Val0: v0, Val1: v1, Val2: v2}
}

// Dispatch implements domain.Dispatcher.
func (d *Dispatcher) Dispatch(caller domain.Task, op domain.Op, args [6]uint64) domain.SyscallResult {
	switch op {
	case domain.OpChannelCreate:
		return d.channelCreate(caller)
	case domain.OpChannelClose:
		return d.channelClose(caller, domain.Handle(args[0]))
	case domain.OpPollCreate:
		return d.pollCreate(caller)
	case domain.OpPollAdd:
		return d.pollAdd(caller, domain.Handle(args[0]), domain.Handle(args[1]), domain.EventMask(args[2]))
	case domain.OpPollRemove:
		return d.pollRemove(caller, domain.Handle(args[0]), domain.Handle(args[1]))
	case domain.OpShmCreate:
		return d.shmCreate(caller, int(args[0]))
	case domain.OpShmClose:
		return d.releaseHandle(caller, domain.Handle(args[0]))
	case domain.OpCapDerive:
		return d.capDerive(caller, domain.Handle(args[0]), domain.Rights(args[1]))
	case domain.OpCapRevoke:
		return d.releaseHandle(caller, domain.Handle(args[0]))
	case domain.OpCapQuery:
		return d.capQuery(caller, domain.Handle(args[0]))
	case domain.OpCapList:
		return d.capList(caller)
	case domain.OpCapTransfer:
		return errResult(domain.NotSupported) // cross-table op; not exposed over the numbered ABI
	case domain.OpAssignSet:
		return errResult(domain.NotSupported) // string-bearing op; use AssignSet directly
	case domain.OpAssignGet:
		return errResult(domain.NotSupported) // string-bearing op; use AssignGet directly
	case domain.OpAssignRemove:
		return errResult(domain.NotSupported)
	case domain.OpAssignList:
		return errResult(domain.NotSupported) // variable-length result; use AssignList directly
	case domain.OpAssignResolve:
		return errResult(domain.NotSupported) // string-bearing op; use AssignResolve directly
	case domain.OpChannelSend:
		return errResult(domain.NotSupported) // variable-length payload; use ChannelSend directly
	case domain.OpChannelRecv:
		return errResult(domain.NotSupported) // variable-length result; use ChannelRecv directly
	case domain.OpPollWait:
		return errResult(domain.NotSupported) // variable-length result; use PollWait directly
	case domain.OpTaskExit:
		caller.Exit(int32(args[0]))
		return okResult(0, 0, 0)
	case domain.OpTaskSpawn, domain.OpTaskWait, domain.OpTaskWaitpid, domain.OpTaskYield:
		// Spawning in this kernel means starting a new goroutine against a
		// Go closure, which has no machine-word encoding; task lifecycle is
		// driven through kernel.Service directly rather than this op table.
		return errResult(domain.NotSupported)
	case domain.OpConsolePrint, domain.OpConsoleGetchar, domain.OpConsolePutchar:
		// Console I/O belongs to a device driver task reachable over the
		// normal channel/assign path, not a kernel-resident syscall here.
		return errResult(domain.NotSupported)
	case domain.OpShmMap, domain.OpShmUnmap:
		// This kernel exposes shared memory as a Go []byte via
		// SharedMemory.Bytes() directly rather than a virtual address;
		// callers map/unmap by holding/releasing the capability itself.
		return errResult(domain.NotSupported)
	default:
		return errResult(domain.NotSupported)
	}
}

func (d *Dispatcher) capList(caller domain.Task) domain.SyscallResult {
	// CapList's result is a variable-length table dump; the numbered ABI
	// only reports how many live entries there are. Callers that need the
	// entries themselves use Dispatcher.CapListEntries.
	var probe [4096]domain.ListEntry
	n := caller.Caps().List(probe[:])
	return okResult(uint64(n), 0, 0)
}

// CapListEntries fills out with up to len(out) of the caller's live
// capability-table entries, mirroring SYS_CAP_LIST's CapListEntry dump.
func (d *Dispatcher) CapListEntries(caller domain.Task, out []domain.ListEntry) int {
	return caller.Caps().List(out)
}

// channel_create: installs a fresh channel pair into the caller's table,
// returning {sendHandle, recvHandle} in Val0/Val1.
func (d *Dispatcher) channelCreate(caller domain.Task) domain.SyscallResult {
	send, recv := channel.New(domain.DefaultChannelDepth)
	sh, err := caller.Caps().Install(send, domain.KindChannel, domain.RightRead|domain.RightWrite|domain.RightXfer|domain.RightDerive)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	rh, err := caller.Caps().Install(recv, domain.KindChannel, domain.RightRead|domain.RightWrite|domain.RightXfer|domain.RightDerive)
	if err != nil {
		_ = caller.Caps().Revoke(sh)
		return errResult(domain.AsVError(err))
	}
	return okResult(uint64(sh), uint64(rh), 0)
}

func (d *Dispatcher) channelClose(caller domain.Task, h domain.Handle) domain.SyscallResult {
	if _, err := caller.Caps().Lookup(h, domain.KindChannel, domain.RightNone); err != nil {
		return errResult(domain.AsVError(err))
	}
	return d.releaseHandle(caller, h)
}

func (d *Dispatcher) pollCreate(caller domain.Task) domain.SyscallResult {
	ps := pollset.New()
	h, err := caller.Caps().Install(ps, domain.KindPoll, domain.RightRead|domain.RightWrite)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(uint64(h), 0, 0)
}

func (d *Dispatcher) pollAdd(caller domain.Task, pollHandle, watched domain.Handle, mask domain.EventMask) domain.SyscallResult {
	psObj, err := caller.Caps().Lookup(pollHandle, domain.KindPoll, domain.RightWrite)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	ps, ok := psObj.(domain.PollSet)
	if !ok {
		return errResult(domain.WrongType)
	}

	var srcObj domain.Object
	if watched == domain.ConsoleInput {
		srcObj = consoleSource{}
	} else {
		srcObj, err = caller.Caps().Lookup(watched, domain.KindInvalid, domain.RightNone)
		if err != nil {
			return errResult(domain.AsVError(err))
		}
	}
	src, ok := srcObj.(domain.Source)
	if !ok {
		return errResult(domain.WrongType)
	}
	if err := ps.Add(watched, src, mask); err != nil {
		return errResult(domain.AsVError(err))
	}
	// Channel endpoints report readiness changes through OnReady, which they
	// invoke with their own lock held; waking from a fresh goroutine keeps
	// that lock and the poll set's lock from being taken in opposite orders.
	if n, ok := src.(interface{ OnReady(func()) }); ok {
		n.OnReady(func() { go ps.Wake() })
	}
	return okResult(0, 0, 0)
}

func (d *Dispatcher) pollRemove(caller domain.Task, pollHandle, watched domain.Handle) domain.SyscallResult {
	psObj, err := caller.Caps().Lookup(pollHandle, domain.KindPoll, domain.RightWrite)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	ps, ok := psObj.(domain.PollSet)
	if !ok {
		return errResult(domain.WrongType)
	}
	if err := ps.Remove(watched); err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(0, 0, 0)
}

func (d *Dispatcher) shmCreate(caller domain.Task, size int) domain.SyscallResult {
	region, err := shm.New(size)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	h, err := caller.Caps().Install(region, domain.KindSharedMemory, domain.RightRead|domain.RightWrite|domain.RightXfer)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(uint64(h), uint64(region.Size()), 0)
}

func (d *Dispatcher) capDerive(caller domain.Task, h domain.Handle, rights domain.Rights) domain.SyscallResult {
	nh, err := caller.Caps().Derive(h, rights)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(uint64(nh), 0, 0)
}

// releaseHandle revokes h from the caller's table, first giving the
// underlying object a chance to release any resource it owns outside the
// capability table itself (an open channel endpoint, a mapped shm region).
func (d *Dispatcher) releaseHandle(caller domain.Task, h domain.Handle) domain.SyscallResult {
	obj, err := caller.Caps().Lookup(h, domain.KindInvalid, domain.RightNone)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	switch v := obj.(type) {
	case domain.Endpoint:
		_ = v.Close()
	case domain.SharedMemory:
		v.Unref()
	}
	if err := caller.Caps().Revoke(h); err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(0, 0, 0)
}

func (d *Dispatcher) capQuery(caller domain.Task, h domain.Handle) domain.SyscallResult {
	info, err := caller.Caps().Query(h)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(uint64(info.Kind), uint64(info.Rights), uint64(info.Generation))
}

// Typed assign_* wrappers. These carry a name string, which does not fit
// the six-machine-word Dispatch ABI; per the "Inline assembly syscall
// stubs" design note, the numbered ABI stays a single trap point while
// every syscall above it (here, the string-bearing ones) is a typed free
// function returning a Result-shaped value. OpAssignSet/Get/Remove exist
// in the Op enumeration for completeness/introspection but route through
// these methods rather than Dispatch.

// AssignSet registers the object behind h (in the caller's table) under
// name. The object is re-homed into the kernel's internal store so later
// AssignGet calls from other processes can hand out handles to it without
// ever dereferencing a handle value outside the table that issued it.
func (d *Dispatcher) AssignSet(caller domain.Task, name string, h domain.Handle, flags domain.AssignFlags) domain.SyscallResult {
	info, err := caller.Caps().Query(h)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	obj, err := caller.Caps().Lookup(h, domain.KindInvalid, domain.RightNone)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	storeHandle, err := d.store.Install(obj, info.Kind, info.Rights)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	if err := d.assign.Set(name, storeHandle, flags); err != nil {
		_ = d.store.Revoke(storeHandle)
		return errResult(domain.AsVError(err))
	}
	return okResult(0, 0, 0)
}

// AssignGet resolves name to a freshly installed handle in the caller's
// capability table (spec.md §4.5: "ownership policy" — the call transfers
// a fresh capability, it does not alias the registered one; closing the
// result does not unregister).
func (d *Dispatcher) AssignGet(caller domain.Task, name string) domain.SyscallResult {
	storeHandle, err := d.assign.Get(name)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	info, err := d.store.Query(storeHandle)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	obj, err := d.store.Lookup(storeHandle, domain.KindInvalid, domain.RightNone)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	nh, err := caller.Caps().Install(obj, info.Kind, info.Rights)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(uint64(nh), 0, 0)
}

// AssignRemove drops name's registration.
func (d *Dispatcher) AssignRemove(name string) domain.SyscallResult {
	if err := d.assign.Remove(name); err != nil {
		return errResult(domain.AsVError(err))
	}
	return okResult(0, 0, 0)
}

// AssignList returns every registered entry.
func (d *Dispatcher) AssignList() []domain.AssignEntry {
	return d.assign.List()
}

// AssignResolve walks a "NAME:rest/of/path" style path.
func (d *Dispatcher) AssignResolve(path string) (domain.Handle, string, error) {
	return d.assign.Resolve(path)
}

// ChannelRecvResult mirrors a received message with every transferred
// capability already installed into the receiving caller's own table —
// the caller never sees a raw domain.TransferredCap, only Handles it can
// pass back into Dispatch/the typed methods like anything else it owns.
type ChannelRecvResult struct {
	Payload []byte
	Handles []domain.Handle
}

// ChannelSend validates h as a writable channel endpoint in caller's
// table, moves each of capHandles out of caller's table into the wire
// message, and enqueues it. Like the assign_* ops, this bypasses Dispatch
// because a variable-length payload has no six-word encoding.
func (d *Dispatcher) ChannelSend(caller domain.Task, h domain.Handle, payload []byte, capHandles []domain.Handle) domain.SyscallResult {
	obj, err := caller.Caps().Lookup(h, domain.KindChannel, domain.RightWrite)
	if err != nil {
		return errResult(domain.AsVError(err))
	}
	ep, ok := obj.(domain.Endpoint)
	if !ok {
		return errResult(domain.WrongType)
	}

	caps := make([]domain.TransferredCap, 0, len(capHandles))
	for _, ch := range capHandles {
		info, err := caller.Caps().Query(ch)
		if err != nil {
			return errResult(domain.AsVError(err))
		}
		cobj, err := caller.Caps().Lookup(ch, domain.KindInvalid, domain.RightXfer)
		if err != nil {
			return errResult(domain.AsVError(err))
		}
		caps = append(caps, domain.TransferredCap{Kind: info.Kind, Rights: info.Rights, Object: cobj})
	}
	if err := ep.Send(domain.Message{Payload: payload, Caps: caps}); err != nil {
		return errResult(domain.AsVError(err))
	}
	// Caps only leave the sender's table once the send itself succeeded.
	for _, ch := range capHandles {
		_ = caller.Caps().Revoke(ch)
	}
	return okResult(0, 0, 0)
}

// ChannelRecv validates h as a readable channel endpoint in caller's
// table, dequeues the next message, and installs every transferred
// capability into caller's own table before returning.
func (d *Dispatcher) ChannelRecv(caller domain.Task, h domain.Handle, bufLen, handleCap int) (ChannelRecvResult, domain.SyscallResult) {
	obj, err := caller.Caps().Lookup(h, domain.KindChannel, domain.RightRead)
	if err != nil {
		return ChannelRecvResult{}, errResult(domain.AsVError(err))
	}
	ep, ok := obj.(domain.Endpoint)
	if !ok {
		return ChannelRecvResult{}, errResult(domain.WrongType)
	}
	msg, err := ep.Recv(bufLen, handleCap)
	if err != nil {
		return ChannelRecvResult{}, errResult(domain.AsVError(err))
	}
	handles := make([]domain.Handle, 0, len(msg.Caps))
	for _, c := range msg.Caps {
		nh, err := caller.Caps().Install(c.Object, c.Kind, c.Rights)
		if err != nil {
			return ChannelRecvResult{}, errResult(domain.AsVError(err))
		}
		handles = append(handles, nh)
	}
	return ChannelRecvResult{Payload: msg.Payload, Handles: handles}, okResult(uint64(len(msg.Payload)), uint64(len(handles)), 0)
}

// PollWait validates pollHandle and blocks per domain.PollSet.Wait's
// timeoutMs convention, filling out with triggered events.
func (d *Dispatcher) PollWait(caller domain.Task, pollHandle domain.Handle, out []domain.PollEvent, timeoutMs int64) (int, domain.SyscallResult) {
	obj, err := caller.Caps().Lookup(pollHandle, domain.KindPoll, domain.RightRead)
	if err != nil {
		return 0, errResult(domain.AsVError(err))
	}
	ps, ok := obj.(domain.PollSet)
	if !ok {
		return 0, errResult(domain.WrongType)
	}
	n, err := ps.Wait(out, timeoutMs)
	if err != nil {
		return n, errResult(domain.AsVError(err))
	}
	return n, okResult(uint64(n), 0, 0)
}

// consoleSource is the pseudo-source backing the console-input poll
// pseudo-handle (spec.md's ConsoleInput). It never reports ready, and
// nothing in this package makes it ready.
type consoleSource struct{}

func (consoleSource) Kind() domain.Kind                            { return domain.KindInput }
func (consoleSource) Ready(want domain.EventMask) domain.EventMask { return 0 }
