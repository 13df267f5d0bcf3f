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

import "strings"

// Kind identifies the type of kernel object a capability refers to. The
// numeric values mirror original_source/os/include/viperos/cap_info.hpp's
// CAP_KIND_* constants so that CapInfo/CapListEntry dumps produced by this
// package match the ABI the original kernel documents.
type Kind uint16

const (
	KindInvalid Kind = 0
	KindString  Kind = 1
	KindArray   Kind = 2
	KindBlob    Kind = 3

	KindChannel      Kind = 16
	KindPoll         Kind = 17
	KindTimer        Kind = 18
	KindTask         Kind = 19
	KindViper        Kind = 20
	KindFile         Kind = 21
	KindDirectory    Kind = 22
	KindSurface      Kind = 23
	KindInput        Kind = 24
	KindSharedMemory Kind = 25
	KindDevice       Kind = 26
)

var kindNames = map[Kind]string{
	KindInvalid:      "invalid",
	KindString:       "string",
	KindArray:        "array",
	KindBlob:         "blob",
	KindChannel:      "channel",
	KindPoll:         "poll",
	KindTimer:        "timer",
	KindTask:         "task",
	KindViper:        "viper",
	KindFile:         "file",
	KindDirectory:    "directory",
	KindSurface:      "surface",
	KindInput:        "input",
	KindSharedMemory: "shared_memory",
	KindDevice:       "device",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Rights is a bitmask of operations a capability may be used for. Deriving
// a capability may only narrow this mask (see captable.Table.Derive).
type Rights uint32

const (
	RightNone   Rights = 0
	RightRead   Rights = 1 << 0
	RightWrite  Rights = 1 << 1
	RightExec   Rights = 1 << 2
	RightList   Rights = 1 << 3
	RightCreate Rights = 1 << 4
	RightDelete Rights = 1 << 5
	RightDerive Rights = 1 << 6
	RightXfer   Rights = 1 << 7
	RightSpawn  Rights = 1 << 8

	RightDeviceAccess Rights = 1 << 10
	RightIrqAccess    Rights = 1 << 11
	RightDmaAccess    Rights = 1 << 12
)

var rightBits = []struct {
	bit  Rights
	name string
}{
	{RightRead, "read"},
	{RightWrite, "write"},
	{RightExec, "execute"},
	{RightList, "list"},
	{RightCreate, "create"},
	{RightDelete, "delete"},
	{RightDerive, "derive"},
	{RightXfer, "transfer"},
	{RightSpawn, "spawn"},
	{RightDeviceAccess, "device_access"},
	{RightIrqAccess, "irq_access"},
	{RightDmaAccess, "dma_access"},
}

// Has reports whether r carries every bit set in want.
func (r Rights) Has(want Rights) bool {
	return r&want == want
}

// Subset reports whether r contains no bit outside of of.
func (r Rights) Subset(of Rights) bool {
	return r&^of == 0
}

func (r Rights) String() string {
	if r == RightNone {
		return "none"
	}
	var names []string
	for _, b := range rightBits {
		if r.Has(b.bit) {
			names = append(names, b.name)
		}
	}
	return strings.Join(names, "|")
}

// Info describes a single capability-table entry, mirroring the
// CapInfo struct returned by SYS_CAP_QUERY in the original ABI.
type Info struct {
	Handle     Handle
	Kind       Kind
	Generation uint8
	Rights     Rights
}

// ListEntry is one row of a SYS_CAP_LIST dump. Its shape matches Info; it
// is a distinct type because the original ABI defines CapListEntry
// separately from CapInfo for enumeration.
type ListEntry struct {
	Handle     Handle
	Kind       Kind
	Generation uint8
	Rights     Rights
}

// Object is anything a capability table entry can reference. Concrete
// kernel objects (channels, shm regions, poll sets, tasks, ...) implement
// it so the table can track liveness without knowing their concrete type.
type Object interface {
	// Kind returns the Kind this object should be installed as.
	Kind() Kind
}
