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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/assign"
	"github.com/splanck/viperos/domain"
)

func newTestTask(t *testing.T) domain.Task {
	t.Helper()
	svc := NewService(nil)
	task, err := svc.Spawn(func(domain.Task) {})
	require.NoError(t, err)
	return task
}

func TestDispatchChannelCreateAndClose(t *testing.T) {
	d := NewDispatcher(assign.New())
	caller := newTestTask(t)

	res := d.Dispatch(caller, domain.OpChannelCreate, [6]uint64{})
	require.True(t, res.OK())
	sendHandle := domain.Handle(res.Val0)

	res = d.Dispatch(caller, domain.OpChannelClose, [6]uint64{uint64(sendHandle)})
	assert.True(t, res.OK())

	_, err := caller.Caps().Query(sendHandle)
	assert.Equal(t, domain.InvalidHandle, err)
}

func TestDispatchShmCreate(t *testing.T) {
	d := NewDispatcher(assign.New())
	caller := newTestTask(t)

	res := d.Dispatch(caller, domain.OpShmCreate, [6]uint64{10})
	require.True(t, res.OK())
	assert.Equal(t, uint64(4096), res.Val1)
}

func TestDispatchCapDeriveNarrowing(t *testing.T) {
	d := NewDispatcher(assign.New())
	caller := newTestTask(t)

	res := d.Dispatch(caller, domain.OpChannelCreate, [6]uint64{})
	require.True(t, res.OK())
	sendHandle := domain.Handle(res.Val0)

	res = d.Dispatch(caller, domain.OpCapDerive, [6]uint64{uint64(sendHandle), uint64(domain.RightRead)})
	require.True(t, res.OK())

	info, err := caller.Caps().Query(domain.Handle(res.Val0))
	require.NoError(t, err)
	assert.Equal(t, domain.RightRead, info.Rights)
}

func TestDispatchUnknownOp(t *testing.T) {
	d := NewDispatcher(assign.New())
	caller := newTestTask(t)

	res := d.Dispatch(caller, domain.Op(9999), [6]uint64{})
	assert.Equal(t, domain.NotSupported, res.Error)
}

func TestAssignSetGetCrossesProcessBoundary(t *testing.T) {
	d := NewDispatcher(assign.New())
	producer := newTestTask(t)
	consumer := newTestTask(t)

	res := d.Dispatch(producer, domain.OpChannelCreate, [6]uint64{})
	require.True(t, res.OK())
	sendHandle := domain.Handle(res.Val0)

	setRes := d.AssignSet(producer, "FSD", sendHandle, domain.AssignSystem)
	require.True(t, setRes.OK())

	getRes := d.AssignGet(consumer, "FSD")
	require.True(t, getRes.OK())

	gotHandle := domain.Handle(getRes.Val0)
	info, err := consumer.Caps().Query(gotHandle)
	require.NoError(t, err)
	assert.Equal(t, domain.KindChannel, info.Kind)
}

func TestAssignGetUnknownName(t *testing.T) {
	d := NewDispatcher(assign.New())
	consumer := newTestTask(t)

	res := d.AssignGet(consumer, "NOPE")
	assert.Equal(t, domain.NotFound, res.Error)
}
