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

package captable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/domain"
)

type fakeObj struct{ kind domain.Kind }

func (f fakeObj) Kind() domain.Kind { return f.kind }

func TestInstallLookupRevoke(t *testing.T) {
	tbl := New()

	obj := fakeObj{kind: domain.KindChannel}
	h, err := tbl.Install(obj, domain.KindChannel, domain.RightRead|domain.RightWrite)
	require.NoError(t, err)

	got, err := tbl.Lookup(h, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	require.NoError(t, tbl.Revoke(h))

	_, err = tbl.Lookup(h, domain.KindChannel, domain.RightRead)
	assert.Equal(t, domain.InvalidHandle, err)
}

func TestGenerationDetectsStaleHandle(t *testing.T) {
	tbl := New()
	obj1 := fakeObj{kind: domain.KindChannel}
	h1, err := tbl.Install(obj1, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)
	require.NoError(t, tbl.Revoke(h1))

	obj2 := fakeObj{kind: domain.KindChannel}
	h2, err := tbl.Install(obj2, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)

	// Same slot index, stale generation.
	_, err = tbl.Lookup(h1, domain.KindChannel, domain.RightRead)
	assert.Equal(t, domain.InvalidHandle, err)

	got, err := tbl.Lookup(h2, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)
	assert.Equal(t, obj2, got)
}

func TestWrongTypeAndPermission(t *testing.T) {
	tbl := New()
	obj := fakeObj{kind: domain.KindChannel}
	h, err := tbl.Install(obj, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)

	_, err = tbl.Lookup(h, domain.KindFile, domain.RightRead)
	assert.Equal(t, domain.WrongType, err)

	_, err = tbl.Lookup(h, domain.KindChannel, domain.RightWrite)
	assert.Equal(t, domain.Permission, err)
}

func TestDeriveMonotonicity(t *testing.T) {
	tbl := New()
	obj := fakeObj{kind: domain.KindChannel}
	h, err := tbl.Install(obj, domain.KindChannel, domain.RightWrite|domain.RightXfer|domain.RightDerive)
	require.NoError(t, err)

	// Narrowing succeeds.
	h2, err := tbl.Derive(h, domain.RightWrite)
	require.NoError(t, err)
	info, err := tbl.Query(h2)
	require.NoError(t, err)
	assert.Equal(t, domain.RightWrite, info.Rights)

	// Escalation fails.
	_, err = tbl.Derive(h, domain.RightExec)
	assert.Equal(t, domain.Permission, err)
}

func TestTransferMovesOwnership(t *testing.T) {
	src := New()
	dst := New()
	obj := fakeObj{kind: domain.KindChannel}
	h, err := src.Install(obj, domain.KindChannel, domain.RightXfer|domain.RightWrite)
	require.NoError(t, err)

	h2, err := src.Transfer(dst, h)
	require.NoError(t, err)

	_, err = src.Lookup(h, domain.KindChannel, domain.RightWrite)
	assert.Equal(t, domain.InvalidHandle, err)

	got, err := dst.Lookup(h2, domain.KindChannel, domain.RightWrite)
	require.NoError(t, err)
	assert.Equal(t, obj, got)
}

func TestTransferRequiresXferRight(t *testing.T) {
	src := New()
	dst := New()
	obj := fakeObj{kind: domain.KindChannel}
	h, err := src.Install(obj, domain.KindChannel, domain.RightWrite)
	require.NoError(t, err)

	_, err = src.Transfer(dst, h)
	assert.Equal(t, domain.Permission, err)
}

func TestListEnumeratesInUseSlots(t *testing.T) {
	tbl := New()
	_, err := tbl.Install(fakeObj{kind: domain.KindChannel}, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)
	_, err = tbl.Install(fakeObj{kind: domain.KindPoll}, domain.KindPoll, domain.RightRead)
	require.NoError(t, err)

	buf := make([]domain.ListEntry, 8)
	n := tbl.List(buf)
	assert.Equal(t, 2, n)
}

func TestInstallReusesLowestFreeSlot(t *testing.T) {
	tbl := New()
	h1, err := tbl.Install(fakeObj{kind: domain.KindChannel}, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)
	_, err = tbl.Install(fakeObj{kind: domain.KindChannel}, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)

	require.NoError(t, tbl.Revoke(h1))

	h3, err := tbl.Install(fakeObj{kind: domain.KindChannel}, domain.KindChannel, domain.RightRead)
	require.NoError(t, err)

	slot1, _ := decode(h1)
	slot3, _ := decode(h3)
	assert.Equal(t, slot1, slot3)
}
