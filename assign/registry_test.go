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

package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/domain"
)

func TestSetGetRemove(t *testing.T) {
	r := New()
	require.NoError(t, r.Set("fsd", domain.Handle(5), domain.AssignSystem))

	h, err := r.Get("fsd")
	require.NoError(t, err)
	assert.Equal(t, domain.Handle(5), h)

	require.NoError(t, r.Remove("fsd"))
	_, err = r.Get("fsd")
	assert.Equal(t, domain.NotFound, err)
}

func TestSetReplacesExistingEntry(t *testing.T) {
	r := New()
	require.NoError(t, r.Set("netd", domain.Handle(1), domain.AssignNone))
	require.NoError(t, r.Set("netd", domain.Handle(2), domain.AssignNone))

	h, err := r.Get("netd")
	require.NoError(t, err)
	assert.Equal(t, domain.Handle(2), h)
}

func TestReRegisterDoesNotInvalidatePriorHandleCopies(t *testing.T) {
	r := New()
	require.NoError(t, r.Set("displayd", domain.Handle(1), domain.AssignNone))

	old, err := r.Get("displayd")
	require.NoError(t, err)

	require.NoError(t, r.Set("displayd", domain.Handle(2), domain.AssignNone))

	// A holder who cached `old` earlier still has a handle value; the
	// registry itself now resolves to the new one.
	assert.Equal(t, domain.Handle(1), old)
	got, err := r.Get("displayd")
	require.NoError(t, err)
	assert.Equal(t, domain.Handle(2), got)
}

func TestResolveSplitsNameFromPath(t *testing.T) {
	r := New()
	require.NoError(t, r.Set("fsd", domain.Handle(7), domain.AssignSystem))

	h, rest, err := r.Resolve("fsd:/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, domain.Handle(7), h)
	assert.Equal(t, "/etc/passwd", rest)
}

func TestResolveMissingColonIsInvalidArg(t *testing.T) {
	r := New()
	_, _, err := r.Resolve("no-colon-here")
	assert.Equal(t, domain.InvalidArg, err)
}

func TestListEnumeratesEntries(t *testing.T) {
	r := New()
	require.NoError(t, r.Set("blkd", domain.Handle(1), domain.AssignSystem))
	require.NoError(t, r.Set("netd", domain.Handle(2), domain.AssignSystem))

	entries := r.List()
	assert.Len(t, entries, 2)
}
