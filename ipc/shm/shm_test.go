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

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/domain"
)

func TestNewRoundsUpToPage(t *testing.T) {
	r, err := New(10)
	require.NoError(t, err)
	defer r.Unref()

	assert.Equal(t, pageSize, r.Size())
	assert.Equal(t, domain.KindSharedMemory, r.Kind())
}

func TestBytesAreWritableAndShared(t *testing.T) {
	r, err := New(pageSize)
	require.NoError(t, err)
	defer r.Unref()

	b := r.Bytes()
	b[0] = 0x42

	assert.Equal(t, byte(0x42), r.Bytes()[0])
}

func TestRefUnrefReleasesAtZero(t *testing.T) {
	r, err := New(pageSize)
	require.NoError(t, err)

	r.Ref() // refCount 2
	assert.False(t, r.Unref())
	assert.True(t, r.Unref())

	// Further unref past release is a harmless no-op.
	assert.True(t, r.Unref())
}
