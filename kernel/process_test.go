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

	"github.com/splanck/viperos/domain"
)

func TestSpawnAndWaitReturnsExitCode(t *testing.T) {
	svc := NewService(nil)

	task, err := svc.Spawn(func(t domain.Task) {
		t.Exit(7)
	})
	require.NoError(t, err)

	code, err := svc.Wait(task.ID())
	require.NoError(t, err)
	assert.Equal(t, int32(7), code)
	assert.Equal(t, domain.TaskReaped, task.State())
}

func TestSpawnInstallsBootstrapAtHandleZero(t *testing.T) {
	svc := NewService(nil)
	done := make(chan bool, 1)

	_, err := svc.Spawn(func(t domain.Task) {
		_, err := t.Caps().Lookup(domain.BootstrapHandle, domain.KindChannel, domain.RightRead)
		done <- err == nil
	})
	require.NoError(t, err)
	assert.True(t, <-done)
}

func TestSpawnWithBootstrapDeliversMessage(t *testing.T) {
	svc := NewService(nil)
	result := make(chan domain.Message, 1)

	msg := domain.Message{Payload: []byte("hello")}
	_, err := svc.SpawnWithBootstrap(func(t domain.Task) {
		got, delivered, err := AcceptBootstrap(t, 100)
		if err == nil && delivered {
			result <- got
		} else {
			result <- domain.Message{}
		}
	}, &msg)
	require.NoError(t, err)

	got := <-result
	assert.Equal(t, "hello", string(got.Payload))
}

func TestLookupUnknownTask(t *testing.T) {
	svc := NewService(nil)
	_, ok := svc.Lookup(domain.Handle(999))
	assert.False(t, ok)
}

func TestExitIsIdempotent(t *testing.T) {
	svc := NewService(nil)
	task, err := svc.Spawn(func(t domain.Task) {
		t.Exit(1)
		t.Exit(2)
	})
	require.NoError(t, err)

	code, err := svc.Wait(task.ID())
	require.NoError(t, err)
	assert.Equal(t, int32(1), code)
}
