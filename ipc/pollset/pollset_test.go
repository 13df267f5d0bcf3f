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

package pollset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/domain"
)

type fakeSource struct{ ready domain.EventMask }

func (f *fakeSource) Ready(want domain.EventMask) domain.EventMask {
	return f.ready & want
}

func TestWaitZeroTimeoutIsNonBlockingPoll(t *testing.T) {
	s := New()
	src := &fakeSource{}
	require.NoError(t, s.Add(domain.Handle(1), src, domain.PollChannelRead))

	out := make([]domain.PollEvent, 4)
	n, err := s.Wait(out, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWaitReturnsAlreadyReadySource(t *testing.T) {
	s := New()
	src := &fakeSource{ready: domain.PollChannelRead}
	require.NoError(t, s.Add(domain.Handle(1), src, domain.PollChannelRead))

	out := make([]domain.PollEvent, 4)
	n, err := s.Wait(out, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, domain.Handle(1), out[0].Handle)
}

func TestWaitBoundedTimeoutExpiresWithNothingReady(t *testing.T) {
	s := New()
	src := &fakeSource{}
	require.NoError(t, s.Add(domain.Handle(1), src, domain.PollChannelRead))

	out := make([]domain.PollEvent, 4)
	start := time.Now()
	n, err := s.Wait(out, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWakeUnblocksIndefiniteWait(t *testing.T) {
	s := New()
	src := &fakeSource{}
	require.NoError(t, s.Add(domain.Handle(1), src, domain.PollChannelRead))

	done := make(chan int, 1)
	go func() {
		out := make([]domain.PollEvent, 4)
		n, _ := s.Wait(out, -1)
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	src.ready = domain.PollChannelRead
	s.Wake()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Wake")
	}
}

func TestRemoveUnknownHandle(t *testing.T) {
	s := New()
	err := s.Remove(domain.Handle(99))
	assert.Equal(t, domain.InvalidHandle, err)
}
