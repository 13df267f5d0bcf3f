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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/assign"
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
)

func TestServeEchoesRequestToClient(t *testing.T) {
	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)

	ready := make(chan struct{})
	stopped := make(chan error, 1)

	serverTask, err := tasks.Spawn(func(t domain.Task) {
		srv, err := Listen(disp, t, "ECHOD", nil)
		if err != nil {
			stopped <- err
			close(ready)
			return
		}
		close(ready)
		stopped <- srv.Serve(func(req Request) ([]byte, []domain.Handle, error) {
			out := make([]byte, len(req.Payload))
			copy(out, req.Payload)
			return out, nil, nil
		})
	})
	require.NoError(t, err)
	<-ready

	clientTask, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)

	client := NewClient(disp, clientTask, "ECHOD")
	reply, handles, err := client.Call([]byte("ping"), nil, domain.MaxPayload)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(reply))
	assert.Empty(t, handles)

	_ = serverTask
	select {
	case err := <-stopped:
		t.Fatalf("server stopped early: %v", err)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestClientConnectFailsForUnknownService(t *testing.T) {
	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)
	task, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)

	client := NewClient(disp, task, "NOSUCHD")
	_, _, err = client.Call([]byte("x"), nil, domain.MaxPayload)
	require.Error(t, err)
}
