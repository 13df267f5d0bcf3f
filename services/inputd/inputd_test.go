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

package inputd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/assign"
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

func newTestInputd(t *testing.T) (*kernel.Dispatcher, domain.Task, *Service) {
	t.Helper()
	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)
	ready := make(chan struct{})

	var svc *Service
	_, err := tasks.Spawn(func(task domain.Task) {
		svc = NewService(nil)
		close(ready)
		_ = svc.Serve(disp, task)
	})
	require.NoError(t, err)
	<-ready

	clientTask, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)
	return disp, clientTask, svc
}

func TestGetCharReturnsQueuedCharacters(t *testing.T) {
	disp, task, svc := newTestInputd(t)
	client := server.NewClient(disp, task, "INPUTD")
	svc.PushChar('a')

	req := proto.InpGetCharRequest{Header: proto.Header{Type: proto.InpGetChar, RequestID: 1}}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	r := proto.DecodeInpGetCharReply(reply)
	assert.EqualValues(t, 'a', r.Result)

	reply, _, err = client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	assert.EqualValues(t, -1, proto.DecodeInpGetCharReply(reply).Result)
}

func TestHasInputReflectsQueueState(t *testing.T) {
	disp, task, svc := newTestInputd(t)
	client := server.NewClient(disp, task, "INPUTD")

	req := proto.InpHasInputRequest{Header: proto.Header{Type: proto.InpHasInput, RequestID: 1}}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	r := proto.DecodeInpHasInputReply(reply)
	assert.EqualValues(t, 0, r.HasChar)
	assert.EqualValues(t, 0, r.HasEvent)

	svc.PushEvent(proto.InputEvent{Type: proto.EventKeyPress, Code: 30, Value: 1})
	reply, _, err = client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	r = proto.DecodeInpHasInputReply(reply)
	assert.EqualValues(t, 1, r.HasEvent)
}

func TestSubscribeReceivesAsyncNotify(t *testing.T) {
	disp, task, svc := newTestInputd(t)
	client := server.NewClient(disp, task, "INPUTD")

	subReq := proto.InpSubscribeRequest{Header: proto.Header{Type: proto.InpSubscribe, RequestID: 1}, EventMask: 0}
	reply, handles, err := client.Call(subReq.Encode(), nil, 64)
	require.NoError(t, err)
	sr := proto.DecodeInpSubscribeReply(reply)
	require.Equal(t, int32(0), sr.Status)
	require.Len(t, handles, 1)
	eventRecv := handles[0]

	pres := disp.Dispatch(task, domain.OpPollCreate, [6]uint64{})
	require.True(t, pres.OK())
	pollHandle := domain.Handle(pres.Val0)
	ares := disp.Dispatch(task, domain.OpPollAdd, [6]uint64{uint64(pollHandle), uint64(eventRecv), uint64(domain.PollChannelRead)})
	require.True(t, ares.OK())

	go svc.PushEvent(proto.InputEvent{Type: proto.EventKeyPress, Code: 42, Value: 1})

	var events [1]domain.PollEvent
	n, sres := disp.PollWait(task, pollHandle, events[:], int64(2*time.Second/time.Millisecond))
	require.True(t, sres.OK())
	require.Equal(t, 1, n)

	res, sres := disp.ChannelRecv(task, eventRecv, domain.MaxPayload, domain.MaxHandlesPerMsg)
	require.True(t, sres.OK())
	notify := proto.DecodeInputEventNotify(res.Payload)
	assert.EqualValues(t, 42, notify.Event.Code)

	unsubReq := proto.InpUnsubscribeRequest{Header: proto.Header{Type: proto.InpUnsubscribe, RequestID: 2}, SubscriberID: sr.SubscriberID}
	reply, _, err = client.Call(unsubReq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeInpUnsubscribeReply(reply).Status)
}
