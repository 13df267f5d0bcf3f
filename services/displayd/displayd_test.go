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

package displayd

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

func newTestDisplayd(t *testing.T) (*kernel.Dispatcher, domain.Task, *Service) {
	t.Helper()
	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)
	ready := make(chan struct{})

	var svc *Service
	_, err := tasks.Spawn(func(task domain.Task) {
		svc = NewService(800, 600, nil)
		close(ready)
		_ = svc.Serve(disp, task)
	})
	require.NoError(t, err)
	<-ready

	clientTask, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)
	return disp, clientTask, svc
}

func TestGetInfoReturnsDesktopSize(t *testing.T) {
	disp, task, _ := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	req := proto.DispGetInfoRequest{Header: proto.Header{Type: proto.DispGetInfo, RequestID: 1}}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	r := proto.DecodeDispGetInfoReply(reply)
	assert.Equal(t, int32(0), r.Status)
	assert.EqualValues(t, 800, r.Width)
	assert.EqualValues(t, 600, r.Height)
}

func TestCreateSurfaceTransfersWritableShm(t *testing.T) {
	disp, task, svc := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	req := proto.DispCreateSurfaceRequest{
		Header: proto.Header{Type: proto.DispCreateSurface, RequestID: 1},
		Width:  16, Height: 16, Title: "term",
	}
	reply, handles, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	r := proto.DecodeDispCreateSurfaceReply(reply)
	require.Equal(t, int32(0), r.Status)
	require.Len(t, handles, 1)
	require.EqualValues(t, 64, r.Stride)

	obj, err := task.Caps().Lookup(handles[0], domain.KindSharedMemory, domain.RightWrite)
	require.NoError(t, err)
	region := obj.(domain.SharedMemory)
	pixels := region.Bytes()
	for i := range pixels {
		pixels[i] = 0x22
	}

	img := svc.Composite()
	off := img.PixOffset(int(100), int(100))
	assert.EqualValues(t, 0x22, img.Pix[off])
}

func TestSetVisibleHidesFromComposite(t *testing.T) {
	disp, task, svc := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	creq := proto.DispCreateSurfaceRequest{Header: proto.Header{Type: proto.DispCreateSurface, RequestID: 1}, Width: 4, Height: 4}
	reply, _, err := client.Call(creq.Encode(), nil, 64)
	require.NoError(t, err)
	cr := proto.DecodeDispCreateSurfaceReply(reply)

	vreq := proto.DispSetVisibleRequest{Header: proto.Header{Type: proto.DispSetVisible, RequestID: 2}, SurfaceID: cr.SurfaceID, Visible: false}
	reply, _, err = client.Call(vreq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeDispGenericReply(reply).Status)

	svc.mu.Lock()
	surf := svc.surfaces[cr.SurfaceID]
	svc.mu.Unlock()
	assert.False(t, surf.visible)
}

func TestPollEventReturnsQueuedCloseEvent(t *testing.T) {
	disp, task, svc := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	creq := proto.DispCreateSurfaceRequest{Header: proto.Header{Type: proto.DispCreateSurface, RequestID: 1}, Width: 4, Height: 4}
	reply, _, err := client.Call(creq.Encode(), nil, 64)
	require.NoError(t, err)
	cr := proto.DecodeDispCreateSurfaceReply(reply)

	svc.NotifyClose(cr.SurfaceID)

	preq := proto.DispPollEventRequest{Header: proto.Header{Type: proto.DispPollEvent, RequestID: 2}, SurfaceID: cr.SurfaceID}
	reply, _, err = client.Call(preq.Encode(), nil, 64)
	require.NoError(t, err)
	pr := proto.DecodeDispPollEventReply(reply)
	require.Equal(t, int32(1), pr.HasEvent)
	assert.Equal(t, proto.DispEventClose, pr.EventType)

	reply, _, err = client.Call(preq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeDispPollEventReply(reply).HasEvent)
}

func TestDestroySurfaceLeavesClientHandleUsable(t *testing.T) {
	disp, task, svc := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	creq := proto.DispCreateSurfaceRequest{Header: proto.Header{Type: proto.DispCreateSurface, RequestID: 1}, Width: 4, Height: 4}
	reply, handles, err := client.Call(creq.Encode(), nil, 64)
	require.NoError(t, err)
	cr := proto.DecodeDispCreateSurfaceReply(reply)
	require.Len(t, handles, 1)
	clientHandle := handles[0]

	dreq := proto.DispDestroySurfaceRequest{Header: proto.Header{Type: proto.DispDestroySurface, RequestID: 2}, SurfaceID: cr.SurfaceID}
	reply, _, err = client.Call(dreq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeDispGenericReply(reply).Status)

	// The client's own derived handle keeps the region alive; writing
	// through it after the surface is destroyed must not panic on a
	// munmap'd slice.
	obj, err := task.Caps().Lookup(clientHandle, domain.KindSharedMemory, domain.RightWrite)
	require.NoError(t, err)
	region := obj.(domain.SharedMemory)
	pixels := region.Bytes()
	require.NotEmpty(t, pixels)
	pixels[0] = 0x11

	svc.mu.Lock()
	_, stillTracked := svc.surfaces[cr.SurfaceID]
	svc.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestListWindowsReportsTitleAndFocus(t *testing.T) {
	disp, task, _ := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	creq := proto.DispCreateSurfaceRequest{Header: proto.Header{Type: proto.DispCreateSurface, RequestID: 1}, Width: 4, Height: 4, Title: "shell"}
	reply, _, err := client.Call(creq.Encode(), nil, 64)
	require.NoError(t, err)
	cr := proto.DecodeDispCreateSurfaceReply(reply)

	lreq := proto.DispListWindowsRequest{Header: proto.Header{Type: proto.DispListWindows, RequestID: 2}}
	reply, _, err = client.Call(lreq.Encode(), nil, 256)
	require.NoError(t, err)
	lr := proto.DecodeDispListWindowsReply(reply)
	require.Len(t, lr.Windows, 1)
	assert.Equal(t, cr.SurfaceID, lr.Windows[0].SurfaceID)
	assert.Equal(t, "shell", lr.Windows[0].Title)
	assert.True(t, lr.Windows[0].Focused)
}

func TestSubscribeEventsPushesKeyEvent(t *testing.T) {
	disp, task, svc := newTestDisplayd(t)
	client := server.NewClient(disp, task, "DISPLAY")

	creq := proto.DispCreateSurfaceRequest{Header: proto.Header{Type: proto.DispCreateSurface, RequestID: 1}, Width: 4, Height: 4}
	reply, _, err := client.Call(creq.Encode(), nil, 64)
	require.NoError(t, err)
	cr := proto.DecodeDispCreateSurfaceReply(reply)
	_ = cr

	sreq := proto.DispSubscribeEventsRequest{Header: proto.Header{Type: proto.DispSubscribeEvents, RequestID: 2}}
	reply, handles, err := client.Call(sreq.Encode(), nil, 64)
	require.NoError(t, err)
	sr := proto.DecodeDispSubscribeReply(reply)
	require.Equal(t, int32(0), sr.Status)
	require.Len(t, handles, 1)
	eventRecv := handles[0]

	pres := disp.Dispatch(task, domain.OpPollCreate, [6]uint64{})
	require.True(t, pres.OK())
	pollHandle := domain.Handle(pres.Val0)
	ares := disp.Dispatch(task, domain.OpPollAdd, [6]uint64{uint64(pollHandle), uint64(eventRecv), uint64(domain.PollChannelRead)})
	require.True(t, ares.OK())

	go svc.NotifyKey(proto.DispKeyEvent{Keycode: 30, Pressed: true})

	var events [1]domain.PollEvent
	n, sres := disp.PollWait(task, pollHandle, events[:], int64(2*time.Second/time.Millisecond))
	require.True(t, sres.OK())
	require.Equal(t, 1, n)

	res, sres := disp.ChannelRecv(task, eventRecv, domain.MaxPayload, domain.MaxHandlesPerMsg)
	require.True(t, sres.OK())
	assert.Equal(t, proto.DispEventKey, proto.Order.Uint32(res.Payload[0:4]))
}
