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

// Package displayd implements the display/window-management server: an
// in-memory compositor tracking surfaces in z-order, geometry,
// visibility, and a per-surface event queue, operating on image buffers
// rather than a real framebuffer device. State machine and defaults
// (cascading placement, white-fill-on-create, z-order bring-to-front)
// are grounded on original_source/os/user/servers/displayd/main.cpp.
package displayd

import (
	"image"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

const (
	maxSurfaceEvents = 32
	cascadeStep      = 50
)

type queuedEvent struct {
	eventType uint32
	payload   []byte
}

type surface struct {
	id        uint32
	width     uint32
	height    uint32
	stride    uint32
	x, y      int32
	visible   bool
	minimized bool
	maximized bool
	title     string
	flags     uint32
	zOrder    uint32
	shm       domain.SharedMemory
	ownHandle domain.Handle // displayd's own cap over shm, released on destroy
	events    []queuedEvent
	subSend   domain.Handle // 0 if not subscribed for async push
}

// Service is the display server state: the desktop's logical dimensions,
// every live surface, and compositor bookkeeping (focus, z-order).
type Service struct {
	mu     sync.Mutex
	disp   *kernel.Dispatcher
	task   domain.Task
	log    logrus.FieldLogger
	width  uint32
	height uint32

	surfaces map[uint32]*surface
	nextID   uint32
	nextZ    uint32
	focused  uint32
}

// NewService returns a displayd service for a desktop of the given
// logical size (the "framebuffer" this compositor renders to).
func NewService(width, height uint32, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{width: width, height: height, log: log, surfaces: make(map[uint32]*surface), nextID: 1, nextZ: 1}
}

// Serve registers "DISPLAY" and blocks handling requests.
func (s *Service) Serve(disp *kernel.Dispatcher, task domain.Task) error {
	s.disp = disp
	s.task = task
	srv, err := server.Listen(disp, task, "DISPLAY", s.log)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(func(req server.Request) ([]byte, []domain.Handle, error) {
		return s.handle(req)
	})
}

func (s *Service) handle(req server.Request) ([]byte, []domain.Handle, error) {
	if len(req.Payload) < 8 {
		return nil, nil, domain.InvalidArg
	}
	hdr := proto.GetHeader(req.Payload)
	switch hdr.Type {
	case proto.DispGetInfo:
		return s.handleGetInfo(hdr), nil, nil
	case proto.DispCreateSurface:
		return s.handleCreateSurface(hdr, req.Payload)
	case proto.DispDestroySurface:
		return s.handleDestroySurface(hdr, req.Payload), nil, nil
	case proto.DispPresent:
		return s.handlePresent(hdr, req.Payload), nil, nil
	case proto.DispSetGeometry:
		return s.handleSetGeometry(hdr, req.Payload), nil, nil
	case proto.DispSetVisible:
		return s.handleSetVisible(hdr, req.Payload), nil, nil
	case proto.DispSetTitle:
		return s.handleSetTitle(hdr, req.Payload), nil, nil
	case proto.DispSubscribeEvents:
		return s.handleSubscribeEvents(hdr)
	case proto.DispPollEvent:
		return s.handlePollEvent(hdr, req.Payload), nil, nil
	case proto.DispListWindows:
		return s.handleListWindows(hdr), nil, nil
	case proto.DispRestoreWindow:
		return s.handleRestoreWindow(hdr, req.Payload), nil, nil
	default:
		return nil, nil, domain.NotSupported
	}
}

func (s *Service) handleGetInfo(hdr proto.Header) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return proto.DispGetInfoReply{Header: hdr, Status: 0, Width: s.width, Height: s.height, Format: proto.XRGB8888}.Encode()
}

func (s *Service) handleCreateSurface(hdr proto.Header, payload []byte) ([]byte, []domain.Handle, error) {
	r := proto.DecodeDispCreateSurfaceRequest(payload)

	stride := r.Width * 4
	size := int(stride) * int(r.Height)
	cres := s.disp.Dispatch(s.task, domain.OpShmCreate, [6]uint64{uint64(size)})
	if !cres.OK() {
		reply := proto.DispCreateSurfaceReply{Header: hdr, Status: int32(cres.Error)}
		return reply.Encode(), nil, nil
	}
	ownHandle := domain.Handle(cres.Val0)

	obj, err := s.task.Caps().Lookup(ownHandle, domain.KindSharedMemory, domain.RightRead|domain.RightWrite)
	if err != nil {
		return proto.DispCreateSurfaceReply{Header: hdr, Status: int32(domain.AsVError(err))}.Encode(), nil, nil
	}
	region := obj.(domain.SharedMemory)
	buf := region.Bytes()
	for i := range buf {
		buf[i] = 0xFF // white fill, per main.cpp's COLOR_WHITE clear
	}

	// OpCapDerive mints a second live handle onto the same region rather
	// than moving ownHandle, so the capability table ref-counts it
	// (captable.Table.Derive calls Ref()); displayd keeps ownHandle to go
	// on compositing while xferHandle travels to the client.
	dres := s.disp.Dispatch(s.task, domain.OpCapDerive, [6]uint64{uint64(ownHandle), uint64(domain.RightRead | domain.RightWrite | domain.RightXfer)})
	if !dres.OK() {
		return proto.DispCreateSurfaceReply{Header: hdr, Status: int32(dres.Error)}.Encode(), nil, nil
	}
	xferHandle := domain.Handle(dres.Val0)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	surf := &surface{
		id:        id,
		width:     r.Width,
		height:    r.Height,
		stride:    stride,
		x:         100 + int32((id-1)%5)*cascadeStep,
		y:         100 + int32((id-1)%5)*30,
		visible:   true,
		title:     r.Title,
		flags:     r.Flags,
		zOrder:    s.nextZ,
		shm:       region,
		ownHandle: ownHandle,
	}
	s.nextZ++
	s.surfaces[id] = surf
	s.focused = id
	s.mu.Unlock()

	reply := proto.DispCreateSurfaceReply{Header: hdr, Status: 0, SurfaceID: id, Stride: stride}
	return reply.Encode(), []domain.Handle{xferHandle}, nil
}

func (s *Service) handleDestroySurface(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeDispDestroySurfaceRequest(payload)
	s.mu.Lock()
	surf, ok := s.surfaces[r.SurfaceID]
	if ok {
		delete(s.surfaces, r.SurfaceID)
	}
	s.mu.Unlock()
	if !ok {
		return proto.DispGenericReply{Header: hdr, Status: -1}.Encode()
	}
	// Release through the dispatcher, not surf.shm.Unref() directly: that
	// both drops displayd's own reference and frees the ownHandle slot in
	// its capability table, leaving the client's derived xferHandle (if
	// still held) as the sole remaining reference.
	_ = s.disp.Dispatch(s.task, domain.OpCapRevoke, [6]uint64{uint64(surf.ownHandle)})
	return proto.DispGenericReply{Header: hdr, Status: 0}.Encode()
}

func (s *Service) handlePresent(hdr proto.Header, payload []byte) []byte {
	_ = proto.DecodeDispPresentRequest(payload)
	// Compositing is read-on-demand (Composite below); Present in this
	// in-memory server only acknowledges the damage notification.
	return proto.DispGenericReply{Header: hdr, Status: 0}.Encode()
}

func (s *Service) handleSetGeometry(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeDispSetGeometryRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	surf, ok := s.surfaces[r.SurfaceID]
	if !ok {
		return proto.DispGenericReply{Header: hdr, Status: -1}.Encode()
	}
	surf.x, surf.y = r.X, r.Y
	return proto.DispGenericReply{Header: hdr, Status: 0}.Encode()
}

func (s *Service) handleSetVisible(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeDispSetVisibleRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	surf, ok := s.surfaces[r.SurfaceID]
	if !ok {
		return proto.DispGenericReply{Header: hdr, Status: -1}.Encode()
	}
	surf.visible = r.Visible
	return proto.DispGenericReply{Header: hdr, Status: 0}.Encode()
}

func (s *Service) handleSetTitle(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeDispSetTitleRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	surf, ok := s.surfaces[r.SurfaceID]
	if !ok {
		return proto.DispGenericReply{Header: hdr, Status: -1}.Encode()
	}
	surf.title = r.Title
	return proto.DispGenericReply{Header: hdr, Status: 0}.Encode()
}

func (s *Service) handleSubscribeEvents(hdr proto.Header) ([]byte, []domain.Handle, error) {
	cres := s.disp.Dispatch(s.task, domain.OpChannelCreate, [6]uint64{})
	if !cres.OK() {
		return proto.DispSubscribeReply{Header: hdr, Status: int32(cres.Error)}.Encode(), nil, nil
	}
	sendHandle := domain.Handle(cres.Val0)
	recvHandle := domain.Handle(cres.Val1)

	s.mu.Lock()
	for _, surf := range s.surfaces {
		surf.subSend = sendHandle
	}
	s.mu.Unlock()

	reply := proto.DispSubscribeReply{Header: hdr, Status: 0}
	return reply.Encode(), []domain.Handle{recvHandle}, nil
}

func (s *Service) handlePollEvent(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeDispPollEventRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	surf, ok := s.surfaces[r.SurfaceID]
	if !ok || len(surf.events) == 0 {
		return proto.DispPollEventReply{Header: hdr, HasEvent: 0}.Encode()
	}
	ev := surf.events[0]
	surf.events = surf.events[1:]
	return proto.DispPollEventReply{Header: hdr, HasEvent: 1, EventType: ev.eventType, Payload: ev.payload}.Encode()
}

func (s *Service) handleListWindows(hdr proto.Header) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := proto.DispListWindowsReply{Header: hdr, Status: 0}
	for _, surf := range s.surfaces {
		if surf.flags&proto.SurfaceFlagSystem != 0 {
			continue
		}
		reply.Windows = append(reply.Windows, proto.WindowInfo{
			SurfaceID: surf.id,
			Flags:     surf.flags,
			Minimized: surf.minimized,
			Maximized: surf.maximized,
			Focused:   surf.id == s.focused,
			Title:     surf.title,
		})
		if len(reply.Windows) >= 16 {
			break
		}
	}
	return reply.Encode()
}

func (s *Service) handleRestoreWindow(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeDispRestoreWindowRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	surf, ok := s.surfaces[r.SurfaceID]
	if !ok {
		return proto.DispGenericReply{Header: hdr, Status: -1}.Encode()
	}
	surf.minimized = false
	surf.zOrder = s.nextZ
	s.nextZ++
	s.focused = surf.id
	return proto.DispGenericReply{Header: hdr, Status: 0}.Encode()
}

// pushEvent enqueues ev on the target surface's pull queue (dropping it
// if the queue is full, matching main.cpp's EventQueue::push) and, if a
// subscriber is attached, best-effort forwards it down the async channel.
func (s *Service) pushEvent(surfaceID uint32, eventType uint32, wire []byte) {
	s.mu.Lock()
	surf, ok := s.surfaces[surfaceID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if len(surf.events) < maxSurfaceEvents {
		surf.events = append(surf.events, queuedEvent{eventType: eventType, payload: wire})
	}
	subSend := surf.subSend
	s.mu.Unlock()

	if subSend != domain.NoHandle {
		if sres := s.disp.ChannelSend(s.task, subSend, wire, nil); !sres.OK() {
			s.log.WithError(sres.Error).Debug("dropping surface event subscriber push")
		}
	}
}

// NotifyKey feeds a key event to the focused surface, mirroring
// main.cpp's focused-surface event routing.
func (s *Service) NotifyKey(ev proto.DispKeyEvent) {
	s.mu.Lock()
	ev.SurfaceID = s.focused
	s.mu.Unlock()
	s.pushEvent(ev.SurfaceID, proto.DispEventKey, ev.Encode())
}

// NotifyMouse feeds a mouse event to the named surface.
func (s *Service) NotifyMouse(ev proto.DispMouseEvent) {
	s.pushEvent(ev.SurfaceID, proto.DispEventMouse, ev.Encode())
}

// NotifyClose feeds a close request (e.g. a decoration close-button
// click) to the named surface.
func (s *Service) NotifyClose(surfaceID uint32) {
	s.pushEvent(surfaceID, proto.DispEventClose, proto.DispCloseEvent{SurfaceID: surfaceID}.Encode())
}

// Composite renders every visible, non-minimized surface into a single
// image in z-order (lowest first), matching main.cpp's composite(). It
// is exposed for tests and for a real frontend to pull a frame from.
func (s *Service) Composite() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := image.NewNRGBA(image.Rect(0, 0, int(s.width), int(s.height)))
	for i := range out.Pix {
		out.Pix[i] = 0xFF
	}

	visible := make([]*surface, 0, len(s.surfaces))
	for _, surf := range s.surfaces {
		if surf.visible && !surf.minimized {
			visible = append(visible, surf)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].zOrder < visible[j].zOrder })

	for _, surf := range visible {
		pixels := surf.shm.Bytes()
		for sy := uint32(0); sy < surf.height; sy++ {
			dstY := surf.y + int32(sy)
			if dstY < 0 || dstY >= int32(s.height) {
				continue
			}
			for sx := uint32(0); sx < surf.width; sx++ {
				dstX := surf.x + int32(sx)
				if dstX < 0 || dstX >= int32(s.width) {
					continue
				}
				srcOff := sy*surf.stride + sx*4
				if int(srcOff)+4 > len(pixels) {
					continue
				}
				dstOff := out.PixOffset(int(dstX), int(dstY))
				copy(out.Pix[dstOff:dstOff+4], pixels[srcOff:srcOff+4])
			}
		}
	}
	return out
}
