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

package proto

// Display protocol (displayd), grounded field-for-field on
// original_source/os/user/servers/displayd/display_protocol.hpp.

const (
	DispGetInfo        uint32 = 1
	DispCreateSurface  uint32 = 2
	DispDestroySurface uint32 = 3
	DispPresent        uint32 = 4
	DispSetGeometry    uint32 = 5
	DispSetVisible     uint32 = 6
	DispSetTitle       uint32 = 7
	DispSubscribeEvents uint32 = 10
	DispPollEvent       uint32 = 11
	DispListWindows     uint32 = 12
	DispRestoreWindow   uint32 = 13

	DispInfoReply          uint32 = 0x81
	DispCreateSurfaceReply uint32 = 0x82
	DispGenericReply       uint32 = 0x83
	DispSubscribeReply     uint32 = 0x84
	DispPollEventReply     uint32 = 0x85
	DispListWindowsReply   uint32 = 0x86

	DispEventKey   uint32 = 0x90
	DispEventMouse uint32 = 0x91
	DispEventFocus uint32 = 0x92
	DispEventClose uint32 = 0x93
)

const titleLen = 64

// XRGB8888 is display_protocol.hpp's documented default pixel format tag.
const XRGB8888 uint32 = 0x34325258

// SurfaceFlagSystem marks a surface as a compositor-owned decoration
// (e.g. the cursor or a panel) that DISP_LIST_WINDOWS omits, mirroring
// main.cpp's distinction between user windows and system surfaces.
const SurfaceFlagSystem uint32 = 0x01

// DispGetInfoRequest is DISP_GET_INFO.
type DispGetInfoRequest struct{ Header }

func (r DispGetInfoRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeDispGetInfoRequest(buf []byte) DispGetInfoRequest {
	return DispGetInfoRequest{Header: GetHeader(buf)}
}

// DispGetInfoReply is DISP_INFO_REPLY.
type DispGetInfoReply struct {
	Header
	Status int32
	Width  uint32
	Height uint32
	Format uint32
}

func (r DispGetInfoReply) Encode() []byte {
	buf := make([]byte, 24)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.Width)
	Order.PutUint32(buf[16:20], r.Height)
	Order.PutUint32(buf[20:24], r.Format)
	return buf
}

func DecodeDispGetInfoReply(buf []byte) DispGetInfoReply {
	return DispGetInfoReply{
		Header: GetHeader(buf),
		Status: int32(Order.Uint32(buf[8:12])),
		Width:  Order.Uint32(buf[12:16]),
		Height: Order.Uint32(buf[16:20]),
		Format: Order.Uint32(buf[20:24]),
	}
}

// DispCreateSurfaceRequest is DISP_CREATE_SURFACE.
type DispCreateSurfaceRequest struct {
	Header
	Width  uint32
	Height uint32
	Flags  uint32
	Title  string // truncated/zero-padded to titleLen on the wire
}

func (r DispCreateSurfaceRequest) Encode() []byte {
	buf := make([]byte, 20+titleLen)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Width)
	Order.PutUint32(buf[12:16], r.Height)
	Order.PutUint32(buf[16:20], r.Flags)
	copy(buf[20:20+titleLen], r.Title)
	return buf
}

func DecodeDispCreateSurfaceRequest(buf []byte) DispCreateSurfaceRequest {
	titleBytes := buf[20 : 20+titleLen]
	if n := indexByte(titleBytes, 0); n >= 0 {
		titleBytes = titleBytes[:n]
	}
	return DispCreateSurfaceRequest{
		Header: GetHeader(buf),
		Width:  Order.Uint32(buf[8:12]),
		Height: Order.Uint32(buf[12:16]),
		Flags:  Order.Uint32(buf[16:20]),
		Title:  string(titleBytes),
	}
}

// DispCreateSurfaceReply is DISP_CREATE_SURFACE_REPLY. The pixel-buffer
// shm handle travels as the message's first transferred handle, per
// spec.md §4.8, not inline.
type DispCreateSurfaceReply struct {
	Header
	Status    int32
	SurfaceID uint32
	Stride    uint32
}

func (r DispCreateSurfaceReply) Encode() []byte {
	buf := make([]byte, 20)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.SurfaceID)
	Order.PutUint32(buf[16:20], r.Stride)
	return buf
}

func DecodeDispCreateSurfaceReply(buf []byte) DispCreateSurfaceReply {
	return DispCreateSurfaceReply{
		Header:    GetHeader(buf),
		Status:    int32(Order.Uint32(buf[8:12])),
		SurfaceID: Order.Uint32(buf[12:16]),
		Stride:    Order.Uint32(buf[16:20]),
	}
}

// DispDestroySurfaceRequest is DISP_DESTROY_SURFACE.
type DispDestroySurfaceRequest struct {
	Header
	SurfaceID uint32
}

func (r DispDestroySurfaceRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	return buf
}

func DecodeDispDestroySurfaceRequest(buf []byte) DispDestroySurfaceRequest {
	return DispDestroySurfaceRequest{Header: GetHeader(buf), SurfaceID: Order.Uint32(buf[8:12])}
}

// DispPresentRequest is DISP_PRESENT. A zero damage rect means "full
// surface" per the header's comment.
type DispPresentRequest struct {
	Header
	SurfaceID uint32
	DamageX   uint32
	DamageY   uint32
	DamageW   uint32
	DamageH   uint32
}

func (r DispPresentRequest) Encode() []byte {
	buf := make([]byte, 28)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	Order.PutUint32(buf[12:16], r.DamageX)
	Order.PutUint32(buf[16:20], r.DamageY)
	Order.PutUint32(buf[20:24], r.DamageW)
	Order.PutUint32(buf[24:28], r.DamageH)
	return buf
}

func DecodeDispPresentRequest(buf []byte) DispPresentRequest {
	return DispPresentRequest{
		Header:    GetHeader(buf),
		SurfaceID: Order.Uint32(buf[8:12]),
		DamageX:   Order.Uint32(buf[12:16]),
		DamageY:   Order.Uint32(buf[16:20]),
		DamageW:   Order.Uint32(buf[20:24]),
		DamageH:   Order.Uint32(buf[24:28]),
	}
}

// DispSetGeometryRequest is DISP_SET_GEOMETRY.
type DispSetGeometryRequest struct {
	Header
	SurfaceID uint32
	X         int32
	Y         int32
}

func (r DispSetGeometryRequest) Encode() []byte {
	buf := make([]byte, 20)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	Order.PutUint32(buf[12:16], uint32(r.X))
	Order.PutUint32(buf[16:20], uint32(r.Y))
	return buf
}

func DecodeDispSetGeometryRequest(buf []byte) DispSetGeometryRequest {
	return DispSetGeometryRequest{
		Header:    GetHeader(buf),
		SurfaceID: Order.Uint32(buf[8:12]),
		X:         int32(Order.Uint32(buf[12:16])),
		Y:         int32(Order.Uint32(buf[16:20])),
	}
}

// DispSetVisibleRequest is DISP_SET_VISIBLE.
type DispSetVisibleRequest struct {
	Header
	SurfaceID uint32
	Visible   bool
}

func (r DispSetVisibleRequest) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	v := uint32(0)
	if r.Visible {
		v = 1
	}
	Order.PutUint32(buf[12:16], v)
	return buf
}

func DecodeDispSetVisibleRequest(buf []byte) DispSetVisibleRequest {
	return DispSetVisibleRequest{
		Header:    GetHeader(buf),
		SurfaceID: Order.Uint32(buf[8:12]),
		Visible:   Order.Uint32(buf[12:16]) != 0,
	}
}

// DispSetTitleRequest is DISP_SET_TITLE.
type DispSetTitleRequest struct {
	Header
	SurfaceID uint32
	Title     string
}

func (r DispSetTitleRequest) Encode() []byte {
	buf := make([]byte, 12+titleLen)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	copy(buf[12:12+titleLen], r.Title)
	return buf
}

func DecodeDispSetTitleRequest(buf []byte) DispSetTitleRequest {
	titleBytes := buf[12 : 12+titleLen]
	if n := indexByte(titleBytes, 0); n >= 0 {
		titleBytes = titleBytes[:n]
	}
	return DispSetTitleRequest{
		Header:    GetHeader(buf),
		SurfaceID: Order.Uint32(buf[8:12]),
		Title:     string(titleBytes),
	}
}

// DispGenericReply is DISP_GENERIC_REPLY, used for requests that need no
// payload beyond success/failure.
type DispGenericReply struct {
	Header
	Status int32
}

func (r DispGenericReply) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	return buf
}

func DecodeDispGenericReply(buf []byte) DispGenericReply {
	return DispGenericReply{Header: GetHeader(buf), Status: int32(Order.Uint32(buf[8:12]))}
}

// DispKeyEvent is the DISP_EVENT_KEY async push.
type DispKeyEvent struct {
	SurfaceID uint32
	Keycode   uint16
	Modifiers uint8
	Pressed   bool
}

func (e DispKeyEvent) Encode() []byte {
	buf := make([]byte, 12)
	Order.PutUint32(buf[0:4], DispEventKey)
	Order.PutUint32(buf[4:8], e.SurfaceID)
	Order.PutUint16(buf[8:10], e.Keycode)
	buf[10] = e.Modifiers
	if e.Pressed {
		buf[11] = 1
	}
	return buf
}

// DispMouseEvent is the DISP_EVENT_MOUSE async push.
type DispMouseEvent struct {
	SurfaceID uint32
	X, Y      int32
	DX, DY    int32
	Buttons   uint8
	EventType uint8 // 0=move, 1=button_down, 2=button_up
	Button    uint8 // 0=left, 1=right, 2=middle
}

func (e DispMouseEvent) Encode() []byte {
	buf := make([]byte, 24)
	Order.PutUint32(buf[0:4], DispEventMouse)
	Order.PutUint32(buf[4:8], e.SurfaceID)
	Order.PutUint32(buf[8:12], uint32(e.X))
	Order.PutUint32(buf[12:16], uint32(e.Y))
	Order.PutUint32(buf[16:20], uint32(e.DX))
	Order.PutUint32(buf[20:24], uint32(e.DY))
	return buf
}

// DispFocusEvent is the DISP_EVENT_FOCUS async push.
type DispFocusEvent struct {
	SurfaceID uint32
	Gained    bool
}

func (e DispFocusEvent) Encode() []byte {
	buf := make([]byte, 12)
	Order.PutUint32(buf[0:4], DispEventFocus)
	Order.PutUint32(buf[4:8], e.SurfaceID)
	if e.Gained {
		buf[8] = 1
	}
	return buf
}

// DispCloseEvent is the DISP_EVENT_CLOSE async push.
type DispCloseEvent struct {
	SurfaceID uint32
}

func (e DispCloseEvent) Encode() []byte {
	buf := make([]byte, 8)
	Order.PutUint32(buf[0:4], DispEventClose)
	Order.PutUint32(buf[4:8], e.SurfaceID)
	return buf
}

// DispSubscribeEventsRequest is DISP_SUBSCRIBE_EVENTS. display_protocol.hpp
// declares the op code only; a per-surface pull queue already exists via
// DISP_POLL_EVENT, so this adds an optional async push channel on top of
// it the same way inputd's INP_SUBSCRIBE does, reusing the existing
// DispKeyEvent/DispMouseEvent/DispFocusEvent/DispCloseEvent encoders as
// the frames pushed down the channel.
type DispSubscribeEventsRequest struct{ Header }

func (r DispSubscribeEventsRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeDispSubscribeEventsRequest(buf []byte) DispSubscribeEventsRequest {
	return DispSubscribeEventsRequest{Header: GetHeader(buf)}
}

// DispSubscribeReply is DISP_SUBSCRIBE_REPLY. The event channel handle
// travels as the message's first transferred handle, not inline.
type DispSubscribeReply struct {
	Header
	Status       int32
	EventChannel uint32
}

func (r DispSubscribeReply) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.EventChannel)
	return buf
}

func DecodeDispSubscribeReply(buf []byte) DispSubscribeReply {
	return DispSubscribeReply{
		Header:       GetHeader(buf),
		Status:       int32(Order.Uint32(buf[8:12])),
		EventChannel: Order.Uint32(buf[12:16]),
	}
}

// DispPollEventRequest is DISP_POLL_EVENT, mirroring main.cpp's
// PollEventRequest.
type DispPollEventRequest struct {
	Header
	SurfaceID uint32
}

func (r DispPollEventRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	return buf
}

func DecodeDispPollEventRequest(buf []byte) DispPollEventRequest {
	return DispPollEventRequest{Header: GetHeader(buf), SurfaceID: Order.Uint32(buf[8:12])}
}

// DispPollEventReply is DISP_POLL_EVENT_REPLY. HasEvent is 1 when Payload
// holds a queued event; EventType identifies which queue event encoder
// produced Payload (already wire-encoded, ready to forward/decode).
type DispPollEventReply struct {
	Header
	HasEvent  int32
	EventType uint32
	Payload   []byte
}

func (r DispPollEventReply) Encode() []byte {
	buf := make([]byte, 16+len(r.Payload))
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.HasEvent))
	Order.PutUint32(buf[12:16], r.EventType)
	copy(buf[16:], r.Payload)
	return buf
}

func DecodeDispPollEventReply(buf []byte) DispPollEventReply {
	return DispPollEventReply{
		Header:    GetHeader(buf),
		HasEvent:  int32(Order.Uint32(buf[8:12])),
		EventType: Order.Uint32(buf[12:16]),
		Payload:   append([]byte(nil), buf[16:]...),
	}
}

// WindowInfo is one entry of DispListWindowsReply, mirroring main.cpp's
// WindowInfo.
type WindowInfo struct {
	SurfaceID uint32
	Flags     uint32
	Minimized bool
	Maximized bool
	Focused   bool
	Title     string
}

const windowInfoSize = 16 + titleLen

func (w WindowInfo) encodeInto(buf []byte) {
	Order.PutUint32(buf[0:4], w.SurfaceID)
	Order.PutUint32(buf[4:8], w.Flags)
	if w.Minimized {
		buf[8] = 1
	}
	if w.Maximized {
		buf[9] = 1
	}
	if w.Focused {
		buf[10] = 1
	}
	copy(buf[16:16+titleLen], w.Title)
}

func decodeWindowInfo(buf []byte) WindowInfo {
	title := buf[16 : 16+titleLen]
	if n := indexByte(title, 0); n >= 0 {
		title = title[:n]
	}
	return WindowInfo{
		SurfaceID: Order.Uint32(buf[0:4]),
		Flags:     Order.Uint32(buf[4:8]),
		Minimized: buf[8] != 0,
		Maximized: buf[9] != 0,
		Focused:   buf[10] != 0,
		Title:     string(title),
	}
}

// DispListWindowsRequest is DISP_LIST_WINDOWS.
type DispListWindowsRequest struct{ Header }

func (r DispListWindowsRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeDispListWindowsRequest(buf []byte) DispListWindowsRequest {
	return DispListWindowsRequest{Header: GetHeader(buf)}
}

// DispListWindowsReply is DISP_LIST_WINDOWS_REPLY.
type DispListWindowsReply struct {
	Header
	Status  int32
	Windows []WindowInfo
}

func (r DispListWindowsReply) Encode() []byte {
	buf := make([]byte, 12+windowInfoSize*len(r.Windows))
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	off := 12
	for _, w := range r.Windows {
		w.encodeInto(buf[off : off+windowInfoSize])
		off += windowInfoSize
	}
	return buf
}

func DecodeDispListWindowsReply(buf []byte) DispListWindowsReply {
	r := DispListWindowsReply{Header: GetHeader(buf), Status: int32(Order.Uint32(buf[8:12]))}
	off := 12
	for off+windowInfoSize <= len(buf) {
		r.Windows = append(r.Windows, decodeWindowInfo(buf[off:off+windowInfoSize]))
		off += windowInfoSize
	}
	return r
}

// DispRestoreWindowRequest is DISP_RESTORE_WINDOW.
type DispRestoreWindowRequest struct {
	Header
	SurfaceID uint32
}

func (r DispRestoreWindowRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SurfaceID)
	return buf
}

func DecodeDispRestoreWindowRequest(buf []byte) DispRestoreWindowRequest {
	return DispRestoreWindowRequest{Header: GetHeader(buf), SurfaceID: Order.Uint32(buf[8:12])}
}
