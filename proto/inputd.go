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

// Input protocol (inputd), grounded field-for-field on
// original_source/os/user/servers/inputd/input_protocol.hpp.

const (
	InpSubscribe    uint32 = 1
	InpUnsubscribe  uint32 = 2
	InpGetChar      uint32 = 10
	InpGetEvent     uint32 = 11
	InpGetModifiers uint32 = 12
	InpHasInput     uint32 = 13
	InpEventNotify  uint32 = 0x80

	InpSubscribeReplyType   uint32 = 0x81
	InpUnsubscribeReplyType uint32 = 0x82
	InpGetCharReply         uint32 = 0x8A
	InpGetEventReply        uint32 = 0x8B
	InpGetModifiersReply    uint32 = 0x8C
	InpHasInputReply        uint32 = 0x8D
)

// InputEventType mirrors input_protocol.hpp's EventType.
type InputEventType uint8

const (
	EventNone        InputEventType = 0
	EventKeyPress    InputEventType = 1
	EventKeyRelease  InputEventType = 2
	EventMouseMove   InputEventType = 3
	EventMouseButton InputEventType = 4
)

// Modifier bits mirror input_protocol.hpp's modifier namespace.
const (
	ModShift    uint8 = 0x01
	ModCtrl     uint8 = 0x02
	ModAlt      uint8 = 0x04
	ModMeta     uint8 = 0x08
	ModCapsLock uint8 = 0x10
)

// InputEvent mirrors input_protocol.hpp's InputEvent (8 bytes: type,
// modifiers, code, value).
type InputEvent struct {
	Type      InputEventType
	Modifiers uint8
	Code      uint16
	Value     int32
}

func (e InputEvent) Encode() []byte {
	buf := make([]byte, 8)
	buf[0] = byte(e.Type)
	buf[1] = e.Modifiers
	Order.PutUint16(buf[2:4], e.Code)
	Order.PutUint32(buf[4:8], uint32(e.Value))
	return buf
}

func DecodeInputEvent(buf []byte) InputEvent {
	return InputEvent{
		Type:      InputEventType(buf[0]),
		Modifiers: buf[1],
		Code:      Order.Uint16(buf[2:4]),
		Value:     int32(Order.Uint32(buf[4:8])),
	}
}

// InpSubscribeRequest is INP_SUBSCRIBE.
type InpSubscribeRequest struct {
	Header
	EventMask uint32
}

func (r InpSubscribeRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.EventMask)
	return buf
}

func DecodeInpSubscribeRequest(buf []byte) InpSubscribeRequest {
	return InpSubscribeRequest{Header: GetHeader(buf), EventMask: Order.Uint32(buf[8:12])}
}

// InpSubscribeReply is INP_SUBSCRIBE_REPLY. The event channel handle, if
// any, travels as the message's first transferred handle (spec.md §4.8),
// not inline — EventChannel here is populated by the caller after reading
// that transferred handle. SubscriberID identifies this subscription for
// a later INP_UNSUBSCRIBE call; input_protocol.hpp's SubscribeReply has
// no such field (the original server never implements teardown), so this
// is an addition, following the fd/socket-id convention fsd and netd
// already use to let a later request reference an earlier one.
type InpSubscribeReply struct {
	Header
	Status       int32
	EventChannel uint32
	SubscriberID uint32
}

func (r InpSubscribeReply) Encode() []byte {
	buf := make([]byte, 20)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.EventChannel)
	Order.PutUint32(buf[16:20], r.SubscriberID)
	return buf
}

func DecodeInpSubscribeReply(buf []byte) InpSubscribeReply {
	return InpSubscribeReply{
		Header:       GetHeader(buf),
		Status:       int32(Order.Uint32(buf[8:12])),
		EventChannel: Order.Uint32(buf[12:16]),
		SubscriberID: Order.Uint32(buf[16:20]),
	}
}

// InpUnsubscribeRequest is INP_UNSUBSCRIBE. input_protocol.hpp declares
// the op code but no argument struct; SubscriberID here is the value
// returned in InpSubscribeReply.
type InpUnsubscribeRequest struct {
	Header
	SubscriberID uint32
}

func (r InpUnsubscribeRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.SubscriberID)
	return buf
}

func DecodeInpUnsubscribeRequest(buf []byte) InpUnsubscribeRequest {
	return InpUnsubscribeRequest{Header: GetHeader(buf), SubscriberID: Order.Uint32(buf[8:12])}
}

// InpUnsubscribeReply acknowledges an unsubscribe.
type InpUnsubscribeReply struct {
	Header
	Status int32
}

func (r InpUnsubscribeReply) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	return buf
}

func DecodeInpUnsubscribeReply(buf []byte) InpUnsubscribeReply {
	return InpUnsubscribeReply{Header: GetHeader(buf), Status: int32(Order.Uint32(buf[8:12]))}
}

// InpGetCharRequest is INP_GET_CHAR.
type InpGetCharRequest struct{ Header }

func (r InpGetCharRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeInpGetCharRequest(buf []byte) InpGetCharRequest {
	return InpGetCharRequest{Header: GetHeader(buf)}
}

// InpGetCharReply is INP_GET_CHAR_REPLY. Result is the character (0-255)
// or -1 if none is available.
type InpGetCharReply struct {
	Header
	Result int32
}

func (r InpGetCharReply) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Result))
	return buf
}

func DecodeInpGetCharReply(buf []byte) InpGetCharReply {
	return InpGetCharReply{Header: GetHeader(buf), Result: int32(Order.Uint32(buf[8:12]))}
}

// InpGetEventRequest is INP_GET_EVENT.
type InpGetEventRequest struct{ Header }

func (r InpGetEventRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeInpGetEventRequest(buf []byte) InpGetEventRequest {
	return InpGetEventRequest{Header: GetHeader(buf)}
}

// InpGetEventReply is INP_GET_EVENT_REPLY.
type InpGetEventReply struct {
	Header
	Status int32
	Event  InputEvent
}

func (r InpGetEventReply) Encode() []byte {
	buf := make([]byte, 20)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	copy(buf[12:20], r.Event.Encode())
	return buf
}

func DecodeInpGetEventReply(buf []byte) InpGetEventReply {
	return InpGetEventReply{
		Header: GetHeader(buf),
		Status: int32(Order.Uint32(buf[8:12])),
		Event:  DecodeInputEvent(buf[12:20]),
	}
}

// InpGetModifiersRequest is INP_GET_MODIFIERS.
type InpGetModifiersRequest struct{ Header }

func (r InpGetModifiersRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeInpGetModifiersRequest(buf []byte) InpGetModifiersRequest {
	return InpGetModifiersRequest{Header: GetHeader(buf)}
}

// InpGetModifiersReply is INP_GET_MODIFIERS_REPLY.
type InpGetModifiersReply struct {
	Header
	Modifiers uint8
}

func (r InpGetModifiersReply) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	buf[8] = r.Modifiers
	return buf
}

func DecodeInpGetModifiersReply(buf []byte) InpGetModifiersReply {
	return InpGetModifiersReply{Header: GetHeader(buf), Modifiers: buf[8]}
}

// InpHasInputRequest is INP_HAS_INPUT.
type InpHasInputRequest struct{ Header }

func (r InpHasInputRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeInpHasInputRequest(buf []byte) InpHasInputRequest {
	return InpHasInputRequest{Header: GetHeader(buf)}
}

// InpHasInputReply is INP_HAS_INPUT_REPLY.
type InpHasInputReply struct {
	Header
	HasChar  int32
	HasEvent int32
}

func (r InpHasInputReply) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.HasChar))
	Order.PutUint32(buf[12:16], uint32(r.HasEvent))
	return buf
}

func DecodeInpHasInputReply(buf []byte) InpHasInputReply {
	return InpHasInputReply{
		Header:   GetHeader(buf),
		HasChar:  int32(Order.Uint32(buf[8:12])),
		HasEvent: int32(Order.Uint32(buf[12:16])),
	}
}

// InputEventNotify is the async INP_EVENT_NOTIFY push sent on a
// subscriber's event channel; there is no request_id since it is not a
// reply to any particular call.
type InputEventNotify struct {
	Event InputEvent
}

func (n InputEventNotify) Encode() []byte {
	buf := make([]byte, 12)
	Order.PutUint32(buf[0:4], InpEventNotify)
	copy(buf[4:12], n.Event.Encode())
	return buf
}

func DecodeInputEventNotify(buf []byte) InputEventNotify {
	return InputEventNotify{Event: DecodeInputEvent(buf[4:12])}
}
