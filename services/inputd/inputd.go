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

// Package inputd implements the input server: keyboard/mouse events fed
// in by a driver, queried non-blocking by clients, and pushed async to
// subscribers over a dedicated per-subscriber event channel. Ring-buffer
// queue behavior and modifier tracking are grounded on
// original_source/os/user/servers/inputd/main.cpp's g_char_buffer/
// g_event_queue and poll_device; wire shapes are proto.InpXxx.
package inputd

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

const (
	charBufferSize = 256
	eventQueueSize = 64
)

type subscriber struct {
	mask      uint32
	sendChan  domain.Handle
}

// Service is the input server state: a char ring buffer, an event ring
// buffer, the current modifier bitmask, and the live subscriber set.
type Service struct {
	mu   sync.Mutex
	disp *kernel.Dispatcher
	task domain.Task
	log  logrus.FieldLogger

	chars     []byte
	charHead  int
	charTail  int

	events     []proto.InputEvent
	eventHead  int
	eventTail  int

	modifiers uint8

	nextSubID uint32
	subs      map[uint32]*subscriber
}

// NewService returns an empty inputd service.
func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		log:       log,
		chars:     make([]byte, charBufferSize),
		events:    make([]proto.InputEvent, eventQueueSize),
		nextSubID: 1,
		subs:      make(map[uint32]*subscriber),
	}
}

// Serve registers "INPUTD" and blocks handling requests.
func (s *Service) Serve(disp *kernel.Dispatcher, task domain.Task) error {
	s.disp = disp
	s.task = task
	srv, err := server.Listen(disp, task, "INPUTD", s.log)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(func(req server.Request) ([]byte, []domain.Handle, error) {
		return s.handle(req)
	})
}

// PushChar feeds one translated character into the ring buffer, matching
// main.cpp's push_char. Oldest-first, drops the char if the buffer is full.
func (s *Service) PushChar(c byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := (s.charTail + 1) % charBufferSize
	if next != s.charHead {
		s.chars[s.charTail] = c
		s.charTail = next
	}
}

// PushEvent feeds one raw input event, updates modifier tracking for
// modifier keys, enqueues it for GetEvent, and notifies every subscriber
// whose event_mask matches — best effort, dropped if that subscriber's
// channel is full (spec.md's event coalescing decision, see DESIGN.md).
func (s *Service) PushEvent(ev proto.InputEvent) {
	s.mu.Lock()
	if ev.Type == proto.EventKeyPress || ev.Type == proto.EventKeyRelease {
		// Caller is expected to have already folded modifier state into
		// ev.Modifiers; this just tracks our own copy for GetModifiers.
		s.modifiers = ev.Modifiers
	}
	next := (s.eventTail + 1) % eventQueueSize
	if next != s.eventHead {
		s.events[s.eventTail] = ev
		s.eventTail = next
	}
	recipients := make([]domain.Handle, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.mask == 0 || uint32(ev.Type)&sub.mask != 0 {
			recipients = append(recipients, sub.sendChan)
		}
	}
	s.mu.Unlock()

	notify := proto.InputEventNotify{Event: ev}.Encode()
	for _, h := range recipients {
		if sres := s.disp.ChannelSend(s.task, h, notify, nil); !sres.OK() {
			s.log.WithError(sres.Error).Debug("dropping subscriber notification")
		}
	}
}

func (s *Service) handle(req server.Request) ([]byte, []domain.Handle, error) {
	if len(req.Payload) < 8 {
		return nil, nil, domain.InvalidArg
	}
	hdr := proto.GetHeader(req.Payload)
	switch hdr.Type {
	case proto.InpSubscribe:
		return s.handleSubscribe(hdr, req.Payload)
	case proto.InpUnsubscribe:
		return s.handleUnsubscribe(hdr, req.Payload), nil, nil
	case proto.InpGetChar:
		return s.handleGetChar(hdr), nil, nil
	case proto.InpGetEvent:
		return s.handleGetEvent(hdr), nil, nil
	case proto.InpGetModifiers:
		return s.handleGetModifiers(hdr), nil, nil
	case proto.InpHasInput:
		return s.handleHasInput(hdr), nil, nil
	default:
		return nil, nil, domain.NotSupported
	}
}

func (s *Service) handleSubscribe(hdr proto.Header, payload []byte) ([]byte, []domain.Handle, error) {
	r := proto.DecodeInpSubscribeRequest(payload)

	cres := s.disp.Dispatch(s.task, domain.OpChannelCreate, [6]uint64{})
	if !cres.OK() {
		reply := proto.InpSubscribeReply{Header: hdr, Status: int32(cres.Error)}
		return reply.Encode(), nil, nil
	}
	sendHandle := domain.Handle(cres.Val0)
	recvHandle := domain.Handle(cres.Val1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = &subscriber{mask: r.EventMask, sendChan: sendHandle}
	s.mu.Unlock()

	reply := proto.InpSubscribeReply{Header: hdr, Status: 0, SubscriberID: id}
	return reply.Encode(), []domain.Handle{recvHandle}, nil
}

func (s *Service) handleUnsubscribe(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeInpUnsubscribeRequest(payload)
	s.mu.Lock()
	sub, ok := s.subs[r.SubscriberID]
	delete(s.subs, r.SubscriberID)
	s.mu.Unlock()
	if !ok {
		return proto.InpUnsubscribeReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode()
	}
	_ = s.disp.Dispatch(s.task, domain.OpChannelClose, [6]uint64{uint64(sub.sendChan)})
	return proto.InpUnsubscribeReply{Header: hdr, Status: 0}.Encode()
}

func (s *Service) handleGetChar(hdr proto.Header) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.charHead == s.charTail {
		return proto.InpGetCharReply{Header: hdr, Result: -1}.Encode()
	}
	c := s.chars[s.charHead]
	s.charHead = (s.charHead + 1) % charBufferSize
	return proto.InpGetCharReply{Header: hdr, Result: int32(c)}.Encode()
}

func (s *Service) handleGetEvent(hdr proto.Header) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventHead == s.eventTail {
		return proto.InpGetEventReply{Header: hdr, Status: -1}.Encode()
	}
	ev := s.events[s.eventHead]
	s.eventHead = (s.eventHead + 1) % eventQueueSize
	return proto.InpGetEventReply{Header: hdr, Status: 0, Event: ev}.Encode()
}

func (s *Service) handleGetModifiers(hdr proto.Header) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return proto.InpGetModifiersReply{Header: hdr, Modifiers: s.modifiers}.Encode()
}

func (s *Service) handleHasInput(hdr proto.Header) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasChar, hasEvent := int32(0), int32(0)
	if s.charHead != s.charTail {
		hasChar = 1
	}
	if s.eventHead != s.eventTail {
		hasEvent = 1
	}
	return proto.InpHasInputReply{Header: hdr, HasChar: hasChar, HasEvent: hasEvent}.Encode()
}
