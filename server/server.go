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

// Package server implements the request/reply framework every canonical
// service (blkd, fsd, netd, inputd, displayd) in this repository builds
// on: register a well-known name via assign, serve one request at a time
// off a single service channel, reply over a private per-call channel
// whose send end travels as the message's first transferred handle.
//
// The shape follows original_source/os/user/servers/fsd/blk_client.hpp's
// BlkClient (request, then block for the matching reply) generalized to
// the server side, and handler wiring follows handler/handlerDB.go's
// XxxService/Setup pattern from the teacher repo.
package server

import (
	"github.com/sirupsen/logrus"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
)

// Request is one inbound call. Handles are whatever the client attached
// beyond the reply channel (e.g. a shm handle carrying write data);
// ReplyTo is consumed by Server.Reply and must not be used directly.
type Request struct {
	Payload []byte
	Handles []domain.Handle
	ReplyTo domain.Handle
}

// Handler processes one Request and returns the bytes/handles to send
// back. Returning an error closes the reply channel without a payload —
// callers that need a typed status in the reply body should encode it in
// Payload themselves (every *_protocol.go reply type carries a Status
// field for exactly this reason) and return a nil error.
type Handler func(req Request) (payload []byte, handles []domain.Handle, err error)

// Server owns one service channel, serving single-threaded and
// cooperatively — the same concurrency model the teacher's
// handlerService methods assume (a single goroutine driving one
// container's state at a time).
type Server struct {
	disp       *kernel.Dispatcher
	task       domain.Task
	name       string
	recvHandle domain.Handle
	pollHandle domain.Handle
	log        logrus.FieldLogger
}

// Listen creates a fresh channel, registers its send end under name via
// the assign registry, and returns a Server ready for Serve.
func Listen(disp *kernel.Dispatcher, task domain.Task, name string, log logrus.FieldLogger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	cres := disp.Dispatch(task, domain.OpChannelCreate, [6]uint64{})
	if !cres.OK() {
		return nil, cres.Error
	}
	sendHandle := domain.Handle(cres.Val0)
	recvHandle := domain.Handle(cres.Val1)

	if ares := disp.AssignSet(task, name, sendHandle, domain.AssignSystem); !ares.OK() {
		_ = disp.Dispatch(task, domain.OpCapRevoke, [6]uint64{uint64(sendHandle)})
		_ = disp.Dispatch(task, domain.OpCapRevoke, [6]uint64{uint64(recvHandle)})
		return nil, ares.Error
	}

	pres := disp.Dispatch(task, domain.OpPollCreate, [6]uint64{})
	if !pres.OK() {
		return nil, pres.Error
	}
	pollHandle := domain.Handle(pres.Val0)
	if ares := disp.Dispatch(task, domain.OpPollAdd, [6]uint64{uint64(pollHandle), uint64(recvHandle), uint64(domain.PollChannelRead)}); !ares.OK() {
		return nil, ares.Error
	}

	return &Server{
		disp:       disp,
		task:       task,
		name:       name,
		recvHandle: recvHandle,
		pollHandle: pollHandle,
		log:        log.WithField("service", name),
	}, nil
}

// Serve blocks the calling goroutine, dispatching every inbound request
// to handler until the service channel is closed (spec.md §4.8's
// request/reply service loop). It returns nil on an orderly shutdown.
func (s *Server) Serve(handler Handler) error {
	var events [1]domain.PollEvent
	for {
		if _, sres := s.disp.PollWait(s.task, s.pollHandle, events[:], -1); !sres.OK() {
			return sres.Error
		}

		rres, sres := s.disp.ChannelRecv(s.task, s.recvHandle, domain.MaxPayload, domain.MaxHandlesPerMsg)
		if !sres.OK() {
			switch sres.Error {
			case domain.WouldBlock:
				continue
			case domain.ChannelClosed:
				return nil
			default:
				return sres.Error
			}
		}

		req := Request{Payload: rres.Payload}
		if len(rres.Handles) > 0 {
			req.ReplyTo = rres.Handles[0]
			req.Handles = rres.Handles[1:]
		}
		if req.ReplyTo == domain.NoHandle {
			s.log.Warn("request carried no reply channel, dropping")
			continue
		}

		pendingRequests.WithLabelValues(s.name).Inc()
		payload, handles, err := handler(req)
		pendingRequests.WithLabelValues(s.name).Dec()
		if err != nil {
			requestsTotal.WithLabelValues(s.name, "error").Inc()
			s.log.WithError(err).Warn("handler returned error, closing reply channel without a payload")
			_ = s.disp.Dispatch(s.task, domain.OpChannelClose, [6]uint64{uint64(req.ReplyTo)})
			continue
		}
		requestsTotal.WithLabelValues(s.name, "ok").Inc()
		if sres := s.disp.ChannelSend(s.task, req.ReplyTo, payload, handles); !sres.OK() {
			s.log.WithError(sres.Error).Warn("failed to send reply")
		}
		_ = s.disp.Dispatch(s.task, domain.OpChannelClose, [6]uint64{uint64(req.ReplyTo)})
	}
}

// Name returns the assign-registry name this server is bound to.
func (s *Server) Name() string { return s.name }

// Close unregisters the service and releases its channel and poll set.
func (s *Server) Close() error {
	_ = s.disp.AssignRemove(s.name)
	_ = s.disp.Dispatch(s.task, domain.OpCapRevoke, [6]uint64{uint64(s.recvHandle)})
	_ = s.disp.Dispatch(s.task, domain.OpCapRevoke, [6]uint64{uint64(s.pollHandle)})
	return nil
}
