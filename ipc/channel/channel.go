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

// Package channel implements the bidirectional, handle-transferring IPC
// channel described in spec.md §4.2: a bounded FIFO of messages shared
// between a send and a recv endpoint, each independently closable.
//
// The split between a small internal/external lock pair and a backpointer
// from each endpoint to shared queue state follows state/container.go's
// "container" struct in the teacher repo.
package channel

import (
	"sync"

	"github.com/splanck/viperos/domain"
)

// fifo is the shared state behind a channel's two endpoints.
type fifo struct {
	mu   sync.Mutex
	cond *sync.Cond

	depth int
	queue []domain.Message

	sendClosed bool
	recvClosed bool

	// onRecvReady is invoked (if set, with mu held) after every Send and
	// when the send side closes; onSendReady after every Recv and when the
	// recv side closes. A poll set watching either endpoint uses them to
	// re-check readiness without polling this fifo directly.
	onSendReady func()
	onRecvReady func()
}

func newFifo(depth int) *fifo {
	if depth <= 0 {
		depth = domain.DefaultChannelDepth
	}
	f := &fifo{depth: depth}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// send endpoint.
type sendEnd struct {
	f *fifo
}

// recv endpoint.
type recvEnd struct {
	f *fifo
}

var _ domain.Endpoint = (*sendEnd)(nil)
var _ domain.Endpoint = (*recvEnd)(nil)
var _ domain.Source = (*sendEnd)(nil)
var _ domain.Source = (*recvEnd)(nil)

// New creates a channel pair with the given FIFO depth; depth <= 0 uses
// domain.DefaultChannelDepth.
func New(depth int) (send domain.Endpoint, recv domain.Endpoint) {
	f := newFifo(depth)
	return &sendEnd{f: f}, &recvEnd{f: f}
}

func (s *sendEnd) Kind() domain.Kind { return domain.KindChannel }
func (r *recvEnd) Kind() domain.Kind { return domain.KindChannel }

// OnReady lets a poll-set source registration attach a wake callback to a
// send endpoint, fired whenever a Recv frees queue space or the peer
// closes.
func (s *sendEnd) OnReady(cb func()) {
	s.f.mu.Lock()
	s.f.onSendReady = cb
	s.f.mu.Unlock()
}

// OnReady attaches a wake callback to a recv endpoint, fired whenever the
// queue becomes non-empty or the peer closes.
func (r *recvEnd) OnReady(cb func()) {
	r.f.mu.Lock()
	r.f.onRecvReady = cb
	r.f.mu.Unlock()
}

func (s *sendEnd) Send(msg domain.Message) error {
	if len(msg.Payload) > domain.MaxPayload {
		return domain.MsgTooLarge
	}
	if len(msg.Caps) > domain.MaxHandlesPerMsg {
		return domain.InvalidArg
	}

	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendClosed {
		return domain.HandleClosed
	}
	if f.recvClosed {
		return domain.ChannelClosed
	}
	if len(f.queue) >= f.depth {
		return domain.WouldBlock
	}

	payload := make([]byte, len(msg.Payload))
	copy(payload, msg.Payload)
	caps := make([]domain.TransferredCap, len(msg.Caps))
	copy(caps, msg.Caps)

	f.queue = append(f.queue, domain.Message{Payload: payload, Caps: caps})
	f.cond.Broadcast()
	if f.onRecvReady != nil {
		f.onRecvReady()
	}
	return nil
}

func (s *sendEnd) Recv(int, int) (domain.Message, error) {
	return domain.Message{}, domain.Permission
}

func (s *sendEnd) Close() error {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendClosed {
		return nil
	}
	f.sendClosed = true
	f.cond.Broadcast()
	if f.onRecvReady != nil {
		f.onRecvReady()
	}
	return nil
}

func (s *sendEnd) Closed() bool {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return s.f.sendClosed
}

// Ready reports readiness for a send endpoint: writable whenever there is
// queue headroom or the peer has already closed (so the caller observes
// ChannelClosed promptly rather than blocking forever).
func (s *sendEnd) Ready(want domain.EventMask) domain.EventMask {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()

	var got domain.EventMask
	if want&domain.PollChannelWrite != 0 && (len(f.queue) < f.depth || f.recvClosed) {
		got |= domain.PollChannelWrite
	}
	return got
}

func (r *recvEnd) Send(domain.Message) error {
	return domain.Permission
}

func (r *recvEnd) Recv(bufLen, handleCap int) (domain.Message, error) {
	f := r.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recvClosed {
		return domain.Message{}, domain.HandleClosed
	}
	if len(f.queue) == 0 {
		if f.sendClosed {
			return domain.Message{}, domain.ChannelClosed
		}
		return domain.Message{}, domain.WouldBlock
	}

	msg := f.queue[0]
	if len(msg.Payload) > bufLen {
		return domain.Message{}, domain.MsgTooLarge
	}
	if len(msg.Caps) > handleCap {
		return domain.Message{}, domain.MsgTooLarge
	}

	f.queue = f.queue[1:]
	if f.onSendReady != nil {
		f.onSendReady()
	}
	return msg, nil
}

func (r *recvEnd) Close() error {
	f := r.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvClosed {
		return nil
	}
	f.recvClosed = true
	f.cond.Broadcast()
	if f.onSendReady != nil {
		f.onSendReady()
	}
	return nil
}

func (r *recvEnd) Closed() bool {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	return r.f.recvClosed
}

// Ready reports readiness for a recv endpoint: readable whenever the queue
// is non-empty or the peer has closed (so ChannelClosed surfaces promptly).
func (r *recvEnd) Ready(want domain.EventMask) domain.EventMask {
	f := r.f
	f.mu.Lock()
	defer f.mu.Unlock()

	var got domain.EventMask
	if want&domain.PollChannelRead != 0 && (len(f.queue) > 0 || f.sendClosed) {
		got |= domain.PollChannelRead
	}
	return got
}
