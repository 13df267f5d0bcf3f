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
	"sync"
	"sync/atomic"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
)

// Client is a lazy-connecting handle to a named service, grounded on
// blk_client.hpp's BlkClient: connect() on first use via assign_get,
// reuse the resulting channel handle for every subsequent call.
type Client struct {
	disp *kernel.Dispatcher
	task domain.Task
	name string

	mu            sync.Mutex
	serviceHandle domain.Handle

	nextRequestID uint32
}

// NewClient returns a client bound to name; no IPC happens until the
// first Call.
func NewClient(disp *kernel.Dispatcher, task domain.Task, name string) *Client {
	return &Client{disp: disp, task: task, name: name, nextRequestID: 1}
}

// NextRequestID returns a fresh, monotonically increasing request_id for
// populating a protocol Header, mirroring BlkClient's next_request_id_.
func (c *Client) NextRequestID() uint32 {
	return atomic.AddUint32(&c.nextRequestID, 1) - 1
}

func (c *Client) connect() (domain.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serviceHandle != domain.NoHandle {
		return c.serviceHandle, nil
	}
	res := c.disp.AssignGet(c.task, c.name)
	if !res.OK() {
		return domain.NoHandle, res.Error
	}
	c.serviceHandle = domain.Handle(res.Val0)
	return c.serviceHandle, nil
}

// Call sends payload and handles to the service and blocks for the
// matching reply, creating a private reply channel per call the way
// BlkClient does for every one of its request methods. replyBufLen
// should be sized to the expected reply struct (or domain.MaxPayload if
// unsure).
func (c *Client) Call(payload []byte, handles []domain.Handle, replyBufLen int) ([]byte, []domain.Handle, error) {
	svc, err := c.connect()
	if err != nil {
		return nil, nil, err
	}

	cres := c.disp.Dispatch(c.task, domain.OpChannelCreate, [6]uint64{})
	if !cres.OK() {
		return nil, nil, cres.Error
	}
	replySend := domain.Handle(cres.Val0)
	replyRecv := domain.Handle(cres.Val1)

	pres := c.disp.Dispatch(c.task, domain.OpPollCreate, [6]uint64{})
	if !pres.OK() {
		_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(replySend)})
		_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(replyRecv)})
		return nil, nil, pres.Error
	}
	pollHandle := domain.Handle(pres.Val0)
	defer c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(pollHandle)})

	if ares := c.disp.Dispatch(c.task, domain.OpPollAdd, [6]uint64{uint64(pollHandle), uint64(replyRecv), uint64(domain.PollChannelRead)}); !ares.OK() {
		_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(replyRecv)})
		return nil, nil, ares.Error
	}

	allHandles := append([]domain.Handle{replySend}, handles...)
	if sres := c.disp.ChannelSend(c.task, svc, payload, allHandles); !sres.OK() {
		// ChannelSend only revokes the sender's handles once Send itself
		// succeeds, so on failure replySend and every caller-supplied
		// handle (e.g. bulk shm from SendBulk) are still live in our own
		// table and must be released here, not just replyRecv.
		_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(replyRecv)})
		for _, h := range allHandles {
			_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(h)})
		}
		return nil, nil, sres.Error
	}

	var events [1]domain.PollEvent
	if _, sres := c.disp.PollWait(c.task, pollHandle, events[:], -1); !sres.OK() {
		_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(replyRecv)})
		return nil, nil, sres.Error
	}

	rres, sres := c.disp.ChannelRecv(c.task, replyRecv, replyBufLen, domain.MaxHandlesPerMsg)
	_ = c.disp.Dispatch(c.task, domain.OpCapRevoke, [6]uint64{uint64(replyRecv)})
	if !sres.OK() {
		return nil, nil, sres.Error
	}
	return rres.Payload, rres.Handles, nil
}
