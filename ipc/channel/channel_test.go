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

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/domain"
)

func TestSendRecvFIFOOrder(t *testing.T) {
	send, recv := New(domain.DefaultChannelDepth)

	require.NoError(t, send.Send(domain.Message{Payload: []byte("one")}))
	require.NoError(t, send.Send(domain.Message{Payload: []byte("two")}))

	m1, err := recv.Recv(64, 4)
	require.NoError(t, err)
	assert.Equal(t, "one", string(m1.Payload))

	m2, err := recv.Recv(64, 4)
	require.NoError(t, err)
	assert.Equal(t, "two", string(m2.Payload))
}

func TestRecvEmptyWouldBlock(t *testing.T) {
	_, recv := New(domain.DefaultChannelDepth)
	_, err := recv.Recv(64, 4)
	assert.Equal(t, domain.WouldBlock, err)
}

func TestSendFullWouldBlock(t *testing.T) {
	send, _ := New(1)
	require.NoError(t, send.Send(domain.Message{Payload: []byte("a")}))
	err := send.Send(domain.Message{Payload: []byte("b")})
	assert.Equal(t, domain.WouldBlock, err)
}

func TestCloseSendThenRecvDrainsThenCloses(t *testing.T) {
	send, recv := New(domain.DefaultChannelDepth)
	require.NoError(t, send.Send(domain.Message{Payload: []byte("last")}))
	require.NoError(t, send.Close())

	msg, err := recv.Recv(64, 4)
	require.NoError(t, err)
	assert.Equal(t, "last", string(msg.Payload))

	_, err = recv.Recv(64, 4)
	assert.Equal(t, domain.ChannelClosed, err)
}

func TestCloseRecvMakesSendFail(t *testing.T) {
	send, recv := New(domain.DefaultChannelDepth)
	require.NoError(t, recv.Close())

	err := send.Send(domain.Message{Payload: []byte("x")})
	assert.Equal(t, domain.ChannelClosed, err)
}

func TestOversizedPayloadRejected(t *testing.T) {
	send, _ := New(domain.DefaultChannelDepth)
	big := make([]byte, domain.MaxPayload+1)
	err := send.Send(domain.Message{Payload: big})
	assert.Equal(t, domain.MsgTooLarge, err)
}

func TestRecvBufferTooSmallPreservesMessage(t *testing.T) {
	send, recv := New(domain.DefaultChannelDepth)
	require.NoError(t, send.Send(domain.Message{Payload: []byte("0123456789")}))

	_, err := recv.Recv(4, 4)
	assert.Equal(t, domain.MsgTooLarge, err)

	// Message must still be there, and retrievable with a big-enough buffer.
	msg, err := recv.Recv(64, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(msg.Payload))
}

func TestHandleTransferCarriesCaps(t *testing.T) {
	send, recv := New(domain.DefaultChannelDepth)

	cap1 := domain.TransferredCap{Kind: domain.KindChannel, Rights: domain.RightRead}
	require.NoError(t, send.Send(domain.Message{Payload: []byte("hi"), Caps: []domain.TransferredCap{cap1}}))

	msg, err := recv.Recv(64, 4)
	require.NoError(t, err)
	require.Len(t, msg.Caps, 1)
	assert.Equal(t, domain.KindChannel, msg.Caps[0].Kind)
}

func TestTooManyHandlesRejected(t *testing.T) {
	send, _ := New(domain.DefaultChannelDepth)
	caps := make([]domain.TransferredCap, domain.MaxHandlesPerMsg+1)
	err := send.Send(domain.Message{Caps: caps})
	assert.Equal(t, domain.InvalidArg, err)
}

func TestReadyReflectsQueueState(t *testing.T) {
	send, recv := New(1)

	sendSrc := send.(domain.Source)
	recvSrc := recv.(domain.Source)

	assert.Equal(t, domain.PollChannelWrite, sendSrc.Ready(domain.PollChannelWrite))
	assert.Equal(t, domain.EventMask(0), recvSrc.Ready(domain.PollChannelRead))

	require.NoError(t, send.Send(domain.Message{Payload: []byte("x")}))

	assert.Equal(t, domain.EventMask(0), sendSrc.Ready(domain.PollChannelWrite))
	assert.Equal(t, domain.PollChannelRead, recvSrc.Ready(domain.PollChannelRead))
}
