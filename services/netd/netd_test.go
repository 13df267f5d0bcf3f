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

package netd

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

func newTestNetd(t *testing.T) (*kernel.Dispatcher, domain.Task) {
	t.Helper()
	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)
	ready := make(chan struct{})

	_, err := tasks.Spawn(func(task domain.Task) {
		svc := NewService(nil)
		close(ready)
		_ = svc.Serve(disp, task)
	})
	require.NoError(t, err)
	<-ready

	clientTask, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)
	return disp, clientTask
}

func loopbackAddr(port uint16) proto.SockAddr {
	return proto.SockAddr{Family: proto.AFInet, Port: port, Addr: [4]byte{127, 0, 0, 1}}
}

func createSocket(t *testing.T, client *server.Client, reqID uint32, kind proto.SocketType) uint32 {
	t.Helper()
	req := proto.NetSocketCreateRequest{Header: proto.Header{Type: proto.NetSocketCreate, RequestID: reqID}, Type: kind}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	cr := proto.DecodeNetSocketCreateReplyMsg(reply)
	require.Equal(t, int32(0), cr.Status)
	require.NotZero(t, cr.Socket)
	return cr.Socket
}

func TestSocketCreateAssignsDistinctIDs(t *testing.T) {
	disp, task := newTestNetd(t)
	client := server.NewClient(disp, task, "NETD")

	first := createSocket(t, client, 1, proto.SockStream)
	second := createSocket(t, client, 2, proto.SockStream)
	assert.NotEqual(t, first, second)
}

func TestTCPBindListenConnectAcceptSendRecv(t *testing.T) {
	disp, task := newTestNetd(t)
	client := server.NewClient(disp, task, "NETD")

	listener := createSocket(t, client, 1, proto.SockStream)
	const port = 18273

	bindReq := proto.NetSocketBindRequest{Header: proto.Header{Type: proto.NetSocketBind, RequestID: 2}, Socket: listener, Addr: loopbackAddr(port)}
	reply, _, err := client.Call(bindReq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeNetGenericReply(reply).Status)

	listenReq := proto.NetSocketListenRequest{Header: proto.Header{Type: proto.NetSocketListen, RequestID: 3}, Socket: listener, Backlog: 4}
	reply, _, err = client.Call(listenReq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeNetGenericReply(reply).Status)

	dialer := createSocket(t, client, 4, proto.SockStream)
	connectReq := proto.NetSocketConnectRequest{Header: proto.Header{Type: proto.NetSocketConnect, RequestID: 5}, Socket: dialer, Addr: loopbackAddr(port)}
	reply, _, err = client.Call(connectReq.Encode(), nil, 64)
	require.NoError(t, err)
	require.Equal(t, int32(0), proto.DecodeNetSocketCreateReplyMsg(reply).Status)

	// The dialer's connect() only returns once the local OS has completed
	// the three-way handshake; acceptLoop still needs a scheduling turn to
	// drain it onto the pending channel.
	time.Sleep(50 * time.Millisecond)

	acceptReq := proto.NetSocketAcceptRequest{Header: proto.Header{Type: proto.NetSocketAccept, RequestID: 6}, Socket: listener}
	reply, _, err = client.Call(acceptReq.Encode(), nil, 64)
	require.NoError(t, err)
	ar := proto.DecodeNetSocketAcceptReplyMsg(reply)
	require.Equal(t, int32(0), ar.Status)

	sendReq := proto.NetSocketSendRequest{Header: proto.Header{Type: proto.NetSocketSend, RequestID: 7}, Socket: dialer, Data: []byte("ping")}
	reply, _, err = client.Call(sendReq.Encode(), nil, 64)
	require.NoError(t, err)
	sr := proto.DecodeNetSocketSendReplyMsg(reply)
	require.Equal(t, int32(0), sr.Status)
	assert.EqualValues(t, len("ping"), sr.Sent)

	// The NetSocketAccept case installs the accepted connection as a fresh socket,
	// numbered after every socket created so far.
	accepted := dialer + 1

	recvReq := proto.NetSocketRecvRequest{Header: proto.Header{Type: proto.NetSocketRecv, RequestID: 8}, Socket: accepted, MaxLength: 64}
	reply, _, err = client.Call(recvReq.Encode(), nil, 16+proto.MaxInlineData)
	require.NoError(t, err)
	rr := proto.DecodeNetSocketRecvReplyMsg(reply)
	require.Equal(t, int32(0), rr.Status)
	assert.Equal(t, "ping", string(rr.Data))

	closeReq := proto.NetSocketCloseRequest{Header: proto.Header{Type: proto.NetSocketClose, RequestID: 9}, Socket: dialer}
	reply, _, err = client.Call(closeReq.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(0), proto.DecodeNetGenericReply(reply).Status)
}

func TestSocketStatusUnknownSocketIsInvalidHandle(t *testing.T) {
	disp, task := newTestNetd(t)
	client := server.NewClient(disp, task, "NETD")

	req := proto.NetSocketStatusRequest{Header: proto.Header{Type: proto.NetSocketStatus, RequestID: 1}, Socket: 999}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	assert.Equal(t, int32(domain.InvalidHandle), proto.DecodeNetSocketStatusReplyMsg(reply).Status)
}

func TestSocketStatusReportsReadableWritable(t *testing.T) {
	disp, task := newTestNetd(t)
	client := server.NewClient(disp, task, "NETD")

	sock := createSocket(t, client, 1, proto.SockStream)
	req := proto.NetSocketStatusRequest{Header: proto.Header{Type: proto.NetSocketStatus, RequestID: 2}, Socket: sock}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	sr := proto.DecodeNetSocketStatusReplyMsg(reply)
	require.Equal(t, int32(0), sr.Status)
	assert.NotZero(t, sr.Flags&proto.SockReadable)
	assert.NotZero(t, sr.Flags&proto.SockWritable)
}

func TestDNSResolveLocalhost(t *testing.T) {
	disp, task := newTestNetd(t)
	client := server.NewClient(disp, task, "NETD")

	req := proto.NetDNSResolveRequest{Header: proto.Header{Type: proto.NetDNSResolve, RequestID: 1}, Hostname: "localhost"}
	reply, _, err := client.Call(req.Encode(), nil, 64)
	require.NoError(t, err)
	rr := proto.DecodeNetDNSResolveReplyMsg(reply)
	require.Equal(t, int32(0), rr.Status)
	assert.Equal(t, [4]byte{127, 0, 0, 1}, rr.Addr)
}
