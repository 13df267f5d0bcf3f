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

// Network protocol (netd). Message type numbers and the socket-status/
// address-family/socket-type enumerations are grounded directly on
// original_source/os/user/servers/netd/net_protocol.hpp, which (like
// fs_protocol.hpp) documents constants but not concrete struct layouts;
// the structs below follow the same {type, request_id, ...} shape as
// blkd/fsd, sized for what each operation needs.

const (
	NetSocketCreate  uint32 = 1
	NetSocketConnect uint32 = 2
	NetSocketBind    uint32 = 3
	NetSocketListen  uint32 = 4
	NetSocketAccept  uint32 = 5
	NetSocketSend    uint32 = 6
	NetSocketRecv    uint32 = 7
	NetSocketClose   uint32 = 8
	NetSocketShutdown uint32 = 9
	NetSocketStatus  uint32 = 10
	NetDNSResolve    uint32 = 20
	NetPing          uint32 = 40
	NetStats         uint32 = 41
	NetInfo          uint32 = 42
	NetSubscribeEvents uint32 = 43

	NetSocketCreateReply   uint32 = 0x81
	NetSocketConnectReply  uint32 = 0x82
	NetSocketBindReply     uint32 = 0x83
	NetSocketListenReply   uint32 = 0x84
	NetSocketAcceptReply   uint32 = 0x85
	NetSocketSendReply     uint32 = 0x86
	NetSocketRecvReply     uint32 = 0x87
	NetSocketCloseReply    uint32 = 0x88
	NetSocketShutdownReply uint32 = 0x89
	NetSocketStatusReply   uint32 = 0x8A
	NetDNSResolveReply     uint32 = 0xA0
	NetPingReply           uint32 = 0xC0
	NetStatsReply          uint32 = 0xC1
	NetInfoReply           uint32 = 0xC2
	NetSubscribeEventsReply uint32 = 0xC3
)

// Socket status flags (NET_SOCKET_STATUS).
const (
	SockReadable uint32 = 1 << 0
	SockWritable uint32 = 1 << 1
	SockEOF      uint32 = 1 << 2
)

// AddressFamily mirrors net_protocol.hpp's AddressFamily.
type AddressFamily uint16

const AFInet AddressFamily = 2

// SocketType mirrors net_protocol.hpp's SocketType.
type SocketType uint16

const (
	SockStream SocketType = 1
	SockDgram  SocketType = 2
)

// SockAddr is the fixed IPv4 address shape every socket operation below
// embeds (family is always AFInet in this protocol).
type SockAddr struct {
	Family AddressFamily
	Port   uint16
	Addr   [4]byte
}

func (a SockAddr) encodeInto(buf []byte) {
	Order.PutUint16(buf[0:2], uint16(a.Family))
	Order.PutUint16(buf[2:4], a.Port)
	copy(buf[4:8], a.Addr[:])
}

func decodeSockAddr(buf []byte) SockAddr {
	var a SockAddr
	a.Family = AddressFamily(Order.Uint16(buf[0:2]))
	a.Port = Order.Uint16(buf[2:4])
	copy(a.Addr[:], buf[4:8])
	return a
}

const sockAddrLen = 8

// NetGenericReply acks a request that carries no payload beyond
// success/failure (bind, listen, close).
type NetGenericReply struct {
	Header
	Status int32
}

func (r NetGenericReply) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	return buf
}

func DecodeNetGenericReply(buf []byte) NetGenericReply {
	return NetGenericReply{Header: GetHeader(buf), Status: int32(Order.Uint32(buf[8:12]))}
}

// NetSocketCreateRequest is NET_SOCKET_CREATE.
type NetSocketCreateRequest struct {
	Header
	Type SocketType
}

func (r NetSocketCreateRequest) Encode() []byte {
	buf := make([]byte, 10)
	PutHeader(buf, r.Header)
	Order.PutUint16(buf[8:10], uint16(r.Type))
	return buf
}

func DecodeNetSocketCreateRequest(buf []byte) NetSocketCreateRequest {
	return NetSocketCreateRequest{Header: GetHeader(buf), Type: SocketType(Order.Uint16(buf[8:10]))}
}

// NetSocketCreateReplyMsg is NET_SOCKET_CREATE_REPLY.
type NetSocketCreateReplyMsg struct {
	Header
	Status int32
	Socket uint32
}

func (r NetSocketCreateReplyMsg) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.Socket)
	return buf
}

func DecodeNetSocketCreateReplyMsg(buf []byte) NetSocketCreateReplyMsg {
	return NetSocketCreateReplyMsg{
		Header: GetHeader(buf),
		Status: int32(Order.Uint32(buf[8:12])),
		Socket: Order.Uint32(buf[12:16]),
	}
}

// NetSocketConnectRequest is NET_SOCKET_CONNECT.
type NetSocketConnectRequest struct {
	Header
	Socket uint32
	Addr   SockAddr
}

func (r NetSocketConnectRequest) Encode() []byte {
	buf := make([]byte, 12+sockAddrLen)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	r.Addr.encodeInto(buf[12:])
	return buf
}

func DecodeNetSocketConnectRequest(buf []byte) NetSocketConnectRequest {
	return NetSocketConnectRequest{
		Header: GetHeader(buf),
		Socket: Order.Uint32(buf[8:12]),
		Addr:   decodeSockAddr(buf[12:]),
	}
}

// NetSocketBindRequest is NET_SOCKET_BIND.
type NetSocketBindRequest struct {
	Header
	Socket uint32
	Addr   SockAddr
}

func (r NetSocketBindRequest) Encode() []byte {
	buf := make([]byte, 12+sockAddrLen)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	r.Addr.encodeInto(buf[12:])
	return buf
}

func DecodeNetSocketBindRequest(buf []byte) NetSocketBindRequest {
	return NetSocketBindRequest{
		Header: GetHeader(buf),
		Socket: Order.Uint32(buf[8:12]),
		Addr:   decodeSockAddr(buf[12:]),
	}
}

// NetSocketListenRequest is NET_SOCKET_LISTEN.
type NetSocketListenRequest struct {
	Header
	Socket  uint32
	Backlog uint32
}

func (r NetSocketListenRequest) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	Order.PutUint32(buf[12:16], r.Backlog)
	return buf
}

func DecodeNetSocketListenRequest(buf []byte) NetSocketListenRequest {
	return NetSocketListenRequest{
		Header:  GetHeader(buf),
		Socket:  Order.Uint32(buf[8:12]),
		Backlog: Order.Uint32(buf[12:16]),
	}
}

// NetSocketAcceptRequest is NET_SOCKET_ACCEPT.
type NetSocketAcceptRequest struct {
	Header
	Socket uint32
}

func (r NetSocketAcceptRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	return buf
}

func DecodeNetSocketAcceptRequest(buf []byte) NetSocketAcceptRequest {
	return NetSocketAcceptRequest{Header: GetHeader(buf), Socket: Order.Uint32(buf[8:12])}
}

// NetSocketAcceptReplyMsg is NET_SOCKET_ACCEPT_REPLY. The accepted
// connection becomes a new socket under the server's next socket id; the
// reply carries neither that id nor a transferred handle.
type NetSocketAcceptReplyMsg struct {
	Header
	Status       int32
	AcceptedAddr SockAddr
}

func (r NetSocketAcceptReplyMsg) Encode() []byte {
	buf := make([]byte, 12+sockAddrLen)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	r.AcceptedAddr.encodeInto(buf[12:])
	return buf
}

func DecodeNetSocketAcceptReplyMsg(buf []byte) NetSocketAcceptReplyMsg {
	return NetSocketAcceptReplyMsg{
		Header:       GetHeader(buf),
		Status:       int32(Order.Uint32(buf[8:12])),
		AcceptedAddr: decodeSockAddr(buf[12:]),
	}
}

// NetSocketSendRequest is NET_SOCKET_SEND. Data is inline, capped by the
// overall MaxPayload budget shared with every other protocol in this
// package.
type NetSocketSendRequest struct {
	Header
	Socket uint32
	Data   []byte
}

func (r NetSocketSendRequest) Encode() []byte {
	buf := make([]byte, 12+len(r.Data))
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	copy(buf[12:], r.Data)
	return buf
}

func DecodeNetSocketSendRequest(buf []byte) NetSocketSendRequest {
	data := make([]byte, len(buf)-12)
	copy(data, buf[12:])
	return NetSocketSendRequest{Header: GetHeader(buf), Socket: Order.Uint32(buf[8:12]), Data: data}
}

// NetSocketSendReplyMsg is NET_SOCKET_SEND_REPLY.
type NetSocketSendReplyMsg struct {
	Header
	Status int32
	Sent   uint32
}

func (r NetSocketSendReplyMsg) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.Sent)
	return buf
}

func DecodeNetSocketSendReplyMsg(buf []byte) NetSocketSendReplyMsg {
	return NetSocketSendReplyMsg{
		Header: GetHeader(buf),
		Status: int32(Order.Uint32(buf[8:12])),
		Sent:   Order.Uint32(buf[12:16]),
	}
}

// NetSocketRecvRequest is NET_SOCKET_RECV.
type NetSocketRecvRequest struct {
	Header
	Socket     uint32
	MaxLength uint32
}

func (r NetSocketRecvRequest) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	Order.PutUint32(buf[12:16], r.MaxLength)
	return buf
}

func DecodeNetSocketRecvRequest(buf []byte) NetSocketRecvRequest {
	return NetSocketRecvRequest{
		Header:    GetHeader(buf),
		Socket:    Order.Uint32(buf[8:12]),
		MaxLength: Order.Uint32(buf[12:16]),
	}
}

// NetSocketRecvReplyMsg is NET_SOCKET_RECV_REPLY.
type NetSocketRecvReplyMsg struct {
	Header
	Status int32
	Data   []byte
}

func (r NetSocketRecvReplyMsg) Encode() []byte {
	buf := make([]byte, 12+len(r.Data))
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	copy(buf[12:], r.Data)
	return buf
}

func DecodeNetSocketRecvReplyMsg(buf []byte) NetSocketRecvReplyMsg {
	data := make([]byte, len(buf)-12)
	copy(data, buf[12:])
	return NetSocketRecvReplyMsg{Header: GetHeader(buf), Status: int32(Order.Uint32(buf[8:12])), Data: data}
}

// NetSocketCloseRequest is NET_SOCKET_CLOSE.
type NetSocketCloseRequest struct {
	Header
	Socket uint32
}

func (r NetSocketCloseRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	return buf
}

func DecodeNetSocketCloseRequest(buf []byte) NetSocketCloseRequest {
	return NetSocketCloseRequest{Header: GetHeader(buf), Socket: Order.Uint32(buf[8:12])}
}

// NetSocketStatusRequest is NET_SOCKET_STATUS.
type NetSocketStatusRequest struct {
	Header
	Socket uint32
}

func (r NetSocketStatusRequest) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], r.Socket)
	return buf
}

func DecodeNetSocketStatusRequest(buf []byte) NetSocketStatusRequest {
	return NetSocketStatusRequest{Header: GetHeader(buf), Socket: Order.Uint32(buf[8:12])}
}

// NetSocketStatusReplyMsg is NET_SOCKET_STATUS_REPLY; Flags is a bitmask
// of SockReadable/SockWritable/SockEOF.
type NetSocketStatusReplyMsg struct {
	Header
	Status int32
	Flags  uint32
}

func (r NetSocketStatusReplyMsg) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.Flags)
	return buf
}

func DecodeNetSocketStatusReplyMsg(buf []byte) NetSocketStatusReplyMsg {
	return NetSocketStatusReplyMsg{
		Header: GetHeader(buf),
		Status: int32(Order.Uint32(buf[8:12])),
		Flags:  Order.Uint32(buf[12:16]),
	}
}

// NetDNSResolveRequest is NET_DNS_RESOLVE.
type NetDNSResolveRequest struct {
	Header
	Hostname string // up to MaxInlineData bytes, zero-padded
}

func (r NetDNSResolveRequest) Encode() []byte {
	buf := make([]byte, 8+MaxInlineData)
	PutHeader(buf, r.Header)
	copy(buf[8:8+MaxInlineData], r.Hostname)
	return buf
}

func DecodeNetDNSResolveRequest(buf []byte) NetDNSResolveRequest {
	hostBytes := buf[8:]
	if n := indexByte(hostBytes, 0); n >= 0 {
		hostBytes = hostBytes[:n]
	}
	return NetDNSResolveRequest{Header: GetHeader(buf), Hostname: string(hostBytes)}
}

// NetDNSResolveReplyMsg is NET_DNS_RESOLVE_REPLY.
type NetDNSResolveReplyMsg struct {
	Header
	Status int32
	Addr   [4]byte
}

func (r NetDNSResolveReplyMsg) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	copy(buf[12:16], r.Addr[:])
	return buf
}

func DecodeNetDNSResolveReplyMsg(buf []byte) NetDNSResolveReplyMsg {
	var a [4]byte
	copy(a[:], buf[12:16])
	return NetDNSResolveReplyMsg{Header: GetHeader(buf), Status: int32(Order.Uint32(buf[8:12])), Addr: a}
}
