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

// Package netd implements the network server: BSD-socket-shaped request/
// reply operations backed by real Go net.Conn/net.Listener values. Wire
// shapes are proto.NetSocketXxx, whose message type numbers and enums are
// grounded on net_protocol.hpp (see DESIGN.md); the request/reply struct
// layouts are this repository's own, since the header defines only
// constants.
package netd

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

type socket struct {
	kind     proto.SocketType
	conn     net.Conn
	packet   net.PacketConn
	listener net.Listener
	pending  chan net.Conn
}

// Service is the network server state: every live socket, keyed by a
// server-local id echoed on subsequent calls, the same convention fsd
// uses for file descriptors.
type Service struct {
	mu      sync.Mutex
	nextID  uint32
	sockets map[uint32]*socket
	log     logrus.FieldLogger
}

// NewService returns an empty netd service.
func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{nextID: 1, sockets: make(map[uint32]*socket), log: log}
}

// Serve registers "NETD" and blocks handling requests.
func (s *Service) Serve(disp *kernel.Dispatcher, task domain.Task) error {
	srv, err := server.Listen(disp, task, "NETD", s.log)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(func(req server.Request) ([]byte, []domain.Handle, error) {
		return s.handle(req)
	})
}

func addrString(a proto.SockAddr) string {
	ip := net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3])
	return fmt.Sprintf("%s:%d", ip.String(), a.Port)
}

func netKind(t proto.SocketType) string {
	if t == proto.SockDgram {
		return "udp4"
	}
	return "tcp4"
}

func (s *Service) handle(req server.Request) ([]byte, []domain.Handle, error) {
	if len(req.Payload) < 8 {
		return nil, nil, domain.InvalidArg
	}
	hdr := proto.GetHeader(req.Payload)
	switch hdr.Type {
	case proto.NetSocketCreate:
		r := proto.DecodeNetSocketCreateRequest(req.Payload)
		s.mu.Lock()
		id := s.nextID
		s.nextID++
		s.sockets[id] = &socket{kind: r.Type}
		s.mu.Unlock()
		return proto.NetSocketCreateReplyMsg{Header: hdr, Status: 0, Socket: id}.Encode(), nil, nil

	case proto.NetSocketConnect:
		r := proto.DecodeNetSocketConnectRequest(req.Payload)
		sock, ok := s.get(r.Socket)
		if !ok {
			return proto.NetSocketCreateReplyMsg{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		conn, err := net.DialTimeout(netKind(sock.kind), addrString(r.Addr), 5*time.Second)
		if err != nil {
			return proto.NetSocketCreateReplyMsg{Header: hdr, Status: int32(domain.Connection)}.Encode(), nil, nil
		}
		s.mu.Lock()
		sock.conn = conn
		s.mu.Unlock()
		return proto.NetSocketCreateReplyMsg{Header: hdr, Status: 0}.Encode(), nil, nil

	case proto.NetSocketBind:
		r := proto.DecodeNetSocketBindRequest(req.Payload)
		sock, ok := s.get(r.Socket)
		if !ok {
			return proto.NetGenericReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		if sock.kind == proto.SockDgram {
			conn, err := net.ListenPacket("udp4", addrString(r.Addr))
			if err != nil {
				return proto.NetGenericReply{Header: hdr, Status: int32(domain.Connection)}.Encode(), nil, nil
			}
			s.mu.Lock()
			sock.packet = conn
			s.mu.Unlock()
			return proto.NetGenericReply{Header: hdr, Status: 0}.Encode(), nil, nil
		}
		ln, err := net.Listen("tcp4", addrString(r.Addr))
		if err != nil {
			return proto.NetGenericReply{Header: hdr, Status: int32(domain.Connection)}.Encode(), nil, nil
		}
		s.mu.Lock()
		sock.listener = ln
		s.mu.Unlock()
		return proto.NetGenericReply{Header: hdr, Status: 0}.Encode(), nil, nil

	case proto.NetSocketListen:
		r := proto.DecodeNetSocketListenRequest(req.Payload)
		sock, ok := s.get(r.Socket)
		if !ok || sock.listener == nil {
			return proto.NetGenericReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		sock.pending = make(chan net.Conn, r.Backlog)
		go s.acceptLoop(sock)
		return proto.NetGenericReply{Header: hdr, Status: 0}.Encode(), nil, nil

	case proto.NetSocketAccept:
		r := proto.DecodeNetSocketAcceptRequest(req.Payload)
		sock, ok := s.get(r.Socket)
		if !ok || sock.pending == nil {
			return proto.NetSocketAcceptReplyMsg{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		conn, ok := <-sock.pending
		if !ok {
			return proto.NetSocketAcceptReplyMsg{Header: hdr, Status: int32(domain.ChannelClosed)}.Encode(), nil, nil
		}
		s.mu.Lock()
		id := s.nextID
		s.nextID++
		s.sockets[id] = &socket{kind: sock.kind, conn: conn}
		s.mu.Unlock()
		var addr proto.SockAddr
		if ra, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			addr.Family = proto.AFInet
			addr.Port = uint16(ra.Port)
			copy(addr.Addr[:], ra.IP.To4())
		}
		reply := proto.NetSocketAcceptReplyMsg{Header: hdr, Status: 0, AcceptedAddr: addr}
		return reply.Encode(), nil, nil

	case proto.NetSocketSend:
		r := proto.DecodeNetSocketSendRequest(req.Payload)
		sock, ok := s.get(r.Socket)
		if !ok || sock.conn == nil {
			return proto.NetSocketSendReplyMsg{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		n, err := sock.conn.Write(r.Data)
		if err != nil {
			return proto.NetSocketSendReplyMsg{Header: hdr, Status: int32(domain.Io)}.Encode(), nil, nil
		}
		return proto.NetSocketSendReplyMsg{Header: hdr, Status: 0, Sent: uint32(n)}.Encode(), nil, nil

	case proto.NetSocketRecv:
		r := proto.DecodeNetSocketRecvRequest(req.Payload)
		sock, ok := s.get(r.Socket)
		if !ok || sock.conn == nil {
			return proto.NetSocketRecvReplyMsg{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		max := r.MaxLength
		if max > proto.MaxInlineData {
			max = proto.MaxInlineData
		}
		buf := make([]byte, max)
		_ = sock.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := sock.conn.Read(buf)
		if err != nil {
			return proto.NetSocketRecvReplyMsg{Header: hdr, Status: int32(domain.WouldBlock)}.Encode(), nil, nil
		}
		return proto.NetSocketRecvReplyMsg{Header: hdr, Status: 0, Data: buf[:n]}.Encode(), nil, nil

	case proto.NetSocketClose:
		r := proto.DecodeNetSocketCloseRequest(req.Payload)
		s.mu.Lock()
		sock, ok := s.sockets[r.Socket]
		delete(s.sockets, r.Socket)
		s.mu.Unlock()
		if ok {
			if sock.conn != nil {
				sock.conn.Close()
			}
			if sock.listener != nil {
				sock.listener.Close()
			}
			if sock.packet != nil {
				sock.packet.Close()
			}
		}
		return proto.NetGenericReply{Header: hdr, Status: 0}.Encode(), nil, nil

	case proto.NetSocketStatus:
		r := proto.DecodeNetSocketStatusRequest(req.Payload)
		_, ok := s.get(r.Socket)
		if !ok {
			return proto.NetSocketStatusReplyMsg{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
		}
		return proto.NetSocketStatusReplyMsg{Header: hdr, Status: 0, Flags: proto.SockReadable | proto.SockWritable}.Encode(), nil, nil

	case proto.NetDNSResolve:
		r := proto.DecodeNetDNSResolveRequest(req.Payload)
		ips, err := net.LookupIP(r.Hostname)
		if err != nil || len(ips) == 0 {
			return proto.NetDNSResolveReplyMsg{Header: hdr, Status: int32(domain.NotFound)}.Encode(), nil, nil
		}
		var addr [4]byte
		for _, ip := range ips {
			if v4 := ip.To4(); v4 != nil {
				copy(addr[:], v4)
				break
			}
		}
		return proto.NetDNSResolveReplyMsg{Header: hdr, Status: 0, Addr: addr}.Encode(), nil, nil

	default:
		return nil, nil, domain.NotSupported
	}
}

func (s *Service) get(id uint32) (*socket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sock, ok := s.sockets[id]
	return sock, ok
}

func (s *Service) acceptLoop(sock *socket) {
	for {
		conn, err := sock.listener.Accept()
		if err != nil {
			close(sock.pending)
			return
		}
		sock.pending <- conn
	}
}
