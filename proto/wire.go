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

// Package proto defines the wire message shapes for ViperOS's canonical
// servers (blkd, fsd, netd, inputd, displayd), grounded directly on
// original_source's *_protocol.hpp headers: every request is
// {type, request_id, ...}, every reply is {type|0x80, request_id,
// status, ...}, and every struct below mirrors one of those headers
// field-for-field so a server built against this package speaks the
// exact protocol the original kernel documents.
package proto

import "encoding/binary"

// ReplyBit is OR'd into a request's type to form its reply's type
// (original_source consistently reserves the high bit for this).
const ReplyBit = 0x80

// Order is the byte order every wire struct below encodes/decodes with.
// original_source never specifies one explicitly (single-architecture
// kernel); little-endian is picked to match golang.org/x/sys/unix's
// native ordering on every platform Go targets here.
var Order = binary.LittleEndian

// Header is the {type, request_id} prefix common to every request and
// reply message across every protocol in this package.
type Header struct {
	Type      uint32
	RequestID uint32
}

// PutHeader writes h at the start of buf, which must be at least 8 bytes.
func PutHeader(buf []byte, h Header) {
	Order.PutUint32(buf[0:4], h.Type)
	Order.PutUint32(buf[4:8], h.RequestID)
}

// GetHeader reads a Header from the start of buf, which must be at least
// 8 bytes.
func GetHeader(buf []byte) Header {
	return Header{
		Type:      Order.Uint32(buf[0:4]),
		RequestID: Order.Uint32(buf[4:8]),
	}
}
