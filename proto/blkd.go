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

// Block device protocol (blkd), grounded on
// original_source/viperdos/user/servers/blkd/blk_protocol.hpp.

// Block message types.
const (
	BlkRead  uint32 = 1
	BlkWrite uint32 = 2
	BlkFlush uint32 = 3
	BlkInfo  uint32 = 4

	BlkReadReply  uint32 = BlkRead | ReplyBit
	BlkWriteReply uint32 = BlkWrite | ReplyBit
	BlkFlushReply uint32 = BlkFlush | ReplyBit
	BlkInfoReply  uint32 = BlkInfo | ReplyBit
)

// SectorSize and MaxSectorsPerRequest mirror blk_protocol.hpp's constants.
const (
	SectorSize           = 512
	MaxSectorsPerRequest = 128
)

// BlkReadRequest is BLK_READ: read Count sectors starting at Sector. The
// reply carries a shared-memory handle with the data (spec.md §4.8's
// "bulk SHM" convention).
type BlkReadRequest struct {
	Header
	Sector uint64
	Count  uint32
}

func (r BlkReadRequest) Encode() []byte {
	buf := make([]byte, 24)
	PutHeader(buf, r.Header)
	Order.PutUint64(buf[8:16], r.Sector)
	Order.PutUint32(buf[16:20], r.Count)
	return buf
}

func DecodeBlkReadRequest(buf []byte) BlkReadRequest {
	return BlkReadRequest{
		Header: GetHeader(buf),
		Sector: Order.Uint64(buf[8:16]),
		Count:  Order.Uint32(buf[16:20]),
	}
}

// BlkReadReply is BLK_READ_REPLY. BytesRead describes how much of the
// transferred shm region is valid data.
type BlkReadReply struct {
	Header
	Status    int32
	BytesRead uint32
}

func (r BlkReadReply) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.BytesRead)
	return buf
}

func DecodeBlkReadReply(buf []byte) BlkReadReply {
	return BlkReadReply{
		Header:    GetHeader(buf),
		Status:    int32(Order.Uint32(buf[8:12])),
		BytesRead: Order.Uint32(buf[12:16]),
	}
}

// BlkWriteRequest is BLK_WRITE: write Count sectors starting at Sector;
// the accompanying transferred handle[0] carries the shm region holding
// the data to write.
type BlkWriteRequest struct {
	Header
	Sector uint64
	Count  uint32
}

func (r BlkWriteRequest) Encode() []byte {
	buf := make([]byte, 24)
	PutHeader(buf, r.Header)
	Order.PutUint64(buf[8:16], r.Sector)
	Order.PutUint32(buf[16:20], r.Count)
	return buf
}

func DecodeBlkWriteRequest(buf []byte) BlkWriteRequest {
	return BlkWriteRequest{
		Header: GetHeader(buf),
		Sector: Order.Uint64(buf[8:16]),
		Count:  Order.Uint32(buf[16:20]),
	}
}

// BlkWriteReply is BLK_WRITE_REPLY.
type BlkWriteReply struct {
	Header
	Status       int32
	BytesWritten uint32
}

func (r BlkWriteReply) Encode() []byte {
	buf := make([]byte, 16)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.BytesWritten)
	return buf
}

func DecodeBlkWriteReply(buf []byte) BlkWriteReply {
	return BlkWriteReply{
		Header:       GetHeader(buf),
		Status:       int32(Order.Uint32(buf[8:12])),
		BytesWritten: Order.Uint32(buf[12:16]),
	}
}

// BlkFlushRequest is BLK_FLUSH.
type BlkFlushRequest struct {
	Header
}

func (r BlkFlushRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeBlkFlushRequest(buf []byte) BlkFlushRequest {
	return BlkFlushRequest{Header: GetHeader(buf)}
}

// BlkFlushReply is BLK_FLUSH_REPLY.
type BlkFlushReply struct {
	Header
	Status int32
}

func (r BlkFlushReply) Encode() []byte {
	buf := make([]byte, 12)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	return buf
}

func DecodeBlkFlushReply(buf []byte) BlkFlushReply {
	return BlkFlushReply{
		Header: GetHeader(buf),
		Status: int32(Order.Uint32(buf[8:12])),
	}
}

// BlkInfoRequest is BLK_INFO.
type BlkInfoRequest struct {
	Header
}

func (r BlkInfoRequest) Encode() []byte {
	buf := make([]byte, 8)
	PutHeader(buf, r.Header)
	return buf
}

func DecodeBlkInfoRequest(buf []byte) BlkInfoRequest {
	return BlkInfoRequest{Header: GetHeader(buf)}
}

// BlkInfoReply is BLK_INFO_REPLY.
type BlkInfoReply struct {
	Header
	Status       int32
	SectorSize   uint32
	TotalSectors uint64
	MaxRequest   uint32
	ReadOnly     bool
}

func (r BlkInfoReply) Encode() []byte {
	buf := make([]byte, 32)
	PutHeader(buf, r.Header)
	Order.PutUint32(buf[8:12], uint32(r.Status))
	Order.PutUint32(buf[12:16], r.SectorSize)
	Order.PutUint64(buf[16:24], r.TotalSectors)
	Order.PutUint32(buf[24:28], r.MaxRequest)
	if r.ReadOnly {
		buf[28] = 1
	}
	return buf
}

func DecodeBlkInfoReply(buf []byte) BlkInfoReply {
	return BlkInfoReply{
		Header:       GetHeader(buf),
		Status:       int32(Order.Uint32(buf[8:12])),
		SectorSize:   Order.Uint32(buf[12:16]),
		TotalSectors: Order.Uint64(buf[16:24]),
		MaxRequest:   Order.Uint32(buf[24:28]),
		ReadOnly:     buf[28] != 0,
	}
}
