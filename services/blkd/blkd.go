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

// Package blkd implements the block device server: a flat sector store
// backed by an afero filesystem, served over the request/reply framework
// in package server. Wire shapes are proto.BlkRead/Write/Flush/Info,
// taken straight from blk_protocol.hpp (see DESIGN.md).
package blkd

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

// Store is the backing device: a single flat file opened through afero,
// generalizing sysio.IOService's single-file-per-container access layer
// in the teacher to one shared block device file.
type Store struct {
	mu           sync.Mutex
	fs           afero.Fs
	path         string
	file         afero.File
	totalSectors uint64
	readOnly     bool
}

// Open opens (creating if missing) a backing file on fs sized to
// totalSectors*proto.SectorSize bytes.
func Open(fs afero.Fs, path string, totalSectors uint64, readOnly bool) (*Store, error) {
	size := int64(totalSectors) * proto.SectorSize

	if exists, err := afero.Exists(fs, path); err != nil {
		return nil, err
	} else if !exists {
		f, err := fs.Create(path)
		if err != nil {
			return nil, err
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
	}

	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	file, err := fs.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}

	return &Store{fs: fs, path: path, file: file, totalSectors: totalSectors, readOnly: readOnly}, nil
}

func (s *Store) readSectors(sector uint64, count uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, int(count)*proto.SectorSize)
	_, err := s.file.ReadAt(buf, int64(sector)*proto.SectorSize)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Store) writeSectors(sector uint64, data []byte) error {
	if s.readOnly {
		return domain.Permission
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.file.WriteAt(data, int64(sector)*proto.SectorSize)
	return err
}

func (s *Store) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

func (s *Store) info() (sectorSize uint32, total uint64, maxReq uint32, readOnly bool) {
	return proto.SectorSize, s.totalSectors, proto.MaxSectorsPerRequest, s.readOnly
}

// Service wires a Store behind the "BLKD" assign name and serves
// requests until the service channel is closed.
type Service struct {
	store *Store
	log   logrus.FieldLogger
}

// NewService returns a blkd service over store, following the
// NewXxxService constructor convention every XxxService in the teacher
// repo uses.
func NewService(store *Store, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, log: log}
}

// Serve registers "BLKD" and blocks handling requests.
func (s *Service) Serve(disp *kernel.Dispatcher, task domain.Task) error {
	srv, err := server.Listen(disp, task, "BLKD", s.log)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(func(req server.Request) ([]byte, []domain.Handle, error) {
		return s.handle(disp, task, req)
	})
}

func (s *Service) handle(disp *kernel.Dispatcher, task domain.Task, req server.Request) ([]byte, []domain.Handle, error) {
	if len(req.Payload) < 8 {
		return nil, nil, domain.InvalidArg
	}
	hdr := proto.GetHeader(req.Payload)
	switch hdr.Type {
	case proto.BlkRead:
		r := proto.DecodeBlkReadRequest(req.Payload)
		if r.Count > proto.MaxSectorsPerRequest {
			reply := proto.BlkReadReply{Header: hdr, Status: int32(domain.InvalidArg)}
			return reply.Encode(), nil, nil
		}
		data, err := s.store.readSectors(r.Sector, r.Count)
		if err != nil {
			reply := proto.BlkReadReply{Header: hdr, Status: int32(domain.Io)}
			return reply.Encode(), nil, nil
		}
		shmHandle, err := server.SendBulk(disp, task, data)
		if err != nil {
			reply := proto.BlkReadReply{Header: hdr, Status: int32(domain.AsVError(err))}
			return reply.Encode(), nil, nil
		}
		reply := proto.BlkReadReply{Header: hdr, Status: 0, BytesRead: uint32(len(data))}
		var handles []domain.Handle
		if shmHandle != domain.NoHandle {
			handles = []domain.Handle{shmHandle}
		}
		return reply.Encode(), handles, nil

	case proto.BlkWrite:
		r := proto.DecodeBlkWriteRequest(req.Payload)
		if len(req.Handles) == 0 {
			reply := proto.BlkWriteReply{Header: hdr, Status: int32(domain.InvalidArg)}
			return reply.Encode(), nil, nil
		}
		data, err := server.RecvBulk(task, req.Handles[0], int(r.Count)*proto.SectorSize)
		if err != nil {
			reply := proto.BlkWriteReply{Header: hdr, Status: int32(domain.AsVError(err))}
			return reply.Encode(), nil, nil
		}
		if err := s.store.writeSectors(r.Sector, data); err != nil {
			reply := proto.BlkWriteReply{Header: hdr, Status: int32(domain.AsVError(err))}
			return reply.Encode(), nil, nil
		}
		reply := proto.BlkWriteReply{Header: hdr, Status: 0, BytesWritten: uint32(len(data))}
		return reply.Encode(), nil, nil

	case proto.BlkFlush:
		err := s.store.flush()
		reply := proto.BlkFlushReply{Header: hdr, Status: int32(domain.AsVError(err))}
		return reply.Encode(), nil, nil

	case proto.BlkInfo:
		sectorSize, total, maxReq, readOnly := s.store.info()
		reply := proto.BlkInfoReply{
			Header:       hdr,
			Status:       0,
			SectorSize:   sectorSize,
			TotalSectors: total,
			MaxRequest:   maxReq,
			ReadOnly:     readOnly,
		}
		return reply.Encode(), nil, nil

	default:
		return nil, nil, domain.NotSupported
	}
}
