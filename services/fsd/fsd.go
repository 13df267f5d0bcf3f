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

// Package fsd implements the filesystem server: an afero-backed VFS
// exposed over the request/reply framework in package server. Wire
// shapes are proto.FsXxx, whose type numbers and enums are grounded on
// fs_protocol.hpp (see DESIGN.md); the struct layouts themselves are
// this repository's own, since the header defines no structs.
package fsd

import (
	"io"
	"os"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

type openFile struct {
	path string
	file afero.File
}

// Service is the filesystem server state: a backing afero.Fs plus an
// open-file table indexed both by fd (the wire-level handle a client
// holds) and by path (an immutable radix tree, generalizing
// handlerDB.go's handler-lookup tree from container-path dispatch to
// open-file-by-path lookup). handleOpen consults byPath to reject
// O_CREAT|O_EXCL opens against a path this service already has open,
// cheaply and without touching the backing fs.
type Service struct {
	mu     sync.Mutex
	fs     afero.Fs
	nextFd uint32
	open   map[uint32]*openFile
	byPath *iradix.Tree
	log    logrus.FieldLogger
}

// NewService returns an fsd service rooted at fs (typically
// afero.NewMemMapFs() for a fresh in-memory root, or afero.NewOsFs() to
// pass through to the host).
func NewService(fs afero.Fs, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{fs: fs, nextFd: 1, open: make(map[uint32]*openFile), byPath: iradix.New(), log: log}
}

// Serve registers "FSD" and blocks handling requests.
func (s *Service) Serve(disp *kernel.Dispatcher, task domain.Task) error {
	srv, err := server.Listen(disp, task, "FSD", s.log)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(func(req server.Request) ([]byte, []domain.Handle, error) {
		return s.handle(disp, task, req)
	})
}

func osFlags(flags uint32) int {
	f := os.O_RDONLY
	switch flags & 0x3 {
	case proto.OWronly:
		f = os.O_WRONLY
	case proto.ORdwr:
		f = os.O_RDWR
	}
	if flags&proto.OCreat != 0 {
		f |= os.O_CREATE
	}
	if flags&proto.OExcl != 0 {
		f |= os.O_EXCL
	}
	if flags&proto.OTrunc != 0 {
		f |= os.O_TRUNC
	}
	if flags&proto.OAppend != 0 {
		f |= os.O_APPEND
	}
	return f
}

func (s *Service) handle(disp *kernel.Dispatcher, task domain.Task, req server.Request) ([]byte, []domain.Handle, error) {
	if len(req.Payload) < 8 {
		return nil, nil, domain.InvalidArg
	}
	hdr := proto.GetHeader(req.Payload)
	switch hdr.Type {
	case proto.FsOpen:
		return s.handleOpen(hdr, req.Payload), nil, nil
	case proto.FsClose:
		return s.handleClose(hdr, req.Payload), nil, nil
	case proto.FsRead:
		return s.handleRead(disp, task, hdr, req.Payload)
	case proto.FsWrite:
		return s.handleWrite(disp, task, hdr, req.Payload, req.Handles)
	case proto.FsSeek:
		return s.handleSeek(hdr, req.Payload), nil, nil
	case proto.FsStat:
		return s.handleStat(hdr, req.Payload), nil, nil
	case proto.FsFsync:
		return s.handleFsync(hdr, req.Payload), nil, nil
	case proto.FsReaddir:
		return s.handleReaddir(hdr, req.Payload), nil, nil
	case proto.FsUnlink:
		return s.handleUnlink(hdr, req.Payload), nil, nil
	case proto.FsMkdir:
		return s.handleMkdir(hdr, req.Payload), nil, nil
	default:
		return nil, nil, domain.NotSupported
	}
}

func (s *Service) handleOpen(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsOpenRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Flags&proto.OCreat != 0 && r.Flags&proto.OExcl != 0 {
		if _, ok := s.byPath.Get([]byte(r.Path)); ok {
			return proto.FsOpenReply{Header: hdr, Status: int32(domain.AlreadyExists)}.Encode()
		}
	}

	f, err := s.fs.OpenFile(r.Path, osFlags(r.Flags), os.FileMode(r.Mode|0o644))
	if err != nil {
		return proto.FsOpenReply{Header: hdr, Status: int32(toVError(err))}.Encode()
	}
	fd := s.nextFd
	s.nextFd++
	s.open[fd] = &openFile{path: r.Path, file: f}
	s.byPath, _, _ = s.byPath.Insert([]byte(r.Path), fd)
	return proto.FsOpenReply{Header: hdr, Status: 0, Fd: fd}.Encode()
}

func (s *Service) handleClose(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsCloseRequest(payload)
	s.mu.Lock()
	defer s.mu.Unlock()

	of, ok := s.open[r.Fd]
	if !ok {
		return proto.FsCloseReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode()
	}
	err := of.file.Close()
	delete(s.open, r.Fd)
	s.byPath, _, _ = s.byPath.Delete([]byte(of.path))
	return proto.FsCloseReply{Header: hdr, Status: int32(toVError(err))}.Encode()
}

func (s *Service) handleRead(disp *kernel.Dispatcher, task domain.Task, hdr proto.Header, payload []byte) ([]byte, []domain.Handle, error) {
	r := proto.DecodeFsReadRequest(payload)
	s.mu.Lock()
	of, ok := s.open[r.Fd]
	s.mu.Unlock()
	if !ok {
		return proto.FsReadReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
	}

	buf := make([]byte, r.Length)
	n, err := of.file.ReadAt(buf, int64(r.Offset))
	if err != nil && err != io.EOF {
		return proto.FsReadReply{Header: hdr, Status: int32(toVError(err))}.Encode(), nil, nil
	}
	buf = buf[:n]

	if n <= proto.MaxInlineData {
		reply := proto.FsReadReply{Header: hdr, Status: 0, BytesRead: uint32(n), Data: buf}
		return reply.Encode(), nil, nil
	}
	h, err := server.SendBulk(disp, task, buf)
	if err != nil {
		return proto.FsReadReply{Header: hdr, Status: int32(domain.AsVError(err))}.Encode(), nil, nil
	}
	reply := proto.FsReadReply{Header: hdr, Status: 0, BytesRead: uint32(n)}
	return reply.Encode(), []domain.Handle{h}, nil
}

func (s *Service) handleWrite(disp *kernel.Dispatcher, task domain.Task, hdr proto.Header, payload []byte, handles []domain.Handle) ([]byte, []domain.Handle, error) {
	r := proto.DecodeFsWriteRequest(payload)
	s.mu.Lock()
	of, ok := s.open[r.Fd]
	s.mu.Unlock()
	if !ok {
		return proto.FsWriteReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode(), nil, nil
	}

	// A write larger than MaxInlineData arrives with no inline Data and a
	// shm handle instead, mirroring FsRead's split.
	if len(r.Data) == 0 && len(handles) > 0 && r.Length > 0 {
		data, err := server.RecvBulk(task, handles[0], int(r.Length))
		if err != nil {
			return proto.FsWriteReply{Header: hdr, Status: int32(domain.AsVError(err))}.Encode(), nil, nil
		}
		n, err := of.file.WriteAt(data, int64(r.Offset))
		if err != nil {
			return proto.FsWriteReply{Header: hdr, Status: int32(toVError(err))}.Encode(), nil, nil
		}
		return proto.FsWriteReply{Header: hdr, Status: 0, BytesWritten: uint32(n)}.Encode(), nil, nil
	}

	n, err := of.file.WriteAt(r.Data, int64(r.Offset))
	if err != nil {
		return proto.FsWriteReply{Header: hdr, Status: int32(toVError(err))}.Encode(), nil, nil
	}
	return proto.FsWriteReply{Header: hdr, Status: 0, BytesWritten: uint32(n)}.Encode(), nil, nil
}

func (s *Service) handleSeek(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsSeekRequest(payload)
	s.mu.Lock()
	of, ok := s.open[r.Fd]
	s.mu.Unlock()
	if !ok {
		return proto.FsSeekReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode()
	}
	whence := io.SeekStart
	switch r.Whence {
	case proto.SeekCur:
		whence = io.SeekCurrent
	case proto.SeekEnd:
		whence = io.SeekEnd
	}
	newOff, err := of.file.Seek(r.Offset, whence)
	if err != nil {
		return proto.FsSeekReply{Header: hdr, Status: int32(toVError(err))}.Encode()
	}
	return proto.FsSeekReply{Header: hdr, Status: 0, NewOffset: newOff}.Encode()
}

func (s *Service) handleStat(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsStatRequest(payload)
	info, err := s.fs.Stat(r.Path)
	if err != nil {
		return proto.FsStatReply{Header: hdr, Status: int32(toVError(err))}.Encode()
	}
	ft := proto.FileTypeFile
	if info.IsDir() {
		ft = proto.FileTypeDir
	}
	si := proto.StatInfo{Size: uint64(info.Size()), Type: ft, Mode: uint32(info.Mode().Perm()), Mtime: info.ModTime().Unix()}
	return proto.FsStatReply{Header: hdr, Status: 0, Info: si}.Encode()
}

func (s *Service) handleFsync(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsCloseRequest(payload) // FS_FSYNC shares FsCloseRequest's {fd} shape
	s.mu.Lock()
	of, ok := s.open[r.Fd]
	s.mu.Unlock()
	if !ok {
		return proto.FsCloseReply{Header: hdr, Status: int32(domain.InvalidHandle)}.Encode()
	}
	err := of.file.Sync()
	return proto.FsCloseReply{Header: hdr, Status: int32(toVError(err))}.Encode()
}

func (s *Service) handleReaddir(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsReaddirRequest(payload)
	entries, err := afero.ReadDir(s.fs, r.Path)
	if err != nil {
		return proto.FsReaddirReplyMsg{Header: hdr, Status: int32(toVError(err))}.Encode()
	}
	reply := proto.FsReaddirReplyMsg{Header: hdr, Status: 0}
	for _, e := range entries {
		ft := proto.FileTypeFile
		if e.IsDir() {
			ft = proto.FileTypeDir
		}
		reply.Entries = append(reply.Entries, proto.DirEntry{Name: e.Name(), Type: ft})
	}
	return reply.Encode()
}

func (s *Service) handleUnlink(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsUnlinkRequest(payload)
	err := s.fs.Remove(r.Path)
	return proto.FsUnlinkReply{Header: hdr, Status: int32(toVError(err))}.Encode()
}

func (s *Service) handleMkdir(hdr proto.Header, payload []byte) []byte {
	r := proto.DecodeFsMkdirRequest(payload)
	err := s.fs.Mkdir(r.Path, os.FileMode(r.Mode|0o755))
	return proto.FsMkdirReply{Header: hdr, Status: int32(toVError(err))}.Encode()
}

func toVError(err error) domain.VError {
	if err == nil {
		return 0
	}
	if os.IsNotExist(err) {
		return domain.NotFound
	}
	if os.IsExist(err) {
		return domain.AlreadyExists
	}
	if os.IsPermission(err) {
		return domain.Permission
	}
	return domain.Io
}
