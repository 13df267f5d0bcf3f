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

package blkd

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splanck/viperos/assign"
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/kernel"
	"github.com/splanck/viperos/proto"
	"github.com/splanck/viperos/server"
)

func TestStoreWriteThenReadRoundTrips(t *testing.T) {
	store, err := Open(afero.NewMemMapFs(), "/dev/blk0", 16, false)
	require.NoError(t, err)

	data := make([]byte, proto.SectorSize*2)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, store.writeSectors(4, data))

	got, err := store.readSectors(4, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadOnlyStoreRejectsWrite(t *testing.T) {
	store, err := Open(afero.NewMemMapFs(), "/dev/blk0", 16, true)
	require.NoError(t, err)
	err = store.writeSectors(0, make([]byte, proto.SectorSize))
	assert.ErrorIs(t, err, domain.Permission)
}

func TestBlkInfoReplyRoundTripsReadOnly(t *testing.T) {
	reply := proto.BlkInfoReply{
		Header:       proto.Header{Type: proto.BlkInfoReply, RequestID: 1},
		Status:       0,
		SectorSize:   proto.SectorSize,
		TotalSectors: 4096,
		MaxRequest:   proto.MaxSectorsPerRequest,
		ReadOnly:     true,
	}
	got := proto.DecodeBlkInfoReply(reply.Encode())
	assert.True(t, got.ReadOnly)

	reply.ReadOnly = false
	got = proto.DecodeBlkInfoReply(reply.Encode())
	assert.False(t, got.ReadOnly)
}

func TestServiceReportsReadOnlyOverIPC(t *testing.T) {
	store, err := Open(afero.NewMemMapFs(), "/dev/blk0", 16, true)
	require.NoError(t, err)

	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)
	ready := make(chan struct{})

	_, err = tasks.Spawn(func(t domain.Task) {
		svc := NewService(store, nil)
		close(ready)
		_ = svc.Serve(disp, t)
	})
	require.NoError(t, err)
	<-ready

	clientTask, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)
	client := server.NewClient(disp, clientTask, "BLKD")

	infoReq := proto.BlkInfoRequest{Header: proto.Header{Type: proto.BlkInfo, RequestID: 1}}
	reply, _, err := client.Call(infoReq.Encode(), nil, 64)
	require.NoError(t, err)
	ir := proto.DecodeBlkInfoReply(reply)
	assert.Equal(t, int32(0), ir.Status)
	assert.True(t, ir.ReadOnly)
}

func TestServiceServesReadWriteOverIPC(t *testing.T) {
	store, err := Open(afero.NewMemMapFs(), "/dev/blk0", 16, false)
	require.NoError(t, err)

	disp := kernel.NewDispatcher(assign.New())
	tasks := kernel.NewService(nil)
	ready := make(chan struct{})

	_, err = tasks.Spawn(func(t domain.Task) {
		svc := NewService(store, nil)
		close(ready)
		_ = svc.Serve(disp, t)
	})
	require.NoError(t, err)
	<-ready

	clientTask, err := tasks.Spawn(func(t domain.Task) {})
	require.NoError(t, err)
	client := server.NewClient(disp, clientTask, "BLKD")

	writeData := make([]byte, proto.SectorSize)
	for i := range writeData {
		writeData[i] = 0xAB
	}
	shmHandle, err := server.SendBulk(disp, clientTask, writeData)
	require.NoError(t, err)

	writeReq := proto.BlkWriteRequest{
		Header: proto.Header{Type: proto.BlkWrite, RequestID: 1},
		Sector: 0,
		Count:  1,
	}
	reply, _, err := client.Call(writeReq.Encode(), []domain.Handle{shmHandle}, 64)
	require.NoError(t, err)
	wr := proto.DecodeBlkWriteReply(reply)
	assert.Equal(t, int32(0), wr.Status)
	assert.EqualValues(t, proto.SectorSize, wr.BytesWritten)

	readReq := proto.BlkReadRequest{
		Header: proto.Header{Type: proto.BlkRead, RequestID: 2},
		Sector: 0,
		Count:  1,
	}
	reply, handles, err := client.Call(readReq.Encode(), nil, 64)
	require.NoError(t, err)
	rr := proto.DecodeBlkReadReply(reply)
	require.Equal(t, int32(0), rr.Status)
	require.Len(t, handles, 1)

	got, err := server.RecvBulk(clientTask, handles[0], int(rr.BytesRead))
	require.NoError(t, err)
	assert.Equal(t, writeData, got)
}
