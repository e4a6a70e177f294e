// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package dfu

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves an in-memory byte slice as a Source.
type fakeSource struct {
	data []byte
}

func (f *fakeSource) Len() int64 { return int64(len(f.data)) }

func (f *fakeSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// fakeTransport replays a scripted queue of raw response frames, one per
// RecvFrame call, and records every OBJECT_WRITE payload it is handed.
type fakeTransport struct {
	chunk  int
	queue  [][]byte
	pos    int
	writes [][]byte
	lastOp OpCode
}

func (f *fakeTransport) SendFrame(op OpCode, payload []byte) error {
	if op == OpObjectWrite {
		cp := append([]byte{}, payload...)
		f.writes = append(f.writes, cp)
		return nil
	}
	f.lastOp = op
	return nil
}

func (f *fakeTransport) RecvFrame(timeout time.Duration) ([]byte, error) {
	if f.pos >= len(f.queue) {
		return nil, errors.New("fakeTransport: response queue exhausted")
	}
	frame := f.queue[f.pos]
	f.pos++
	return frame, nil
}

func (f *fakeTransport) EnterDFU() error         { return nil }
func (f *fakeTransport) SetMTU() (int, error)    { return f.chunk, nil }
func (f *fakeTransport) ChunkSize() int          { return f.chunk }

func successFrame(op OpCode, payload []byte) []byte {
	return append([]byte{byte(OpResponse), byte(op), byte(ResultSuccess)}, payload...)
}

func selectFrame(maxSize, offset, crc uint32) []byte {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], maxSize)
	binary.LittleEndian.PutUint32(payload[4:8], offset)
	binary.LittleEndian.PutUint32(payload[8:12], crc)
	return successFrame(OpObjectSelect, payload)
}

func crcFrame(offset, crc uint32) []byte {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], offset)
	binary.LittleEndian.PutUint32(payload[4:8], crc)
	return successFrame(OpCRCGet, payload)
}

func createFrame() []byte {
	return successFrame(OpObjectCreate, nil)
}

func executeFrame() []byte {
	return successFrame(OpObjectExecute, nil)
}

func fwTooOldFrame() []byte {
	return []byte{byte(OpResponse), byte(OpObjectExecute), byte(ResultExtError), byte(ExtErrorFWVersionFailure)}
}

func newTestSession(t *fakeTransport) *session {
	return newSession(t, DefaultTimeouts())
}

func TestObjectTransferFreshUpload(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	src := &fakeSource{data: data}

	// three chunks of size 4: [0:4) [4:8) [8:10)
	ft := &fakeTransport{
		chunk: 4,
		queue: [][]byte{
			selectFrame(4, 0, 0),
			createFrame(),
			crcFrame(4, crc32.ChecksumIEEE(data[0:4])),
			executeFrame(),
			createFrame(),
			crcFrame(8, crc32.ChecksumIEEE(data[0:8])),
			executeFrame(),
			createFrame(),
			crcFrame(10, crc32.ChecksumIEEE(data[0:10])),
			executeFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, ft.writes, 3)
	assert.Equal(t, data[0:4], ft.writes[0])
	assert.Equal(t, data[4:8], ft.writes[1])
	assert.Equal(t, data[8:10], ft.writes[2])
}

func TestObjectTransferAlreadyDone(t *testing.T) {
	data := []byte("firmware-bytes")
	src := &fakeSource{data: data}
	crc := crc32.ChecksumIEEE(data)

	ft := &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			selectFrame(64, uint32(len(data)), crc),
			executeFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Empty(t, ft.writes, "already-accepted object must not be rewritten")
}

func TestObjectTransferResumesMatchingPartial(t *testing.T) {
	data := make([]byte, 12)
	for i := range data {
		data[i] = byte(100 + i)
	}
	src := &fakeSource{data: data}

	// device already has 6 bytes of an 8-byte chunk; offset=6, max=8, remain=6
	ft := &fakeTransport{
		chunk: 8,
		queue: [][]byte{
			selectFrame(8, 6, crc32.ChecksumIEEE(data[0:6])),
			// finish the in-progress chunk [6:8)
			executeFrame(),
			// fresh chunk [8:12)
			createFrame(),
			crcFrame(12, crc32.ChecksumIEEE(data[0:12])),
			executeFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, ft.writes, 2)
	assert.Equal(t, data[6:8], ft.writes[0])
	assert.Equal(t, data[8:12], ft.writes[1])
}

func TestObjectTransferRewindsOnCorruptPartial(t *testing.T) {
	data := make([]byte, 12)
	for i := range data {
		data[i] = byte(200 + i)
	}
	src := &fakeSource{data: data}

	// device claims offset=10 (remain=2 within an 8-byte max chunk window,
	// 10%8=2) but its reported CRC does not match the local prefix CRC, so
	// the engine must rewind to the chunk boundary (offset 8) and resend.
	ft := &fakeTransport{
		chunk: 8,
		queue: [][]byte{
			selectFrame(8, 10, 0xFFFFFFFF),
			// rewind to offset 8, resend [8:12) as a fresh chunk
			createFrame(),
			crcFrame(12, crc32.ChecksumIEEE(data[0:12])),
			executeFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, ft.writes, 1)
	assert.Equal(t, data[8:12], ft.writes[0])
}

func TestObjectTransferFirmwareTooOld(t *testing.T) {
	data := []byte("image")
	src := &fakeSource{data: data}

	ft := &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(data)), crc32.ChecksumIEEE(data)),
			fwTooOldFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirmwareTooOld, outcome)
}

func TestObjectTransferCRCMismatchAborts(t *testing.T) {
	data := []byte("image-bytes")
	src := &fakeSource{data: data}

	ft := &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(data)), 0xBADC0DE),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	_, err := obj.transfer()
	require.Error(t, err)
	assert.IsType(t, ErrProtocol{}, err)
}

func TestObjectTransferEmptyObject(t *testing.T) {
	src := &fakeSource{data: nil}

	ft := &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			selectFrame(64, 0, 0),
			executeFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeInit, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Empty(t, ft.writes)
}

func TestObjectTransferExactlyOneChunk(t *testing.T) {
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i * 3)
	}
	src := &fakeSource{data: data}

	ft := &fakeTransport{
		chunk: 16,
		queue: [][]byte{
			selectFrame(16, 0, 0),
			createFrame(),
			crcFrame(16, crc32.ChecksumIEEE(data)),
			executeFrame(),
		},
	}

	obj := newObject(newTestSession(ft), ObjectTypeData, src, nil)
	outcome, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, ft.writes, 1)
	assert.Equal(t, data, ft.writes[0])
}

func TestObjectTransferReportsProgress(t *testing.T) {
	data := make([]byte, 10)
	src := &fakeSource{data: data}

	ft := &fakeTransport{
		chunk: 4,
		queue: [][]byte{
			selectFrame(4, 0, 0),
			createFrame(),
			crcFrame(4, crc32.ChecksumIEEE(data[0:4])),
			executeFrame(),
			createFrame(),
			crcFrame(8, crc32.ChecksumIEEE(data[0:8])),
			executeFrame(),
			createFrame(),
			crcFrame(10, crc32.ChecksumIEEE(data[0:10])),
			executeFrame(),
		},
	}

	var seen []int64
	obj := newObject(newTestSession(ft), ObjectTypeData, src, func(written, total int64) {
		seen = append(seen, written)
		assert.Equal(t, int64(10), total)
	})
	_, err := obj.transfer()
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 8, 10}, seen)
}
