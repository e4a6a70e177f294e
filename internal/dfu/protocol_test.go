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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestEncodeObjectCreate(t *testing.T) {
	op, payload := Request{Op: OpObjectCreate, CreateType: ObjectTypeData, CreateSize: 1024}.Encode()
	assert.Equal(t, OpObjectCreate, op)
	require.Len(t, payload, 5)
	assert.Equal(t, byte(ObjectTypeData), payload[0])
	assert.Equal(t, uint32(1024), binary.LittleEndian.Uint32(payload[1:]))
	assert.Equal(t, 1+len(payload), WireSize(op))
}

func TestRequestEncodeObjectSelect(t *testing.T) {
	op, payload := Request{Op: OpObjectSelect, SelectType: ObjectTypeInit}.Encode()
	assert.Equal(t, []byte{byte(ObjectTypeInit)}, payload)
	assert.Equal(t, 2, WireSize(op))
}

func TestRequestEncodePing(t *testing.T) {
	op, payload := Request{Op: OpPing, PingID: 42}.Encode()
	assert.Equal(t, []byte{42}, payload)
	assert.Equal(t, 2, WireSize(op))
}

func TestRequestEncodeObjectWriteIsVariableLength(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	op, payload := Request{Op: OpObjectWrite, WriteData: data}.Encode()
	assert.Equal(t, data, payload)
	assert.Equal(t, 0, WireSize(op))
}

func TestRequestEncodeReceiptNotifSet(t *testing.T) {
	op, payload := Request{Op: OpReceiptNotifSet, PRNTarget: 10}.Encode()
	require.Len(t, payload, 2)
	assert.Equal(t, uint16(10), binary.LittleEndian.Uint16(payload))
	assert.Equal(t, 3, WireSize(op))
}

func TestParseResponseRejectsWrongFirstByte(t *testing.T) {
	frame := []byte{0x00, byte(OpPing), byte(ResultSuccess), 1}
	_, err := ParseResponse(OpPing, frame)
	assert.Error(t, err)
}

func TestParseResponseRejectsEchoMismatch(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpMTUGet), byte(ResultSuccess), 0, 0}
	_, err := ParseResponse(OpPing, frame)
	assert.Error(t, err)
}

func TestParseResponseTooShort(t *testing.T) {
	_, err := ParseResponse(OpPing, []byte{byte(OpResponse), byte(OpPing)})
	assert.Error(t, err)
}

func TestParseResponseExtError(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpObjectExecute), byte(ResultExtError), byte(ExtErrorFWVersionFailure)}
	resp, err := ParseResponse(OpObjectExecute, frame)
	require.NoError(t, err)
	assert.Equal(t, ResultExtError, resp.Result)
	assert.Equal(t, ExtErrorFWVersionFailure, resp.ExtErr)
}

func TestParseResponseExtErrorTruncated(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpObjectExecute), byte(ResultExtError)}
	_, err := ParseResponse(OpObjectExecute, frame)
	assert.Error(t, err)
}

func TestParseResponseNonSuccessHasNoPayload(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpObjectCreate), byte(ResultInsufficientResources)}
	resp, err := ParseResponse(OpObjectCreate, frame)
	require.NoError(t, err)
	assert.Equal(t, ResultInsufficientResources, resp.Result)
}

func TestParseResponsePing(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpPing), byte(ResultSuccess), 7}
	resp, err := ParseResponse(OpPing, frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), resp.PingID)
}

func TestParseResponseMTUGet(t *testing.T) {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, 244)
	frame := append([]byte{byte(OpResponse), byte(OpMTUGet), byte(ResultSuccess)}, payload...)
	resp, err := ParseResponse(OpMTUGet, frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(244), resp.MTUSize)
}

func TestParseResponseMTUGetTruncated(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpMTUGet), byte(ResultSuccess), 1}
	_, err := ParseResponse(OpMTUGet, frame)
	assert.Error(t, err)
}

func TestParseResponseCRCGet(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], 512)
	binary.LittleEndian.PutUint32(payload[4:8], 0xDEADBEEF)
	frame := append([]byte{byte(OpResponse), byte(OpCRCGet), byte(ResultSuccess)}, payload...)
	resp, err := ParseResponse(OpCRCGet, frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(512), resp.CRC.Offset)
	assert.Equal(t, uint32(0xDEADBEEF), resp.CRC.CRC32)
}

func TestParseResponseObjectSelect(t *testing.T) {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], 4096)
	binary.LittleEndian.PutUint32(payload[4:8], 2048)
	binary.LittleEndian.PutUint32(payload[8:12], 0xCAFEBABE)
	frame := append([]byte{byte(OpResponse), byte(OpObjectSelect), byte(ResultSuccess)}, payload...)
	resp, err := ParseResponse(OpObjectSelect, frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), resp.Select.MaxSize)
	assert.Equal(t, uint32(2048), resp.Select.Offset)
	assert.Equal(t, uint32(0xCAFEBABE), resp.Select.CRC32)
}

func TestParseResponseObjectSelectTruncated(t *testing.T) {
	frame := []byte{byte(OpResponse), byte(OpObjectSelect), byte(ResultSuccess), 0, 0, 0, 0}
	_, err := ParseResponse(OpObjectSelect, frame)
	assert.Error(t, err)
}

func TestResultAndExtErrorStringsAreHumanReadable(t *testing.T) {
	assert.NotEqual(t, "unknown result code", ResultSuccess.String())
	assert.NotEqual(t, "unknown extended error", ExtErrorFWVersionFailure.String())
	assert.Equal(t, "unknown result code", Result(0x99).String())
	assert.Equal(t, "unknown extended error", ExtError(0x99).String())
}
