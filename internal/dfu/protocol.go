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

// Package dfu implements the Nordic Secure DFU bootloader's request/response
// protocol: wire codec, response parsing, the chunked object transfer
// procedure and the upgrade driver that sequences it over either transport.
package dfu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// OpCode is the one-byte tag identifying a DFU request or the response
// envelope.
type OpCode byte

const (
	OpProtocolVersion  OpCode = 0x01
	OpObjectCreate     OpCode = 0x02
	OpReceiptNotifSet  OpCode = 0x03
	OpCRCGet           OpCode = 0x04
	OpObjectExecute    OpCode = 0x05
	OpObjectSelect     OpCode = 0x06
	OpMTUGet           OpCode = 0x07
	OpObjectWrite      OpCode = 0x08
	OpPing             OpCode = 0x09
	OpHardwareVersion  OpCode = 0x0A
	OpFirmwareVersion  OpCode = 0x0B
	OpAbort            OpCode = 0x0C
	OpResponse         OpCode = 0x60
	OpInvalid          OpCode = 0xFF
)

// ObjectType selects which of the bootloader's two object slots a
// create/select/write/execute cycle targets.
type ObjectType byte

const (
	ObjectTypeInit ObjectType = 1
	ObjectTypeData ObjectType = 2
)

// Result is the one-byte result code carried by every response.
type Result byte

const (
	ResultInvalid                Result = 0x00
	ResultSuccess                Result = 0x01
	ResultOpNotSupported          Result = 0x02
	ResultInvalidParameter        Result = 0x03
	ResultInsufficientResources   Result = 0x04
	ResultInvalidObject           Result = 0x05
	ResultUnsupportedType         Result = 0x07
	ResultOperationNotPermitted   Result = 0x08
	ResultOperationFailed         Result = 0x0A
	ResultExtError                Result = 0x0B
)

var resultStrings = map[Result]string{
	ResultInvalid:               "invalid opcode",
	ResultSuccess:                "operation successful",
	ResultOpNotSupported:         "opcode not supported",
	ResultInvalidParameter:       "missing or invalid parameter value",
	ResultInsufficientResources:  "not enough memory for the data object",
	ResultInvalidObject:          "data object does not match firmware/hardware requirements, bad signature, or parse failure",
	ResultUnsupportedType:        "not a valid object type for a create request",
	ResultOperationNotPermitted:  "the state of the DFU process does not allow this operation",
	ResultOperationFailed:        "operation failed",
	ResultExtError:               "extended error",
}

func (r Result) String() string {
	if s, ok := resultStrings[r]; ok {
		return s
	}
	return "unknown result code"
}

// ExtError is valid only when Result == ResultExtError.
type ExtError byte

const (
	ExtErrorNoError             ExtError = 0x00
	ExtErrorInvalidErrorCode    ExtError = 0x01
	ExtErrorWrongCommandFormat  ExtError = 0x02
	ExtErrorUnknownCommand      ExtError = 0x03
	ExtErrorInitCommandInvalid  ExtError = 0x04
	ExtErrorFWVersionFailure    ExtError = 0x05
	ExtErrorHWVersionFailure    ExtError = 0x06
	ExtErrorSDVersionFailure    ExtError = 0x07
	ExtErrorSignatureMissing    ExtError = 0x08
	ExtErrorWrongHashType       ExtError = 0x09
	ExtErrorHashFailed          ExtError = 0x0A
	ExtErrorWrongSignatureType  ExtError = 0x0B
	ExtErrorVerificationFailed  ExtError = 0x0C
	ExtErrorInsufficientSpace   ExtError = 0x0D
)

var extErrorStrings = map[ExtError]string{
	ExtErrorNoError:            "no extended error code has been set",
	ExtErrorInvalidErrorCode:   "invalid error code",
	ExtErrorWrongCommandFormat: "the format of the command was incorrect",
	ExtErrorUnknownCommand:     "the command was parsed but is not supported or unknown",
	ExtErrorInitCommandInvalid: "the init command is invalid or missing required fields",
	ExtErrorFWVersionFailure:   "the firmware version is too low",
	ExtErrorHWVersionFailure:   "the hardware version does not match the required hardware version",
	ExtErrorSDVersionFailure:   "the supported SoftDevice list does not contain the current SoftDevice",
	ExtErrorSignatureMissing:   "the init packet does not contain a signature",
	ExtErrorWrongHashType:      "the hash type is not supported by the bootloader",
	ExtErrorHashFailed:         "the hash of the firmware image could not be calculated",
	ExtErrorWrongSignatureType: "the signature type is unknown or unsupported",
	ExtErrorVerificationFailed: "the received firmware image hash does not match the init packet",
	ExtErrorInsufficientSpace:  "insufficient space on the device to hold the firmware",
}

func (e ExtError) String() string {
	if s, ok := extErrorStrings[e]; ok {
		return s
	}
	return "unknown extended error"
}

// Request is one outbound op plus its typed parameters. Zero value fields
// that a given Op doesn't use are ignored by Encode.
type Request struct {
	Op OpCode

	// OBJECT_CREATE
	CreateType ObjectType
	CreateSize uint32

	// RECEIPT_NOTIF_SET
	PRNTarget uint16

	// OBJECT_SELECT
	SelectType ObjectType

	// OBJECT_WRITE
	WriteData []byte

	// PING
	PingID uint8

	// FIRMWARE_VERSION
	FirmwareImage uint8
}

// WireSize returns the exact request byte count (opcode byte + payload) for
// op. It returns 0 for OBJECT_WRITE, whose size depends on its payload, and
// for an opcode the engine never sends, which callers must reject.
func WireSize(op OpCode) int {
	switch op {
	case OpObjectCreate:
		return 1 + 5 // type(1) + size(4)
	case OpReceiptNotifSet:
		return 1 + 2
	case OpObjectSelect:
		return 1 + 1
	case OpMTUGet:
		return 1
	case OpPing:
		return 1 + 1
	case OpFirmwareVersion:
		return 1 + 1
	case OpProtocolVersion, OpCRCGet, OpObjectExecute, OpHardwareVersion, OpAbort:
		return 1
	case OpObjectWrite:
		return 0 // variable length, size computed from the payload itself
	}
	return 0
}

// Encode serializes req into its wire byte layout: the op byte followed by
// its little-endian payload.
func (req Request) Encode() (OpCode, []byte) {
	switch req.Op {
	case OpObjectCreate:
		buf := make([]byte, 5)
		buf[0] = byte(req.CreateType)
		binary.LittleEndian.PutUint32(buf[1:], req.CreateSize)
		return req.Op, buf
	case OpReceiptNotifSet:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, req.PRNTarget)
		return req.Op, buf
	case OpObjectSelect:
		return req.Op, []byte{byte(req.SelectType)}
	case OpObjectWrite:
		return req.Op, req.WriteData
	case OpPing:
		return req.Op, []byte{req.PingID}
	case OpFirmwareVersion:
		return req.Op, []byte{req.FirmwareImage}
	default:
		return req.Op, nil
	}
}

// SelectPayload is the OBJECT_SELECT response payload.
type SelectPayload struct {
	MaxSize uint32
	Offset  uint32
	CRC32   uint32
}

// CRCPayload is the CRC_GET response payload.
type CRCPayload struct {
	Offset uint32
	CRC32  uint32
}

// Response is a parsed RESPONSE frame.
type Response struct {
	RequestEcho OpCode
	Result      Result
	ExtErr      ExtError

	Select   SelectPayload
	CRC      CRCPayload
	MTUSize  uint16
	PingID   uint8
}

// ParseResponse validates frame against the pending request's op and decodes
// the payload variant selected by pending, per spec §4.4.
func ParseResponse(pending OpCode, frame []byte) (Response, error) {
	var resp Response

	if len(frame) < 3 {
		return resp, errors.Wrap(ErrProtocol{Reason: "frame too short"}, "parse response")
	}
	if OpCode(frame[0]) != OpResponse {
		return resp, ErrProtocol{Reason: "first byte is not RESPONSE"}
	}

	resp.RequestEcho = OpCode(frame[1])
	if resp.RequestEcho != pending {
		return resp, ErrProtocol{Reason: "response echo does not match pending request"}
	}

	resp.Result = Result(frame[2])
	rest := frame[3:]

	if resp.Result == ResultExtError {
		if len(rest) < 1 {
			return resp, errors.Wrap(ErrProtocol{Reason: "truncated extended error"}, "parse response")
		}
		resp.ExtErr = ExtError(rest[0])
		return resp, nil
	}

	if resp.Result != ResultSuccess {
		return resp, nil
	}

	switch pending {
	case OpPing:
		if len(rest) < 1 {
			return resp, errors.Wrap(ErrProtocol{Reason: "truncated PING payload"}, "parse response")
		}
		resp.PingID = rest[0]
	case OpMTUGet:
		if len(rest) < 2 {
			return resp, errors.Wrap(ErrProtocol{Reason: "truncated MTU_GET payload"}, "parse response")
		}
		resp.MTUSize = binary.LittleEndian.Uint16(rest)
	case OpCRCGet:
		if len(rest) < 8 {
			return resp, errors.Wrap(ErrProtocol{Reason: "truncated CRC_GET payload"}, "parse response")
		}
		resp.CRC.Offset = binary.LittleEndian.Uint32(rest[0:4])
		resp.CRC.CRC32 = binary.LittleEndian.Uint32(rest[4:8])
	case OpObjectSelect:
		if len(rest) < 12 {
			return resp, errors.Wrap(ErrProtocol{Reason: "truncated OBJECT_SELECT payload"}, "parse response")
		}
		resp.Select.MaxSize = binary.LittleEndian.Uint32(rest[0:4])
		resp.Select.Offset = binary.LittleEndian.Uint32(rest[4:8])
		resp.Select.CRC32 = binary.LittleEndian.Uint32(rest[8:12])
	}

	return resp, nil
}
