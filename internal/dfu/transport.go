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
	"time"

	"github.com/pkg/errors"
)

// Transport is the uniform send_frame/recv_frame abstraction of spec §4.2.
// The object transfer procedure and upgrade driver drive it without knowing
// whether it is backed by SLIP-framed serial or a BLE control/data channel
// pair; the only place that difference leaks through is ChunkSize (serial
// leaves room for SLIP doubling, BLE uses a fixed 244-byte size).
type Transport interface {
	// SendFrame delivers one logical message to the device.
	SendFrame(op OpCode, payload []byte) error

	// RecvFrame returns one complete device frame or fails with a timeout
	// or I/O error.
	RecvFrame(timeout time.Duration) ([]byte, error)

	// EnterDFU causes the device to switch into bootloader mode.
	EnterDFU() error

	// SetMTU negotiates (serial) or fixes (BLE) the chunk size and returns
	// the resulting effective OBJECT_WRITE payload size.
	SetMTU() (int, error)

	// ChunkSize is the effective OBJECT_WRITE payload size for this
	// transport, valid after SetMTU.
	ChunkSize() int
}

// Timeouts bundles the per-request deadlines of spec §5: 1s default, longer
// for OBJECT_EXECUTE since the bootloader may erase flash synchronously.
type Timeouts struct {
	Default time.Duration
	Execute time.Duration
}

// DefaultTimeouts matches spec §6's defaults (timeout_default=1,
// timeout_execute=10).
func DefaultTimeouts() Timeouts {
	return Timeouts{Default: 1 * time.Second, Execute: 10 * time.Second}
}

func (t Timeouts) forOp(op OpCode) time.Duration {
	if op == OpObjectExecute {
		return t.Execute
	}
	return t.Default
}

// session drives the per-request state machine of spec §4.7: Idle ->
// AwaitingResponse(op) -> Idle | Error. Only one request may be outstanding
// at a time; send arms the deadline, recv resolves it.
type session struct {
	transport Transport
	timeouts  Timeouts
}

func newSession(t Transport, timeouts Timeouts) *session {
	return &session{transport: t, timeouts: timeouts}
}

// roundTrip sends req and waits for its matching response, returning the
// parsed Response or a protocol/device error per spec §4.4/§4.8. It never
// retries: a timed-out or mismatched exchange is terminal for the request.
func (s *session) roundTrip(req Request) (Response, error) {
	op, payload := req.Encode()

	if op != OpObjectWrite {
		want := WireSize(op)
		if want == 0 {
			return Response{}, errors.Errorf("internal error: op %#x is not a request the engine sends", byte(op))
		}
		if want != 1+len(payload) {
			return Response{}, errors.Errorf("internal error: wire size mismatch for op %#x", byte(op))
		}
	}

	if err := s.transport.SendFrame(op, payload); err != nil {
		return Response{}, errors.Wrap(err, "send request")
	}

	frame, err := s.transport.RecvFrame(s.timeouts.forOp(op))
	if err != nil {
		return Response{}, errors.Wrap(err, "receive response")
	}

	resp, err := ParseResponse(op, frame)
	if err != nil {
		return Response{}, err
	}

	if err := classify(resp); err != nil {
		return resp, err
	}

	return resp, nil
}

// write sends a raw OBJECT_WRITE payload with no response expected; the
// transport itself provides backpressure (serial write-ready polling, BLE
// flow control).
func (s *session) write(data []byte) error {
	return s.transport.SendFrame(OpObjectWrite, data)
}
