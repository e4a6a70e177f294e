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
	"github.com/jholt/nrf-dfu/internal/slip"
	"go.bug.st/serial"
)

// serialBufSize bounds the decoded SLIP frame; must exceed the largest MTU
// the bootloader can report, as original_source/dfu_serial.h's BUF_SIZE does.
const serialBufSize = 1050

// slipBufSize is the worst-case encoded buffer, matching
// original_source/dfu_serial.h's SLIP_BUF_SIZE = BUF_SIZE*2+1.
const slipBufSize = serialBufSize*2 + 1

// SerialConfig configures the serial transport; see spec §6.
type SerialConfig struct {
	Device        string
	Baud          int
	SkipDTRReset  bool // serial_cdc_acm: device auto-resets, skip the pulse
	Timeouts      Timeouts
}

type serialTransport struct {
	cfg  SerialConfig
	port serial.Port
	mtu  int // effective chunk size, (negotiated_mtu-1)/2
}

// NewSerialTransport opens the TTY raw at cfg.Baud, 8-N-1, no parity, no
// flow control -- the Go analogue of serialtty.c's IGNPAR|CLOCAL|CREAD|CS8.
func NewSerialTransport(cfg SerialConfig) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial device")
	}

	// SetReadTimeout bounds each individual Read call; the overall
	// per-request deadline is enforced by RecvFrame's own loop below.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "failed to configure serial read timeout")
	}

	return &serialTransport{cfg: cfg, port: port, mtu: serialBufSize}, nil
}

func (t *serialTransport) reopen() error {
	if t.port != nil {
		_ = t.port.Close()
	}
	mode := &serial.Mode{
		BaudRate: t.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.cfg.Device, mode)
	if err != nil {
		return errors.Wrap(err, "failed to reopen serial device")
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return errors.Wrap(err, "failed to configure serial read timeout")
	}
	t.port = port
	return nil
}

// SendFrame SLIP-encodes op||payload and writes it as a single frame. Writes
// go through a polling loop that tolerates partial writes the way
// serial_write() in original_source/serialtty.c waits for writability.
func (t *serialTransport) SendFrame(op OpCode, payload []byte) error {
	raw := make([]byte, 0, 1+len(payload))
	raw = append(raw, byte(op))
	raw = append(raw, payload...)
	encoded := slip.Encode(raw)

	pos := 0
	deadline := time.Now().Add(t.cfg.Timeouts.forOp(op))
	for pos < len(encoded) {
		n, err := t.port.Write(encoded[pos:])
		if err != nil {
			return errors.Wrap(err, "serial write failed")
		}
		pos += n
		if pos < len(encoded) && time.Now().After(deadline) {
			return errors.New("timed out writing serial frame")
		}
	}
	return nil
}

// RecvFrame reads one byte at a time through the SLIP decoder until a
// complete frame is obtained, bounded by timeout.
func (t *serialTransport) RecvFrame(timeout time.Duration) ([]byte, error) {
	dec := slip.NewDecoder(serialBufSize)
	deadline := time.Now().Add(timeout)
	one := make([]byte, 1)

	for time.Now().Before(deadline) {
		n, err := t.port.Read(one)
		if err != nil {
			return nil, errors.Wrap(err, "serial read failed")
		}
		if n == 0 {
			continue // read timeout tick, keep polling until the deadline
		}
		switch dec.Put(one[0]) {
		case slip.Complete:
			return dec.Frame(), nil
		case slip.Error:
			return nil, errors.New("invalid SLIP escape sequence on serial")
		case slip.Overflow:
			return nil, errors.New("SLIP frame exceeded buffer size")
		}
	}
	return nil, errors.New("timed out waiting for serial response")
}

// EnterDFU toggles DTR/RTS to trigger a reset (skipped for CDC-ACM devices
// that auto-reset), reopens the port, then pings and verifies the reply,
// retrying briefly, per spec §4.2.
func (t *serialTransport) EnterDFU() error {
	if !t.cfg.SkipDTRReset {
		if err := t.port.SetDTR(false); err != nil {
			return errors.Wrap(err, "failed to clear DTR")
		}
		if err := t.port.SetRTS(false); err != nil {
			return errors.Wrap(err, "failed to clear RTS")
		}
		time.Sleep(100 * time.Millisecond)
		if err := t.port.SetDTR(true); err != nil {
			return errors.Wrap(err, "failed to set DTR")
		}
		if err := t.port.SetRTS(true); err != nil {
			return errors.Wrap(err, "failed to set RTS")
		}
	}

	if err := t.reopen(); err != nil {
		return err
	}

	s := newSession(t, t.cfg.Timeouts)
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		resp, err := s.roundTrip(Request{Op: OpPing, PingID: uint8(attempt + 1)})
		if err == nil && resp.PingID == uint8(attempt+1) {
			return nil
		}
		if err == nil {
			err = errors.Errorf("ping reply carried id %d, want %d", resp.PingID, attempt+1)
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	return errors.Wrap(lastErr, "device did not respond to ping after entering DFU mode")
}

// SetMTU issues MTU_GET and clamps to the SLIP buffer size, then derives the
// effective chunk size leaving room for the 1-byte OBJECT_WRITE opcode and
// worst-case SLIP doubling: (mtu-1)/2.
func (t *serialTransport) SetMTU() (int, error) {
	s := newSession(t, t.cfg.Timeouts)
	resp, err := s.roundTrip(Request{Op: OpMTUGet})
	if err != nil {
		return 0, errors.Wrap(err, "failed to negotiate MTU")
	}

	mtu := int(resp.MTUSize)
	if mtu > slipBufSize {
		mtu = slipBufSize
	}
	t.mtu = (mtu - 1) / 2
	return t.mtu, nil
}

func (t *serialTransport) ChunkSize() int {
	return t.mtu
}
