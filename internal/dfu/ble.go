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
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/jholt/nrf-dfu/internal/ble"
)

const (
	dfuServiceUUID      = "fe59"
	dfuControlPointUUID = "8ec90001-f315-4f60-9fb8-838830daea50"
	dfuPacketUUID       = "8ec90002-f315-4f60-9fb8-838830daea50"
	dfuButtonlessUUID   = "8ec90003-f315-4f60-9fb8-838830daea50"
)

// maxBLEChunk is the fixed write-without-response payload size of the BLE
// transport: 244 bytes is the maximum ATT MTU (247) minus 3 bytes of ATT
// write-command overhead.
const maxBLEChunk = 244

// BLEConfig configures the BLE transport; see spec §6.
type BLEConfig struct {
	Address     string
	AddressType string // "public" or "random"; informational, go-ble dials by address alone
	Timeout     time.Duration
}

type bleTransport struct {
	client   ble.Client
	cfg      BLEConfig
	periph   ble.Peripheral
	control  ble.Characteristic
	packet   ble.Characteristic
	boot     ble.Characteristic
	respChan chan []byte
	chunk    int
}

// NewBLETransport wraps a ble.Client into the Transport interface,
// dispatching OBJECT_WRITE to the packet characteristic (write-without-
// response) and everything else to the control characteristic
// (notification-backed request/response), as spec §4.2/§6 requires.
func NewBLETransport(client ble.Client, cfg BLEConfig) Transport {
	return &bleTransport{
		client:   client,
		cfg:      cfg,
		respChan: make(chan []byte),
		chunk:    maxBLEChunk,
	}
}

func (t *bleTransport) connect(address string) error {
	periph, err := t.client.ConnectAddress(address, t.cfg.Timeout)
	if err != nil {
		return errors.Wrap(err, "failed to connect to BLE peripheral")
	}
	t.periph = periph

	service := periph.FindService(dfuServiceUUID)
	if service == nil {
		return errors.New("DFU service not found on peripheral")
	}

	t.control = service.FindCharacteristic(dfuControlPointUUID)
	t.packet = service.FindCharacteristic(dfuPacketUUID)
	t.boot = service.FindCharacteristic(dfuButtonlessUUID)
	return nil
}

// SendFrame dispatches OBJECT_WRITE to the data/packet characteristic
// (write-without-response) and every other opcode to the control
// characteristic (write-with-response), per spec §4.2.
func (t *bleTransport) SendFrame(op OpCode, payload []byte) error {
	if op == OpObjectWrite {
		if t.packet == nil {
			return errors.New("packet characteristic not available")
		}
		return errors.Wrap(t.packet.WriteCharacteristic(payload, true), "failed to write packet characteristic")
	}

	if t.control == nil {
		return errors.New("control characteristic not available")
	}
	data := append([]byte{byte(op)}, payload...)
	return errors.Wrap(t.control.WriteCharacteristic(data, false), "failed to write control characteristic")
}

// RecvFrame blocks on the next indication/notification from the control
// characteristic.
func (t *bleTransport) RecvFrame(timeout time.Duration) ([]byte, error) {
	select {
	case frame := <-t.respChan:
		return frame, nil
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for BLE control response")
	}
}

// EnterDFU writes the buttonless-DFU trigger characteristic on the
// application, then reconnects to the bootloader peripheral, whose address
// is conventionally the application address + 1, per spec §4.2/§6.
func (t *bleTransport) EnterDFU() error {
	if err := t.connect(t.cfg.Address); err != nil {
		return err
	}

	if t.control != nil && t.packet != nil {
		// bootloader characteristics already present: device is already in
		// DFU mode, nothing further to do.
		return t.subscribeControl()
	}

	if t.boot == nil {
		return errors.New("neither DFU transfer characteristics nor the buttonless trigger were found")
	}

	bootDone := make(chan []byte, 1)
	if err := t.boot.Subscribe(true, func(data []byte) { bootDone <- data }); err != nil {
		return errors.Wrap(err, "failed to subscribe to buttonless characteristic")
	}
	defer t.boot.Unsubscribe(true)

	if err := t.boot.WriteCharacteristic([]byte{0x01}, false); err != nil {
		return errors.Wrap(err, "failed to write buttonless DFU trigger")
	}

	select {
	case <-bootDone:
	case <-time.After(t.cfg.Timeout):
		return errors.New("timed out waiting for bootloader trigger acknowledgement")
	}

	_ = t.periph.Disconnect()
	time.Sleep(500 * time.Millisecond)

	targetAddr := bootloaderAddress(t.cfg.Address)
	if err := t.connect(targetAddr); err != nil {
		return errors.Wrap(err, "failed to reconnect to bootloader peripheral")
	}
	return t.subscribeControl()
}

func (t *bleTransport) subscribeControl() error {
	if t.control == nil {
		return errors.New("control characteristic not found after entering DFU mode")
	}
	return errors.Wrap(t.control.Subscribe(false, func(data []byte) {
		t.respChan <- data
	}), "failed to subscribe to control characteristic")
}

// SetMTU returns the fixed 244-byte chunk size without sending anything.
// go-ble's Client/Peripheral abstraction does not expose the connection's
// actual ATT MTU, so no negotiation takes place and a smaller negotiated MTU
// is not detected.
func (t *bleTransport) SetMTU() (int, error) {
	return t.chunk, nil
}

func (t *bleTransport) ChunkSize() int {
	return t.chunk
}

// bootloaderAddress increments the last octet of a colon-separated MAC
// address, the common convention for a Nordic buttonless bootloader's
// advertised address (application address + 1).
func bootloaderAddress(addr string) string {
	parts := strings.Split(addr, ":")
	if len(parts) == 0 {
		return addr
	}
	last := parts[len(parts)-1]
	var v uint64
	for _, c := range last {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= uint64(c-'A') + 10
		}
	}
	v = (v + 1) & 0xFF
	parts[len(parts)-1] = byteHex(byte(v))
	return strings.Join(parts, ":")
}

func byteHex(b byte) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}
