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
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enterDFUTrackingTransport wraps fakeTransport to additionally record
// whether EnterDFU was invoked, so driver tests can assert that it was called
// without re-plumbing the whole fake.
type enterDFUTrackingTransport struct {
	*fakeTransport
	entered bool
}

func (e *enterDFUTrackingTransport) EnterDFU() error {
	e.entered = true
	return e.fakeTransport.EnterDFU()
}

func TestDriverEnterBootloaderOnlyEntersDFU(t *testing.T) {
	ft := &enterDFUTrackingTransport{fakeTransport: &fakeTransport{chunk: 64}}
	d := NewDriver(ft, DefaultTimeouts())

	err := d.EnterBootloader()
	require.NoError(t, err)
	assert.True(t, ft.entered)
	assert.Empty(t, ft.writes)
}

func TestDriverUpgradeSequencesInitThenData(t *testing.T) {
	initData := []byte("init-packet")
	fwData := make([]byte, 8)
	for i := range fwData {
		fwData[i] = byte(i)
	}

	ft := &enterDFUTrackingTransport{fakeTransport: &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			successFrame(OpReceiptNotifSet, nil),
			// init object: single chunk, offset 0
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(initData)), crc32.ChecksumIEEE(initData)),
			executeFrame(),
			// data object: single chunk, offset 0
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(fwData)), crc32.ChecksumIEEE(fwData)),
			executeFrame(),
		},
	}}

	var lastWritten, lastTotal int64
	d := NewDriver(ft, DefaultTimeouts()).WithProgress(func(written, total int64) {
		lastWritten, lastTotal = written, total
	})

	outcome, err := d.Upgrade(Firmware{
		Init: &fakeSource{data: initData},
		Data: &fakeSource{data: fwData},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.True(t, ft.entered)
	require.Len(t, ft.writes, 2)
	assert.Equal(t, initData, ft.writes[0])
	assert.Equal(t, fwData, ft.writes[1])
	assert.Equal(t, int64(len(fwData)), lastWritten)
	assert.Equal(t, int64(len(fwData)), lastTotal)
}

func TestDriverUpgradeStopsAfterInitFailure(t *testing.T) {
	initData := []byte("init-packet")

	ft := &enterDFUTrackingTransport{fakeTransport: &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			successFrame(OpReceiptNotifSet, nil),
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(initData)), 0xBADC0DE),
		},
	}}

	d := NewDriver(ft, DefaultTimeouts())
	outcome, err := d.Upgrade(Firmware{
		Init: &fakeSource{data: initData},
		Data: &fakeSource{data: []byte("never reached")},
	})
	require.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)
	require.Len(t, ft.writes, 1, "the data object must never be attempted")
}

func TestDriverUpgradeReportsFirmwareTooOld(t *testing.T) {
	initData := []byte("init-packet")
	fwData := []byte("firmware")

	ft := &enterDFUTrackingTransport{fakeTransport: &fakeTransport{
		chunk: 64,
		queue: [][]byte{
			successFrame(OpReceiptNotifSet, nil),
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(initData)), crc32.ChecksumIEEE(initData)),
			executeFrame(),
			selectFrame(64, 0, 0),
			createFrame(),
			crcFrame(uint32(len(fwData)), crc32.ChecksumIEEE(fwData)),
			fwTooOldFrame(),
		},
	}}

	d := NewDriver(ft, DefaultTimeouts())
	outcome, err := d.Upgrade(Firmware{
		Init: &fakeSource{data: initData},
		Data: &fakeSource{data: fwData},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirmwareTooOld, outcome)
}
