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
	jww "github.com/spf13/jwalterweatherman"
	"github.com/pkg/errors"
)

// Firmware bundles the two objects an upgrade transfers, per spec §3: an
// init packet (signed metadata/manifest) and the firmware image itself.
type Firmware struct {
	Init Source
	Data Source
}

// Driver sequences EnterDFU, PRN configuration and the two object transfers
// over one Transport, per spec §4.6.
type Driver struct {
	transport Transport
	timeouts  Timeouts
	progress  Progress
}

// NewDriver wires a Transport into an upgrade driver with the given
// timeouts. Pass dfu.DefaultTimeouts() unless config overrides them.
func NewDriver(t Transport, timeouts Timeouts) *Driver {
	return &Driver{transport: t, timeouts: timeouts}
}

// WithProgress attaches a callback invoked after each chunk execute
// completes during the data-object transfer.
func (d *Driver) WithProgress(p Progress) *Driver {
	d.progress = p
	return d
}

// EnterBootloader only triggers the transport's DFU-mode transition, without
// performing any transfer -- the standalone "boot" operation of spec §4.6.
func (d *Driver) EnterBootloader() error {
	jww.INFO.Println("entering DFU mode")
	if err := d.transport.EnterDFU(); err != nil {
		return errors.Wrap(err, "failed to enter DFU mode")
	}
	return nil
}

// Upgrade runs the full procedure: enter DFU mode, set the packet-receipt
// notification target to 0 (per the Open Question in spec §9, PRN is always
// assumed disabled), negotiate MTU, then transfer the init object followed
// by the data object.
func (d *Driver) Upgrade(fw Firmware) (Outcome, error) {
	jww.INFO.Println("entering DFU mode")
	if err := d.transport.EnterDFU(); err != nil {
		return OutcomeError, errors.Wrap(err, "failed to enter DFU mode")
	}

	s := newSession(d.transport, d.timeouts)

	if _, err := s.roundTrip(Request{Op: OpReceiptNotifSet, PRNTarget: 0}); err != nil {
		return OutcomeError, errors.Wrap(err, "failed to disable packet receipt notification")
	}

	if _, err := d.transport.SetMTU(); err != nil {
		return OutcomeError, errors.Wrap(err, "failed to negotiate MTU")
	}

	jww.INFO.Println("transferring init packet")
	initObj := newObject(s, ObjectTypeInit, fw.Init, nil)
	outcome, err := initObj.transfer()
	if err != nil || outcome != OutcomeSuccess {
		return outcome, err
	}

	jww.INFO.Println("transferring firmware image")
	dataObj := newObject(s, ObjectTypeData, fw.Data, d.progress)
	outcome, err = dataObj.transfer()
	if err != nil {
		return outcome, err
	}

	jww.INFO.Printf("upgrade finished: %s", outcome)
	return outcome, nil
}
