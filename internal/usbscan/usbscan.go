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

// Package usbscan enumerates USB CDC-ACM candidates so a caller can pick a
// serial_device before dialing it, without needing the device path already
// known -- nRF52 DK boards and dongles commonly expose themselves only as a
// USB device descriptor, not a stable tty path.
package usbscan

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// cdcACMClass is the USB communications device class (CDC); interfaces of
// this class expose a serial-like data path.
const cdcACMClass = gousb.ClassComm

// Candidate is one enumerated USB device that looks like a CDC-ACM adapter.
type Candidate struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	Bus       int
	Address   int
}

func (c Candidate) String() string {
	return fmt.Sprintf("bus %d addr %d, VID:PID %s:%s", c.Bus, c.Address, c.VendorID, c.ProductID)
}

// Scan opens a USB context and lists every attached device exposing a CDC
// interface, without claiming or opening any of them.
func Scan() ([]Candidate, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var candidates []Candidate
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, cfg := range desc.Configs {
			for _, intf := range cfg.Interfaces {
				for _, alt := range intf.AltSettings {
					if alt.Class == cdcACMClass {
						candidates = append(candidates, Candidate{
							VendorID:  desc.Vendor,
							ProductID: desc.Product,
							Bus:       desc.Bus,
							Address:   desc.Address,
						})
					}
				}
			}
		}
		return false // never actually open the device, just inspect its descriptor
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate USB devices")
	}
	for _, d := range devices {
		d.Close()
	}

	return candidates, nil
}
