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

// Package ble declares the GATT primitives the DFU engine needs to drive a
// device through the Secure DFU service, independent of the concrete BLE
// stack underneath. internal/dfu/ble.go's Transport talks to a device only
// through these interfaces; go-ble.go is the sole adapter to a real radio.
package ble

import (
	"time"
)

// AdvertisementHandler is invoked once per advertising packet seen during a
// Client.Scan, so callers can match a device by name or address before
// connecting to it for DFU.
type AdvertisementHandler func(adv Advertisement)

// Advertisement is the subset of an advertising packet the DFU engine cares
// about when locating a target device: its address, local name, and the
// service UUIDs it advertises (e.g. the Buttonless DFU or Secure DFU
// service).
type Advertisement struct {
	Addr     string
	Name     string
	Services []string
}

// Client discovers and connects to peripherals. A Transport obtains its
// Peripheral through ConnectName or ConnectAddress before locating the DFU
// control, packet, and buttonless characteristics on it.
type Client interface {
	ConnectName(name string, timeout time.Duration) (Peripheral, error)
	ConnectAddress(address string, timeout time.Duration) (Peripheral, error)
	Scan(duration time.Duration, handler AdvertisementHandler) error
}

// Peripheral is a connected device. The DFU transport walks it for the
// Secure DFU service's characteristics and writes/subscribes directly on a
// Characteristic thereafter; the uuid-taking methods here exist for callers
// that haven't resolved a Characteristic handle yet.
type Peripheral interface {
	Addr() string

	Disconnect() error

	FindService(uuid string) Service
	FindCharacteristic(uuid string) Characteristic

	WriteCharacteristic(uuid string, data []byte, noresp bool) error
	Subscribe(uuid string, indication bool, f func([]byte)) error
	Unsubscribe(uuid string, indication bool) error
}

// Service is one GATT service on a Peripheral, e.g. Secure DFU or
// Buttonless DFU, each identified by its 128-bit UUID.
type Service interface {
	Uuid() string
	FindCharacteristic(uuid string) Characteristic
}

// Characteristic is a single GATT characteristic such as DFU control point
// or packet data. The indication flag passed to Subscribe/Unsubscribe
// selects BLE indications (acknowledged) over plain notifications; the DFU
// transport picks whichever the characteristic it is driving expects.
type Characteristic interface {
	Uuid() string

	WriteCharacteristic(data []byte, noresp bool) error
	Subscribe(indication bool, f func([]byte)) error
	Unsubscribe(indication bool) error
}
