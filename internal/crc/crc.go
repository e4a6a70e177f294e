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

// Package crc streams a CRC-32 (IEEE polynomial, zlib initial value of 0)
// over object bytes as they are handed to the transport, matching the
// bootloader's own running checksum bit-for-bit.
package crc

import "hash/crc32"

// Accumulator tracks current_crc for the object currently being written.
type Accumulator struct {
	h hash32
}

type hash32 interface {
	Write(p []byte) (int, error)
	Sum32() uint32
	Reset()
}

// New returns an Accumulator starting from the zlib-convention initial value.
func New() *Accumulator {
	return &Accumulator{h: crc32.NewIEEE()}
}

// Write folds more bytes into the running checksum.
func (a *Accumulator) Write(p []byte) {
	_, _ = a.h.Write(p)
}

// Sum32 returns the CRC-32 of every byte written since creation or the last
// Reset.
func (a *Accumulator) Sum32() uint32 {
	return a.h.Sum32()
}

// Reset zeroes the accumulator. The engine calls it when an object starts
// from offset 0 and before re-seeding over a prefix; it is not reset between
// chunks, since the device's CRC_GET covers the whole object so far.
func (a *Accumulator) Reset() {
	a.h.Reset()
}

// Of is a one-shot helper equivalent to CRC32(IEEE) over a byte slice,
// used to check local prefixes against a device-reported CRC.
func Of(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}
