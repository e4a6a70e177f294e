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

// Package slip implements RFC 1055 byte stuffing, the framing the nRF DFU
// serial transport uses to delimit request/response messages on the wire.
package slip

const (
	End    byte = 0xC0
	Esc    byte = 0xDB
	EscEnd byte = 0xDC
	EscEsc byte = 0xDD
)

// Encode returns payload SLIP-encoded with a single trailing End byte.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, EncodedLen(len(payload)))
	for _, b := range payload {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, End)
	return out
}

// EncodedLen is the worst-case encoded size of a payload of length n: every
// byte doubles plus one trailing End.
func EncodedLen(n int) int {
	return 2*n + 1
}

// Status is the outcome of feeding one more byte to a Decoder.
type Status int

const (
	Busy Status = iota
	Complete
	Error
	Overflow
)

type decoderState int

const (
	stateDecoding decoderState = iota
	stateEscReceived
	stateFinished
	stateError
)

// Decoder reconstructs a SLIP frame one byte at a time. A well-formed
// encoding of length N decodes to exactly N bytes.
type Decoder struct {
	state   decoderState
	buf     []byte
	maxSize int
}

// NewDecoder creates a Decoder whose decoded frame never exceeds maxSize
// bytes; feeding more causes Put to return Overflow.
func NewDecoder(maxSize int) *Decoder {
	return &Decoder{maxSize: maxSize}
}

// Reset discards any in-progress frame so the Decoder is ready for the next
// one.
func (d *Decoder) Reset() {
	d.state = stateDecoding
	d.buf = d.buf[:0]
}

// Put feeds one more byte from the wire into the decoder.
func (d *Decoder) Put(b byte) Status {
	switch d.state {
	case stateFinished, stateError:
		// a caller that keeps feeding bytes after Complete/Error wants a
		// fresh frame; treat the leading End of the next frame as a no-op
		// boundary, same as Reset() + re-entry.
		d.Reset()
	}

	switch d.state {
	case stateEscReceived:
		d.state = stateDecoding
		switch b {
		case EscEnd:
			return d.push(End)
		case EscEsc:
			return d.push(Esc)
		default:
			d.state = stateError
			return Error
		}
	default: // stateDecoding
		switch b {
		case End:
			if len(d.buf) == 0 {
				// leading End bytes are frame boundaries, not empty frames
				return Busy
			}
			d.state = stateFinished
			return Complete
		case Esc:
			d.state = stateEscReceived
			return Busy
		default:
			return d.push(b)
		}
	}
}

func (d *Decoder) push(b byte) Status {
	if len(d.buf) >= d.maxSize {
		d.state = stateError
		return Overflow
	}
	d.buf = append(d.buf, b)
	return Busy
}

// Frame returns the decoded payload once Put has returned Complete.
func (d *Decoder) Frame() []byte {
	return d.buf
}

// Decode is a convenience wrapper for decoding a complete, already-buffered
// SLIP stream in one call; it returns the first decoded frame.
func Decode(stream []byte, maxSize int) ([]byte, error) {
	dec := NewDecoder(maxSize)
	for _, b := range stream {
		switch dec.Put(b) {
		case Complete:
			return dec.Frame(), nil
		case Error:
			return nil, errFrame("invalid SLIP escape sequence")
		case Overflow:
			return nil, errFrame("SLIP frame exceeds buffer size")
		}
	}
	return nil, errFrame("truncated SLIP frame")
}

type errFrame string

func (e errFrame) Error() string { return string(e) }
