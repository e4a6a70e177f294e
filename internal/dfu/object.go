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
	"io"

	"github.com/pkg/errors"
	dfucrc "github.com/jholt/nrf-dfu/internal/crc"
)

// Source is the package source collaborator of spec §6: a random-access
// byte stream of known length. *source.Stream implements this.
type Source interface {
	io.ReaderAt
	Len() int64
}

// Progress reports bytes written so far against the object's total size.
type Progress func(written, total int64)

// object drives the chunked create/write/crc-check/execute procedure of
// spec §4.5 for one object (init packet or firmware image), grounded on
// dfu_object_write_procedure in original_source/dfu.c.
type object struct {
	session  *session
	typ      ObjectType
	src      Source
	progress Progress
}

func newObject(s *session, typ ObjectType, src Source, progress Progress) *object {
	return &object{session: s, typ: typ, src: src, progress: progress}
}

// transfer uploads the entire object, resuming from whatever offset/CRC the
// device reports at OBJECT_SELECT.
func (o *object) transfer() (Outcome, error) {
	n := o.src.Len()

	resp, err := o.session.roundTrip(Request{Op: OpObjectSelect, SelectType: o.typ})
	if err != nil {
		return OutcomeError, errors.Wrap(err, "object select failed")
	}
	maxSize := int64(resp.Select.MaxSize)
	offset := int64(resp.Select.Offset)
	deviceCRC := resp.Select.CRC32

	if maxSize <= 0 {
		return OutcomeError, errors.New("device reported a zero chunk size")
	}

	acc := dfucrc.New()

	// Case 1: entire object already accepted and verified -- idempotent
	// re-run, skip straight to EXECUTE.
	if offset == n {
		localCRC, err := o.crcOfPrefix(n)
		if err != nil {
			return OutcomeError, err
		}
		if localCRC == deviceCRC {
			return o.execute()
		}
	}

	// Case 2: partial (or fully but corrupt) progress. current_crc tracks
	// the cumulative CRC of everything accepted into this object so far and
	// keeps accumulating across the chunk loop below -- it is never reset
	// per chunk, only when the offset itself is rewound.
	if offset > 0 {
		remain := offset % maxSize

		if err := o.seedAccumulator(acc, offset); err != nil {
			return OutcomeError, err
		}

		if acc.Sum32() != deviceCRC {
			// corrupt data: roll back to the last chunk boundary and
			// recompute current_crc over the kept prefix.
			if remain > 0 {
				offset -= remain
			} else {
				offset -= maxSize
			}
			if err := o.seedAccumulator(acc, offset); err != nil {
				return OutcomeError, err
			}
		} else if offset < n {
			// CRC matches: finish out whatever remains of the in-progress
			// chunk, then execute it, before moving on to fresh chunks.
			if remain > 0 {
				end := offset + (maxSize - remain)
				if end > n {
					end = n
				}
				if err := o.writeRange(acc, offset, end); err != nil {
					return OutcomeError, err
				}
				offset = end
			}

			outcome, err := o.execute()
			if err != nil || outcome != OutcomeSuccess {
				return outcome, err
			}
		}
	} else {
		acc.Reset()
	}

	// Case 3: create/write/crc-check/execute fresh chunks until done.
	for i := offset; i < n; i += maxSize {
		end := i + maxSize
		if end > n {
			end = n
		}
		chunkSize := end - i

		if _, err := o.session.roundTrip(Request{Op: OpObjectCreate, CreateType: o.typ, CreateSize: uint32(chunkSize)}); err != nil {
			return OutcomeError, errors.Wrap(err, "object create failed")
		}

		if err := o.writeRange(acc, i, end); err != nil {
			return OutcomeError, err
		}

		resp, err := o.session.roundTrip(Request{Op: OpCRCGet})
		if err != nil {
			return OutcomeError, errors.Wrap(err, "crc get failed")
		}
		if resp.CRC.CRC32 != acc.Sum32() {
			return OutcomeError, ErrProtocol{Reason: "CRC_GET mismatch after writing chunk"}
		}

		outcome, err := o.execute()
		if err != nil || outcome != OutcomeSuccess {
			return outcome, err
		}

		if o.progress != nil {
			o.progress(end, n)
		}
	}

	return OutcomeSuccess, nil
}

func (o *object) execute() (Outcome, error) {
	_, err := o.session.roundTrip(Request{Op: OpObjectExecute})
	if err == nil {
		return OutcomeSuccess, nil
	}
	if _, ok := err.(ErrFirmwareTooOld); ok {
		return OutcomeFirmwareTooOld, nil
	}
	return OutcomeError, errors.Wrap(err, "object execute failed")
}

// writeRange streams src[from:to) through the transport in transport-sized
// packets, folding every byte actually handed off into acc.
func (o *object) writeRange(acc *dfucrc.Accumulator, from, to int64) error {
	chunk := o.session.transport.ChunkSize()
	if chunk <= 0 {
		return errors.New("transport reported a non-positive chunk size")
	}

	buf := make([]byte, chunk)
	for pos := from; pos < to; pos += int64(chunk) {
		end := pos + int64(chunk)
		if end > to {
			end = to
		}
		n, err := o.src.ReadAt(buf[:end-pos], pos)
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "failed to read from package source")
		}
		if err := o.session.write(buf[:n]); err != nil {
			return errors.Wrap(err, "object write failed")
		}
		acc.Write(buf[:n])
	}
	return nil
}

// crcOfPrefix computes CRC32 over src[0:n) by streaming it through a
// throwaway accumulator; used to compare against a device-reported CRC
// without re-reading the whole source into memory twice.
func (o *object) crcOfPrefix(n int64) (uint32, error) {
	acc := dfucrc.New()
	if err := o.seedAccumulator(acc, n); err != nil {
		return 0, err
	}
	return acc.Sum32(), nil
}

// seedAccumulator resets acc and feeds it src[0:n), so current_crc reflects
// exactly the bytes the device has already been asked to accept -- even
// when the local cursor previously moved past already-acknowledged data
// (spec §3's invariant on current_crc).
func (o *object) seedAccumulator(acc *dfucrc.Accumulator, n int64) error {
	acc.Reset()
	const bufSize = 4096
	buf := make([]byte, bufSize)
	for pos := int64(0); pos < n; pos += bufSize {
		end := pos + bufSize
		if end > n {
			end = n
		}
		read, err := o.src.ReadAt(buf[:end-pos], pos)
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "failed to read from package source")
		}
		acc.Write(buf[:read])
	}
	return nil
}
