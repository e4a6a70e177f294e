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

// Package source extracts the init packet and firmware image from a Nordic
// DFU distribution zip into random-access byte streams the object transfer
// procedure can re-read at arbitrary offsets when resuming.
package source

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Stream is a fully buffered package member, addressable by offset so the
// object transfer procedure can recompute a CRC over any prefix without
// re-opening the archive.
type Stream struct {
	name string
	data []byte
}

// Len returns the stream's total byte count.
func (s *Stream) Len() int64 {
	return int64(len(s.data))
}

// ReadAt implements io.ReaderAt over the buffered member.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, errors.Errorf("source: offset %d out of range for %q (len %d)", off, s.name, len(s.data))
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Package is an opened DFU distribution archive exposing its init packet
// and firmware image members, grounded on readFirmwareArchive in the
// teacher's dfu/dfu.go.
type Package struct {
	rc   *zip.ReadCloser
	Init *Stream
	Data *Stream
}

// Open reads filename as a zip archive and buffers its *.dat (init packet)
// and *.bin (firmware image) members.
func Open(filename string) (*Package, error) {
	rc, err := zip.OpenReader(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open firmware package")
	}

	pkg := &Package{rc: rc}
	for _, f := range rc.File {
		switch {
		case strings.HasSuffix(f.Name, ".dat"):
			stream, err := readMember(f)
			if err != nil {
				rc.Close()
				return nil, errors.Wrapf(err, "failed to read init packet %q", f.Name)
			}
			pkg.Init = stream
		case strings.HasSuffix(f.Name, ".bin"):
			stream, err := readMember(f)
			if err != nil {
				rc.Close()
				return nil, errors.Wrapf(err, "failed to read firmware image %q", f.Name)
			}
			pkg.Data = stream
		}
	}

	if pkg.Init == nil || pkg.Data == nil {
		rc.Close()
		return nil, errors.New("firmware package is missing an init packet (.dat) or firmware image (.bin)")
	}

	return pkg, nil
}

// Close releases the underlying archive handle. The returned Streams remain
// valid; they hold their own copy of the member bytes.
func (p *Package) Close() error {
	return p.rc.Close()
}

func readMember(f *zip.File) (*Stream, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data := make([]byte, 0, f.UncompressedSize64)
	buf := make([]byte, 32*1024)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return &Stream{name: f.Name, data: data}, nil
}
