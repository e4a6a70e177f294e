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

import "fmt"

// ErrProtocol is a Fatal failure: bad frame, opcode mismatch, truncation.
type ErrProtocol struct {
	Reason string
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// ErrDeviceBusy means the device returned OPERATION_NOT_PERMITTED at a point
// the engine expected it to be permitted -- a protocol bug on one side.
type ErrDeviceBusy struct{}

func (e ErrDeviceBusy) Error() string {
	return "device reported operation not permitted"
}

// ErrRejected wraps any non-SUCCESS result other than FW_VERSION_FAILURE.
type ErrRejected struct {
	Result Result
	Ext    ExtError
}

func (e ErrRejected) Error() string {
	if e.Result == ResultExtError {
		return fmt.Sprintf("device rejected request: %s", e.Ext)
	}
	return fmt.Sprintf("device rejected request: %s", e.Result)
}

// ErrFirmwareTooOld is EXT_ERROR/FW_VERSION_FAILURE, surfaced distinctly so
// the caller can treat it as "already up to date" rather than a hard error.
type ErrFirmwareTooOld struct{}

func (e ErrFirmwareTooOld) Error() string {
	return "firmware version is too low to install"
}

// Outcome is the 3-valued top-level result of an upgrade run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeFirmwareTooOld
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFirmwareTooOld:
		return "firmware too old"
	default:
		return "error"
	}
}

// classify turns a response's result code into the error taxonomy of §4.8,
// or nil when the result is SUCCESS.
func classify(resp Response) error {
	switch resp.Result {
	case ResultSuccess:
		return nil
	case ResultExtError:
		if resp.ExtErr == ExtErrorFWVersionFailure {
			return ErrFirmwareTooOld{}
		}
		return ErrRejected{Result: resp.Result, Ext: resp.ExtErr}
	case ResultOperationNotPermitted:
		return ErrDeviceBusy{}
	default:
		return ErrRejected{Result: resp.Result}
	}
}
