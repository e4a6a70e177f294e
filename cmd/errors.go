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

package cmd

// exitCoder is implemented by an error that carries the process exit code it
// should produce, per spec.md §6's exit-code contract: 0 success (including
// firmware-too-old), 1 protocol/IO failure, 2 configuration error.
type exitCoder interface {
	error
	ExitCode() int
}

// configError marks a failure as originating from bad CLI flags or an
// invalid config file, rather than a device/transport problem, so Execute
// can map it to exit code 2 instead of the default 1.
type configError struct {
	err error
}

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return configError{err: err}
}

func (e configError) Error() string { return e.err.Error() }
func (e configError) Cause() error  { return e.err }
func (e configError) ExitCode() int { return 2 }

// exitCodeFor walks err's Cause() chain looking for the first exitCoder,
// without unwrapping past it -- a plain errors.Cause(err) would unwrap
// configError itself away since it also exposes Cause(). Defaults to 1
// (protocol/IO failure) per spec.md §6 when no exitCoder is found.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	for e := err; e != nil; {
		if ec, ok := e.(exitCoder); ok {
			return ec.ExitCode()
		}
		causer, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		next := causer.Cause()
		if next == e {
			break
		}
		e = next
	}
	return 1
}
