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

import (
	"fmt"

	"github.com/jholt/nrf-dfu/internal/dfuconfig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// pingCommand calls Transport.SetMTU on an already-booted bootloader (an
// MTU_GET request on serial), useful for verifying a serial connection before
// attempting dfu. It does not send a PING request.
type pingCommand struct {
	*baseCommand

	flags transportFlags
}

func newPingCommand() *pingCommand {
	c := &pingCommand{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:   "ping",
		Short: "Ping a device already in DFU mode",
		Long: `This command queries the chunk size of a device that is already in
bootloader mode, without attempting to enter DFU mode or transfer anything.
Over serial it sends MTU_GET; over BLE the chunk size is fixed and no request
is sent. No PING request is sent.`,
		Example: `nrf-dfu ping --device /dev/ttyACM0`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPing()
		},
	})

	addTransportFlags(c.baseCommand, &c.flags)

	return c
}

func (c *pingCommand) runPing() error {
	cfg, err := dfuconfig.Load(c.cli.ConfigFile)
	if err != nil {
		return wrapConfigError(err)
	}
	cfg = c.flags.resolve(cfg)

	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}

	mtu, err := transport.SetMTU()
	if err != nil {
		return errors.Wrap(err, "device did not respond")
	}

	fmt.Printf("device responded, effective chunk size %d bytes\n", mtu)
	return nil
}
