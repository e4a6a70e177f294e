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
	"github.com/jholt/nrf-dfu/internal/dfu"
	"github.com/jholt/nrf-dfu/internal/dfuconfig"
	"github.com/jholt/nrf-dfu/internal/source"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"gopkg.in/cheggaaa/pb.v2"
)

type dfuCommand struct {
	*baseCommand

	flags            transportFlags
	firmwareFilename string
}

func newDfuCommand() *dfuCommand {
	c := &dfuCommand{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:   "dfu",
		Short: "Perform device firmware upgrade",
		Args:  cobra.NoArgs,
		Long: `This command can be used to perform a firmware upgrade of an nRF51 or nRF52
device. If the device supports the Buttonless DFU service, this service will
be used to first reboot the device into DFU mode.`,
		Example: `nrf-dfu dfu --device /dev/ttyACM0 --firmware FW.zip
nrf-dfu dfu --transport ble --address 4b668b2e16e41429fca7af1b0dc50644 --firmware FW.zip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDfu()
		},
	})

	addTransportFlags(c.baseCommand, &c.flags)
	c.cmd.Flags().StringVarP(&c.firmwareFilename, "firmware", "f", "", "Filename of the firmware archive")
	return c
}

func (c *dfuCommand) runDfu() error {
	if c.firmwareFilename == "" {
		return wrapConfigError(errors.New("no firmware filename specified, use --firmware to specify the firmware archive"))
	}

	cfg, err := dfuconfig.Load(c.cli.ConfigFile)
	if err != nil {
		return wrapConfigError(err)
	}
	cfg = c.flags.resolve(cfg)

	jww.INFO.Printf("upgrading firmware with %q\n", c.firmwareFilename)

	pkg, err := source.Open(c.firmwareFilename)
	if err != nil {
		return errors.Wrap(err, "failed to open firmware package")
	}
	defer pkg.Close()

	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}

	pub := newStatusPublisher(cfg)
	defer pub.Close()

	var bar *pb.ProgressBar
	driver := dfu.NewDriver(transport, dfu.Timeouts{Default: cfg.TimeoutDefault, Execute: cfg.TimeoutExecute})
	driver = driver.WithProgress(func(written, total int64) {
		if bar == nil {
			bar = pb.ProgressBarTemplate(`{{ white "DFU:" }} {{bar . | green}} {{speed . "%s byte/s" | white }}`).Start64(total)
		}
		bar.SetCurrent(written)
		pub.Progress(written, total)
	})

	outcome, err := driver.Upgrade(dfu.Firmware{Init: pkg.Init, Data: pkg.Data})
	if bar != nil {
		bar.Finish()
	}
	pub.Outcome(outcome.String())

	if err != nil {
		return errors.Wrap(err, "failed to upgrade device firmware")
	}
	if outcome == dfu.OutcomeError {
		return errors.Errorf("upgrade did not succeed: %s", outcome)
	}

	// OutcomeFirmwareTooOld is a successful run per spec.md §6's exit-code
	// contract: the device is already at or above the offered version, so
	// exiting 0 lets a supervising process treat it the same as "up to date".
	jww.INFO.Printf("upgrade finished: %s\n", outcome)
	return nil
}
