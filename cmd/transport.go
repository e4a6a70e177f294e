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
	"time"

	"github.com/jholt/nrf-dfu/internal/ble"
	"github.com/jholt/nrf-dfu/internal/dfu"
	"github.com/jholt/nrf-dfu/internal/dfuconfig"
	"github.com/jholt/nrf-dfu/internal/status"
	"github.com/pkg/errors"
)

// transportFlags are the per-subcommand overrides of spec §6's external
// interface; any left empty fall back to the loaded Config.
type transportFlags struct {
	dfuType      string
	serialDevice string
	serialBaud   int
	serialCDCACM bool
	bleAddress   string
	bleAddrType  string
	timeout      time.Duration
}

func addTransportFlags(cmd *baseCommand, f *transportFlags) {
	cmd.cmd.Flags().StringVar(&f.dfuType, "transport", "", "transport to use: serial or ble (overrides config file)")
	cmd.cmd.Flags().StringVar(&f.serialDevice, "device", "", "serial device path, e.g. /dev/ttyACM0")
	cmd.cmd.Flags().IntVar(&f.serialBaud, "baud", 0, "serial baud rate (overrides config file)")
	cmd.cmd.Flags().BoolVar(&f.serialCDCACM, "cdc-acm", false, "device is USB CDC-ACM and resets itself, skip the DTR pulse")
	cmd.cmd.Flags().StringVarP(&f.bleAddress, "address", "a", "", "BLE address of device")
	cmd.cmd.Flags().StringVar(&f.bleAddrType, "address-type", "", "BLE address type: public or random")
	cmd.cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "per-request response timeout, also used when connecting over BLE (overrides timeout_default)")
}

// resolve merges CLI overrides onto a loaded Config following spec §6's
// "CLI flags override the config file" precedence.
func (f *transportFlags) resolve(cfg dfuconfig.Config) dfuconfig.Config {
	if f.dfuType != "" {
		cfg.DfuType = dfuconfig.DfuType(f.dfuType)
	}
	if f.serialDevice != "" {
		cfg.SerialDevice = f.serialDevice
	}
	if f.serialBaud != 0 {
		cfg.SerialBaud = f.serialBaud
	}
	if f.serialCDCACM {
		cfg.SerialCDCACM = true
	}
	if f.bleAddress != "" {
		cfg.BLEAddress = f.bleAddress
	}
	if f.bleAddrType != "" {
		cfg.BLEAddrType = f.bleAddrType
	}
	if f.timeout != 0 {
		cfg.TimeoutDefault = f.timeout
	}
	return cfg
}

// newTransport builds the Transport named by cfg.DfuType, per spec §4.2/§6.
func newTransport(cfg dfuconfig.Config) (dfu.Transport, error) {
	timeouts := dfu.Timeouts{Default: cfg.TimeoutDefault, Execute: cfg.TimeoutExecute}

	switch cfg.DfuType {
	case dfuconfig.DfuTypeBLE:
		if cfg.BLEAddress == "" {
			return nil, wrapConfigError(errors.New("no BLE address specified, use --address or ble_address in the config file"))
		}
		client, err := ble.NewClient()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create BLE client")
		}
		return dfu.NewBLETransport(client, dfu.BLEConfig{
			Address:     cfg.BLEAddress,
			AddressType: cfg.BLEAddrType,
			Timeout:     cfg.TimeoutDefault,
		}), nil

	case dfuconfig.DfuTypeSerial, "":
		if cfg.SerialDevice == "" {
			return nil, wrapConfigError(errors.New("no serial device specified, use --device or serial_device in the config file"))
		}
		return dfu.NewSerialTransport(dfu.SerialConfig{
			Device:       cfg.SerialDevice,
			Baud:         cfg.SerialBaud,
			SkipDTRReset: cfg.SerialCDCACM,
			Timeouts:     timeouts,
		})

	default:
		return nil, wrapConfigError(errors.Errorf("unknown transport %q", cfg.DfuType))
	}
}

// newStatusPublisher opens a Redis publisher when cfg.RedisAddr is set, or a
// no-op one otherwise. If the Redis server cannot be reached it also returns
// the no-op publisher, and the upgrade goes ahead without status updates.
// This has no spec §6 knob; it is an operational add-on
// for callers that supervise the upgrade out-of-process.
func newStatusPublisher(cfg dfuconfig.Config) status.Publisher {
	if cfg.RedisAddr == "" {
		return status.Noop{}
	}
	pub, err := status.NewRedisPublisher(cfg.RedisAddr)
	if err != nil {
		return status.Noop{}
	}
	return pub
}
