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

// Package dfuconfig loads the external interface described in spec §6 from
// an ini file, with CLI flags taking precedence over file values and file
// values taking precedence over built-in defaults.
package dfuconfig

import (
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// DfuType selects which transport an upgrade or boot run uses.
type DfuType string

const (
	DfuTypeSerial DfuType = "serial"
	DfuTypeBLE    DfuType = "ble"
)

// Config is the external interface of spec §6.
type Config struct {
	DfuType DfuType

	SerialDevice  string
	SerialBaud    int
	SerialCDCACM  bool

	BLEInterface  string
	BLEAddress    string
	BLEAddrType   string
	BLEPasskey    string

	TimeoutDefault time.Duration
	TimeoutExecute time.Duration

	// RedisAddr enables the Redis status publisher (internal/status) when
	// non-empty; there is no spec §6 equivalent, this is an ambient
	// operational addition for the systems that embed this tool.
	RedisAddr string
}

// Default returns the built-in defaults: serial transport, 115200 baud,
// 1s/10s timeouts, matching spec §6's default column.
func Default() Config {
	return Config{
		DfuType:        DfuTypeSerial,
		SerialBaud:     115200,
		BLEAddrType:    "public",
		TimeoutDefault: 1 * time.Second,
		TimeoutExecute: 10 * time.Second,
	}
}

// Load reads path (expanding a leading ~) as an ini file and overlays its
// values onto Default(). A missing file is not an error: the defaults
// apply and the caller's CLI flags are expected to fill in the rest.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to expand config path")
	}

	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := ini.Load(expanded)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to load config file")
	}

	section := file.Section("")

	if v := section.Key("dfu_type").String(); v != "" {
		cfg.DfuType = DfuType(v)
	}
	if v := section.Key("serial_device").String(); v != "" {
		cfg.SerialDevice = v
	}
	if v, err := section.Key("serial_baud").Int(); err == nil && v != 0 {
		cfg.SerialBaud = v
	}
	if section.HasKey("serial_cdc_acm") {
		cfg.SerialCDCACM, _ = section.Key("serial_cdc_acm").Bool()
	}
	if v := section.Key("ble_interface").String(); v != "" {
		cfg.BLEInterface = v
	}
	if v := section.Key("ble_address").String(); v != "" {
		cfg.BLEAddress = v
	}
	if v := section.Key("ble_address_type").String(); v != "" {
		cfg.BLEAddrType = v
	}
	if v := section.Key("ble_passkey").String(); v != "" {
		cfg.BLEPasskey = v
	}
	if v, err := section.Key("timeout_default").Int(); err == nil && v != 0 {
		cfg.TimeoutDefault = time.Duration(v) * time.Second
	}
	if v, err := section.Key("timeout_execute").Int(); err == nil && v != 0 {
		cfg.TimeoutExecute = time.Duration(v) * time.Second
	}
	if v := section.Key("redis_addr").String(); v != "" {
		cfg.RedisAddr = v
	}

	return cfg, nil
}
