// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package zaber

import (
	"fmt"
	"io"
	"time"

	serial "github.com/hootrhino/goserial"
)

// SerialConfig describes the serial link to the first device of a chain.
type SerialConfig struct {
	Address  string        `yaml:"address"`   // e.g. /dev/ttyUSB0 or COM3
	BaudRate int           `yaml:"baud_rate"` // 115200 unless the chain was reconfigured
	DataBits int           `yaml:"data_bits"`
	StopBits int           `yaml:"stop_bits"`
	Parity   string        `yaml:"parity"`  // N, E or O
	Timeout  time.Duration `yaml:"timeout"` // per read, retried by the transport
}

// DefaultSerialConfig returns the factory settings of the controllers:
// 115200 baud, 8 data bits, no parity, one stop bit.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	}
}

// OpenSerial opens the port described by cfg.
func OpenSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("zaber: serial address is required")
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("zaber: open %s: %w", cfg.Address, err)
	}
	return port, nil
}

// OpenTransport opens the serial port and starts a transport on it.
func OpenTransport(serialCfg SerialConfig, cfg TransportConfig) (*Transport, error) {
	port, err := OpenSerial(serialCfg)
	if err != nil {
		return nil, err
	}
	return NewTransport(port, cfg), nil
}
