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

import "fmt"

// Chain is the set of devices declared by a Config, sharing one transport.
type Chain struct {
	Transport *Transport
	devices   map[int]*Device
	names     map[string]int
}

// NewChain creates the declared devices on t.
func NewChain(t *Transport, cfg Config) (*Chain, error) {
	ch := &Chain{Transport: t, devices: make(map[int]*Device), names: make(map[string]int)}
	for _, d := range cfg.Devices {
		dev, err := NewDevice(t, d.Address, d.Axes)
		if err != nil {
			return nil, err
		}
		dev.SetPollConfig(cfg.PollConfig())
		ch.devices[d.Address] = dev
		if d.Name != "" {
			ch.names[d.Name] = d.Address
		}
	}
	return ch, nil
}

// Device returns the device at address.
func (c *Chain) Device(address int) (*Device, error) {
	d, ok := c.devices[address]
	if !ok {
		return nil, fmt.Errorf("zaber: no device %d in chain: %w", address, ErrInvalidDevice)
	}
	return d, nil
}

// DeviceByName returns the device declared with name.
func (c *Chain) DeviceByName(name string) (*Device, error) {
	address, ok := c.names[name]
	if !ok {
		return nil, fmt.Errorf("zaber: no device named %q in chain: %w", name, ErrInvalidDevice)
	}
	return c.devices[address], nil
}

// Axis returns axis n of the device at address.
func (c *Chain) Axis(address, n int) (*Axis, error) {
	d, err := c.Device(address)
	if err != nil {
		return nil, err
	}
	return d.Axis(n)
}
