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
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Device is one addressable unit on a chain. It holds no state besides its
// address, its axis count and the shared sender, which it never closes.
type Device struct {
	sender  Sender
	address int

	mu        sync.RWMutex
	axisCount int
	poll      PollConfig
}

// Identity is what a device reports about itself.
type Identity struct {
	DeviceID  int
	Firmware  string
	AxisCount int
}

// NewDevice binds address on the chain reached through sender.
func NewDevice(sender Sender, address, axisCount int) (*Device, error) {
	if address < 1 || address > MaxDeviceAddress {
		return nil, fmt.Errorf("zaber: device address %d out of range 1-%d: %w", address, MaxDeviceAddress, ErrInvalidDevice)
	}
	if axisCount < 1 {
		return nil, fmt.Errorf("zaber: device %d axis count %d must be at least 1: %w", address, axisCount, ErrInvalidDevice)
	}
	return &Device{
		sender:    sender,
		address:   address,
		axisCount: axisCount,
		poll:      DefaultPollConfig(),
	}, nil
}

func (d *Device) Address() int { return d.address }

func (d *Device) AxisCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.axisCount
}

// SetPollConfig changes how WaitUntilIdle polls this device and its axes.
func (d *Device) SetPollConfig(cfg PollConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.poll = cfg
}

func (d *Device) PollConfig() PollConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.poll
}

// Axis returns axis n of this device.
func (d *Device) Axis(n int) (*Axis, error) {
	return NewAxis(d, n)
}

// Send issues body to the whole device (axis 0). A rejected command returns
// the reply together with a *RejectedError.
func (d *Device) Send(ctx context.Context, body string) (*Reply, error) {
	return d.request(ctx, 0, body)
}

func (d *Device) request(ctx context.Context, axis int, body string) (*Reply, error) {
	cmd := NewCommand(d.address, axis, body)
	reply, err := d.sender.Request(ctx, cmd)
	if err != nil {
		return reply, err
	}
	if reply.Rejected() {
		return reply, &RejectedError{Command: cmd.String(), Reply: reply}
	}
	return reply, nil
}

// Get reads a setting of the whole device.
func (d *Device) Get(ctx context.Context, setting string) (string, error) {
	return d.get(ctx, 0, setting)
}

// GetInt reads an integer setting of the whole device.
func (d *Device) GetInt(ctx context.Context, setting string) (int, error) {
	reply, err := d.request(ctx, 0, "get "+setting)
	if err != nil {
		return 0, err
	}
	return reply.DataInt()
}

// Set writes a setting of the whole device.
func (d *Device) Set(ctx context.Context, setting, value string) error {
	return d.set(ctx, 0, setting, value)
}

func (d *Device) get(ctx context.Context, axis int, setting string) (string, error) {
	if strings.TrimSpace(setting) == "" {
		return "", fmt.Errorf("zaber: empty setting name: %w", ErrInvalidCommand)
	}
	reply, err := d.request(ctx, axis, "get "+setting)
	if err != nil {
		return "", err
	}
	return reply.Data, nil
}

func (d *Device) set(ctx context.Context, axis int, setting, value string) error {
	if strings.TrimSpace(setting) == "" || strings.TrimSpace(value) == "" {
		return fmt.Errorf("zaber: set needs a setting and a value: %w", ErrInvalidCommand)
	}
	_, err := d.request(ctx, axis, "set "+setting+" "+value)
	return err
}

// Identify reads the device id, firmware version and axis count, and
// adopts the reported axis count.
func (d *Device) Identify(ctx context.Context) (Identity, error) {
	var id Identity
	deviceID, err := d.GetInt(ctx, "deviceid")
	if err != nil {
		return id, err
	}
	firmware, err := d.Get(ctx, "version")
	if err != nil {
		return id, err
	}
	axes, err := d.Get(ctx, "system.axiscount")
	if err != nil {
		return id, err
	}
	count, err := strconv.Atoi(axes)
	if err != nil || count < 1 {
		return id, fmt.Errorf("zaber: device %d reports axis count %q: %w", d.address, axes, ErrInvalidDevice)
	}

	d.mu.Lock()
	d.axisCount = count
	d.mu.Unlock()

	id = Identity{DeviceID: deviceID, Firmware: firmware, AxisCount: count}
	return id, nil
}

// Status returns BUSY while any axis of the device is moving.
func (d *Device) Status(ctx context.Context) (string, error) {
	reply, err := d.request(ctx, 0, "")
	if err != nil {
		return "", err
	}
	return reply.DeviceStatus, nil
}

// Home homes every axis and waits until the device is idle.
func (d *Device) Home(ctx context.Context) error {
	if _, err := d.Send(ctx, "home"); err != nil {
		return err
	}
	return d.WaitUntilIdle(ctx)
}

// Stop decelerates every axis and waits until the device is idle.
func (d *Device) Stop(ctx context.Context) error {
	if _, err := d.Send(ctx, "stop"); err != nil {
		return err
	}
	return d.WaitUntilIdle(ctx)
}

// WaitUntilIdle polls the whole device until it reports IDLE.
func (d *Device) WaitUntilIdle(ctx context.Context) error {
	return pollUntilIdle(ctx, d.PollConfig(), func(ctx context.Context) (*Reply, error) {
		return d.request(ctx, 0, "")
	})
}
