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
)

// Axis is one independently movable axis of a device.
type Axis struct {
	device *Device
	number int
}

// NewAxis returns axis number of device. Numbers run from 1 to the device's
// axis count; anything else fails with ErrInvalidAxis.
func NewAxis(device *Device, number int) (*Axis, error) {
	if device == nil {
		return nil, fmt.Errorf("zaber: axis %d without a device: %w", number, ErrInvalidDevice)
	}
	if count := device.AxisCount(); number < 1 || number > count {
		return nil, fmt.Errorf("zaber: device %d has axes 1-%d, not %d: %w", device.Address(), count, number, ErrInvalidAxis)
	}
	return &Axis{device: device, number: number}, nil
}

func (a *Axis) Number() int     { return a.number }
func (a *Axis) Device() *Device { return a.device }

func (a *Axis) String() string {
	return fmt.Sprintf("device %d axis %d", a.device.Address(), a.number)
}

// Send issues body to this axis.
func (a *Axis) Send(ctx context.Context, body string) (*Reply, error) {
	return a.device.request(ctx, a.number, body)
}

// moveAndWait issues a motion command and blocks until the axis stops.
func (a *Axis) moveAndWait(ctx context.Context, body string) error {
	if _, err := a.Send(ctx, body); err != nil {
		return err
	}
	return a.WaitUntilIdle(ctx)
}

// Home moves the axis to its home sensor and waits.
func (a *Axis) Home(ctx context.Context) error {
	return a.moveAndWait(ctx, "home")
}

// MoveAbs moves to an absolute position in microsteps and waits.
func (a *Axis) MoveAbs(ctx context.Context, position int) error {
	return a.moveAndWait(ctx, "move abs "+strconv.Itoa(position))
}

// MoveRel moves by distance microsteps and waits.
func (a *Axis) MoveRel(ctx context.Context, distance int) error {
	return a.moveAndWait(ctx, "move rel "+strconv.Itoa(distance))
}

// MoveVel starts moving at velocity and returns at once. The motion only
// ends on Stop or a limit.
func (a *Axis) MoveVel(ctx context.Context, velocity int) error {
	_, err := a.Send(ctx, "move vel "+strconv.Itoa(velocity))
	return err
}

// Stop decelerates the axis and waits until it is idle.
func (a *Axis) Stop(ctx context.Context) error {
	return a.moveAndWait(ctx, "stop")
}

// Status issues one bare query and returns BUSY or IDLE.
func (a *Axis) Status(ctx context.Context) (string, error) {
	reply, err := a.Send(ctx, "")
	if err != nil {
		return "", err
	}
	return reply.DeviceStatus, nil
}

// Position returns the current position in microsteps.
func (a *Axis) Position(ctx context.Context) (int, error) {
	reply, err := a.Send(ctx, "get pos")
	if err != nil {
		return 0, err
	}
	return reply.DataInt()
}

// Get reads a setting of this axis.
func (a *Axis) Get(ctx context.Context, setting string) (string, error) {
	return a.device.get(ctx, a.number, setting)
}

// Set writes a setting of this axis.
func (a *Axis) Set(ctx context.Context, setting, value string) error {
	return a.device.set(ctx, a.number, setting, value)
}

// WaitUntilIdle polls the axis until it reports IDLE, within the device's
// PollConfig.
func (a *Axis) WaitUntilIdle(ctx context.Context) error {
	return pollUntilIdle(ctx, a.device.PollConfig(), func(ctx context.Context) (*Reply, error) {
		return a.Send(ctx, "")
	})
}
