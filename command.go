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
	"strconv"
	"strings"
)

// Command is one request addressed to a device, or to one of its axes.
type Command struct {
	Device    int    // 0 broadcasts to every device
	Axis      int    // 0 addresses the whole device
	MessageID int    // NoMessageID to omit
	Body      string // e.g. "move abs 1000"; empty for a bare status query
}

// NewCommand returns a command without a message id.
func NewCommand(device, axis int, body string) Command {
	return Command{Device: device, Axis: axis, MessageID: NoMessageID, Body: body}
}

// Validate checks the addressing fields against the wire limits.
func (c Command) Validate() error {
	if c.Device < BroadcastAddress || c.Device > MaxDeviceAddress {
		return fmt.Errorf("zaber: device %d out of range 0-%d: %w", c.Device, MaxDeviceAddress, ErrInvalidCommand)
	}
	if c.Axis < 0 {
		return fmt.Errorf("zaber: axis %d is negative: %w", c.Axis, ErrInvalidCommand)
	}
	if c.MessageID != NoMessageID && (c.MessageID < 0 || c.MessageID > MaxMessageID) {
		return fmt.Errorf("zaber: message id %d out of range 0-%d: %w", c.MessageID, MaxMessageID, ErrInvalidCommand)
	}
	if strings.ContainsAny(c.Body, "\r\n:") {
		return fmt.Errorf("zaber: command body %q contains a reserved character: %w", c.Body, ErrInvalidCommand)
	}
	return nil
}

// String returns the unterminated request line without checksum.
func (c Command) String() string {
	var b strings.Builder
	b.WriteByte(RequestPrefix)
	b.WriteString(strconv.Itoa(c.Device))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(c.Axis))
	if c.MessageID != NoMessageID {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(c.MessageID))
	}
	if c.Body != "" {
		b.WriteByte(' ')
		b.WriteString(c.Body)
	}
	return b.String()
}

// Encode validates the command and returns the terminated wire line,
// optionally protected by a checksum.
func (c Command) Encode(withChecksum bool) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	line := c.String()
	if withChecksum {
		line = AppendChecksum(line)
	}
	return line + LineTerminator, nil
}
