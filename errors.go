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
	"errors"
	"fmt"
)

var (
	ErrParse           = errors.New("malformed line")
	ErrTimeout         = errors.New("timeout")
	ErrInvalidAxis     = errors.New("invalid axis number")
	ErrInvalidDevice   = errors.New("invalid device address")
	ErrInvalidCommand  = errors.New("invalid command")
	ErrRejected        = errors.New("command rejected")
	ErrClosed          = errors.New("transport closed")
	ErrAddressMismatch = errors.New("reply address mismatch")
)

// ParseError describes a line that does not follow the reply grammar.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("zaber: cannot parse %q: %s", e.Line, e.Reason)
}

// Is makes errors.Is(err, ErrParse) hold for every ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func parseErrorf(line, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// RejectedError is returned when a device answers a command with RJ.
// The data field of the reply carries the reason, e.g. BADCOMMAND.
type RejectedError struct {
	Command string
	Reply   *Reply
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("zaber: command %q rejected by device %d axis %d: %s",
		e.Command, e.Reply.DeviceAddress, e.Reply.AxisNumber, e.Reply.Data)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
