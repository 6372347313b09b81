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
	"io"
)

// MessageType is the leading character of a line sent by a device.
type MessageType byte

const (
	MessageReply MessageType = '@' // Response to a command
	MessageInfo  MessageType = '#' // Free text following a reply
	MessageAlert MessageType = '!' // Unsolicited notification
)

// String returns the wire character of the message type.
func (m MessageType) String() string {
	return string(rune(m))
}

// Valid reports whether m is one of the three message classes.
func (m MessageType) Valid() bool {
	return m == MessageReply || m == MessageInfo || m == MessageAlert
}

const (
	RequestPrefix  = '/'    // Leading character of every command line
	LineTerminator = "\r\n" // Terminator of every line on the bus

	FlagOK       = "OK"   // Command accepted
	FlagRejected = "RJ"   // Command rejected
	StatusBusy   = "BUSY" // Device or axis in motion
	StatusIdle   = "IDLE" // Device or axis at rest
	NoWarning    = "--"   // Warning flag when no warning is active

	NoMessageID  = -1 // MessageID value when a line carries no message id
	MaxMessageID = 99 // Message ids roll over after this value

	BroadcastAddress = 0  // Requests to address 0 reach every device
	MaxDeviceAddress = 99 // Highest device address on a chain
)

// Sender sends a framed command and returns the reply it produced.
// *Transport is the production implementation.
type Sender interface {
	Request(ctx context.Context, cmd Command) (*Reply, error)
}

// ZaberApi groups the operations a controller client offers to callers that
// do not care about the transport underneath.
type ZaberApi interface {
	SetLogger(io.Writer)                                      // SetLogger sets the debug output
	Send(ctx context.Context, line string) (*Reply, error)    // Send writes a raw encoded line and reads its reply
	Request(ctx context.Context, cmd Command) (*Reply, error) // Request frames cmd and sends it
	SetMessageHandler(fn MessageHandler)                      // SetMessageHandler receives info and alert lines
	Stats() TransportStats                                    // Stats returns communication counters
	Close() error                                             // Close releases the port
}

// MessageHandler receives info and alert lines that are not the reply to an
// outstanding request.
type MessageHandler func(*Reply)
