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
	"net"
	"strings"
	"time"
)

// TCPScheme prefixes addresses of serial-to-Ethernet gateways running in raw
// TCP mode, e.g. tcp://192.168.1.20:7001.
const TCPScheme = "tcp://"

// DialTCP connects to a gateway that forwards the chain's serial line over
// TCP. The connection has no read deadline; the transport closes it.
func DialTCP(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(address, TCPScheme))
	if err != nil {
		return nil, fmt.Errorf("zaber: dial %s: %w", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// DialTransport dials address and starts a transport on the connection.
func DialTransport(ctx context.Context, address string, cfg TransportConfig) (*Transport, error) {
	conn, err := DialTCP(ctx, address, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewTransport(conn, cfg), nil
}

// Open starts a transport on the serial port or, for tcp:// addresses, on
// a TCP connection to a gateway.
func Open(ctx context.Context, serialCfg SerialConfig, cfg TransportConfig) (*Transport, error) {
	if strings.HasPrefix(serialCfg.Address, TCPScheme) {
		return DialTransport(ctx, serialCfg.Address, cfg)
	}
	return OpenTransport(serialCfg, cfg)
}
