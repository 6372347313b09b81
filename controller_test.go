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
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeController answers request lines written to a transport. respond
// returns the lines to write back, without terminators.
type fakeController struct {
	conn    net.Conn
	respond func(req string) []string

	mu       sync.Mutex
	requests []string
	done     chan struct{}
}

func newTestTransport(t *testing.T, cfg TransportConfig, respond func(req string) []string) (*Transport, *fakeController) {
	t.Helper()
	client, server := net.Pipe()
	fc := &fakeController{conn: server, respond: respond, done: make(chan struct{})}
	go fc.serve()

	tr := NewTransport(client, cfg)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = server.Close()
		<-fc.done
	})
	return tr, fc
}

func (fc *fakeController) serve() {
	defer close(fc.done)
	r := bufio.NewReader(fc.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		req := strings.TrimRight(line, "\r\n")
		fc.mu.Lock()
		fc.requests = append(fc.requests, req)
		fc.mu.Unlock()
		for _, out := range fc.respond(req) {
			if _, err := fc.conn.Write([]byte(out + LineTerminator)); err != nil {
				return
			}
		}
	}
}

// write pushes an unsolicited line to the transport.
func (fc *fakeController) write(line string) error {
	_, err := fc.conn.Write([]byte(line + LineTerminator))
	return err
}

func (fc *fakeController) Requests() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.requests...)
}

// scripted answers the i-th request with the i-th entry of replies and stays
// silent once they run out.
func scripted(replies ...string) func(string) []string {
	var mu sync.Mutex
	next := 0
	return func(string) []string {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return nil
		}
		r := replies[next]
		next++
		return []string{r}
	}
}

// simDevice emulates one multi-axis device at address 1. Every motion keeps
// the axis busy for busyPolls status queries.
type simDevice struct {
	mu        sync.Mutex
	axes      int
	busyPolls int
	position  map[int]int
	busyLeft  map[int]int
	settings  map[string]string
}

func newSimDevice(axes, busyPolls int) *simDevice {
	return &simDevice{
		axes:      axes,
		busyPolls: busyPolls,
		position:  make(map[int]int),
		busyLeft:  make(map[int]int),
		settings: map[string]string{
			"deviceid":         "30222",
			"version":          "7.38",
			"system.axiscount": strconv.Itoa(axes),
			"maxspeed":         "153600",
		},
	}
}

func (s *simDevice) respond(req string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := strings.IndexByte(req, ':'); i >= 0 {
		req = req[:i]
	}
	f := strings.Fields(strings.TrimPrefix(req, "/"))
	if len(f) < 2 {
		return nil
	}
	dev, _ := strconv.Atoi(f[0])
	axis, _ := strconv.Atoi(f[1])
	words := f[2:]
	id := ""
	if len(words) > 0 && isDigits(words[0]) {
		id = words[0] + " "
		words = words[1:]
	}
	reply := func(flag, status, data string) []string {
		return []string{fmt.Sprintf("@%02d %d %s%s %s -- %s", dev, axis, id, flag, status, data)}
	}
	if dev != 1 {
		return nil
	}
	status := func() string {
		if axis == 0 {
			for _, n := range s.busyLeft {
				if n > 0 {
					return StatusBusy
				}
			}
			return StatusIdle
		}
		if s.busyLeft[axis] > 0 {
			return StatusBusy
		}
		return StatusIdle
	}
	startMotion := func() {
		if axis == 0 {
			for a := 1; a <= s.axes; a++ {
				s.busyLeft[a] = s.busyPolls
			}
			return
		}
		s.busyLeft[axis] = s.busyPolls
	}

	if len(words) == 0 {
		st := status()
		if axis == 0 {
			for a := range s.busyLeft {
				if s.busyLeft[a] > 0 {
					s.busyLeft[a]--
				}
			}
		} else if s.busyLeft[axis] > 0 {
			s.busyLeft[axis]--
		}
		return reply(FlagOK, st, "0")
	}

	switch words[0] {
	case "home":
		startMotion()
		s.position[axis] = 0
		return reply(FlagOK, StatusBusy, "0")
	case "stop":
		return reply(FlagOK, status(), "0")
	case "move":
		if axis == 0 || len(words) != 3 {
			return reply(FlagRejected, status(), "BADDATA")
		}
		v, err := strconv.Atoi(words[2])
		if err != nil {
			return reply(FlagRejected, status(), "BADDATA")
		}
		switch words[1] {
		case "abs":
			s.position[axis] = v
		case "rel":
			s.position[axis] += v
		case "vel":
		default:
			return reply(FlagRejected, status(), "BADCOMMAND")
		}
		startMotion()
		return reply(FlagOK, StatusBusy, "0")
	case "get":
		if len(words) != 2 {
			return reply(FlagRejected, status(), "BADDATA")
		}
		if words[1] == "pos" {
			return reply(FlagOK, status(), strconv.Itoa(s.position[axis]))
		}
		v, ok := s.settings[words[1]]
		if !ok {
			return reply(FlagRejected, status(), "BADCOMMAND")
		}
		return reply(FlagOK, status(), v)
	case "set":
		if len(words) != 3 {
			return reply(FlagRejected, status(), "BADDATA")
		}
		if _, ok := s.settings[words[1]]; !ok {
			return reply(FlagRejected, status(), "BADCOMMAND")
		}
		s.settings[words[1]] = words[2]
		return reply(FlagOK, status(), "0")
	}
	return reply(FlagRejected, status(), "BADCOMMAND")
}

func fastPoll() PollConfig {
	return PollConfig{Interval: 0, Timeout: 2 * time.Second}
}
