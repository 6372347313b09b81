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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	serial "github.com/hootrhino/goserial"
)

// TransportConfig holds configuration parameters for the ASCII transport.
type TransportConfig struct {
	Timeout       time.Duration // Maximum wait for a reply
	MessageIDs    bool          // Tag requests with a rolling message id
	Checksums     bool          // Append a checksum to every request
	MaxLineLength int           // Longest line accepted from the bus
	QueueSize     int           // Replies buffered between the reader and Send
}

// DefaultTransportConfig returns default configuration
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Timeout:       1 * time.Second,
		MaxLineLength: 256,
		QueueSize:     16,
	}
}

// TransportStats are cumulative counters of one transport.
type TransportStats struct {
	Requests    uint64
	Replies     uint64
	Timeouts    uint64
	ParseErrors uint64
	Dropped     uint64 // stale or unmatched replies discarded
	Messages    uint64 // info and alert lines passed to the message handler
}

type readResult struct {
	reply *Reply
	err   error
}

// Transport owns the port to a chain of devices. Send and Request may be
// called from any number of goroutines: a request and its reply are always
// exchanged as one unit while the other callers wait.
type Transport struct {
	port   io.ReadWriteCloser
	config TransportConfig
	parser ReplyParser

	mu sync.Mutex // held across write and read of one exchange

	stateMu sync.RWMutex
	logger  io.Writer
	handler MessageHandler
	readErr error
	failErr error // set when a write timed out; the port is closed
	closed  bool

	replies    chan readResult
	done       chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
	nextID     atomic.Uint32

	requests    atomic.Uint64
	received    atomic.Uint64
	timeouts    atomic.Uint64
	parseErrors atomic.Uint64
	dropped     atomic.Uint64
	messages    atomic.Uint64
}

var _ ZaberApi = (*Transport)(nil)

// NewTransport starts reading from port. The transport takes ownership of
// the port and closes it in Close.
func NewTransport(port io.ReadWriteCloser, config TransportConfig) *Transport {
	defaults := DefaultTransportConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxLineLength <= 0 {
		config.MaxLineLength = defaults.MaxLineLength
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	t := &Transport{
		port:       port,
		config:     config,
		parser:     ReplyParser{InfoMessageIDs: config.MessageIDs, VerifyChecksums: config.Checksums},
		replies:    make(chan readResult, config.QueueSize),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SetLogger sets the writer receiving DEBUG/INFO/WARNING/ERROR prefixed lines.
func (t *Transport) SetLogger(logger io.Writer) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.logger = logger
}

// SetMessageHandler sets the callback receiving info and alert lines that are
// not the reply to an outstanding request. The callback runs on the reader
// goroutine and must not block.
func (t *Transport) SetMessageHandler(fn MessageHandler) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.handler = fn
}

// Config returns the configuration in effect.
func (t *Transport) Config() TransportConfig {
	return t.config
}

func (t *Transport) logf(level LogLevel, format string, args ...any) {
	t.stateMu.RLock()
	logger := t.logger
	t.stateMu.RUnlock()
	logf(logger, level, format, args...)
}

// readLoop splits the port into lines until the port fails or is closed.
func (t *Transport) readLoop() {
	defer close(t.readerDone)

	r := bufio.NewReaderSize(&patientReader{r: t.port, done: t.done}, t.config.MaxLineLength)
	var err error
	for {
		var chunk []byte
		chunk, err = r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			head := string(chunk)
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}
			t.parseErrors.Add(1)
			perr := parseErrorf(head, "line longer than %d bytes", t.config.MaxLineLength)
			t.logf(LevelWarning, "zaber: rx: %v", perr)
			t.deliver(readResult{err: perr})
		} else if line := strings.TrimRight(string(chunk), "\r\n"); line != "" {
			t.handleLine(line)
		}
		if err != nil {
			break
		}
	}

	t.stateMu.Lock()
	switch {
	case t.closed:
		err = ErrClosed
	case t.failErr != nil:
		err = t.failErr
	}
	t.readErr = err
	t.stateMu.Unlock()
	if !errors.Is(err, ErrClosed) {
		t.logf(LevelError, "zaber: reader stopped: %v", err)
	}
}

func (t *Transport) handleLine(line string) {
	reply, err := t.parser.Parse(line)
	if err != nil {
		t.parseErrors.Add(1)
		t.logf(LevelWarning, "zaber: rx %q: %v", line, err)
		t.deliver(readResult{err: err})
		return
	}
	t.logf(LevelDebug, "zaber: rx %s", line)
	if reply.IsReply() {
		t.deliver(readResult{reply: reply})
		return
	}
	t.dispatch(reply)
}

func (t *Transport) deliver(res readResult) {
	select {
	case t.replies <- res:
	default:
		t.dropped.Add(1)
		t.logf(LevelWarning, "zaber: reply queue full, dropping line")
	}
}

func (t *Transport) dispatch(msg *Reply) {
	t.messages.Add(1)
	t.stateMu.RLock()
	handler := t.handler
	t.stateMu.RUnlock()
	if handler != nil {
		handler(msg)
		return
	}
	t.logf(LevelInfo, "zaber: unhandled message %s", msg)
}

// drainStale discards replies that arrived after their request timed out.
func (t *Transport) drainStale() {
	for {
		select {
		case res := <-t.replies:
			t.dropped.Add(1)
			if res.err != nil {
				t.logf(LevelWarning, "zaber: discarding stale error: %v", res.err)
			} else {
				t.logf(LevelWarning, "zaber: discarding stale reply %s", res.reply)
			}
		default:
			return
		}
	}
}

// writeLine writes all of line, bounded by the transport timeout.
func (t *Transport) writeLine(line string) error {
	data := []byte(line)
	done := make(chan error, 1)
	go func() {
		written := 0
		for written < len(data) {
			n, err := t.port.Write(data[written:])
			if err != nil {
				done <- fmt.Errorf("write failed after %d bytes: %w", written, err)
				return
			}
			written += n
		}
		done <- nil
	}()

	timer := time.NewTimer(t.config.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("write timeout after %v: %w", t.config.Timeout, ErrTimeout)
	}
}

// fail closes the port after a write timed out. The writer goroutine may
// still be blocked in Write, so the port cannot be used for another request.
func (t *Transport) fail(err error) {
	t.stateMu.Lock()
	if t.failErr == nil {
		t.failErr = err
	}
	t.stateMu.Unlock()
	t.logf(LevelError, "zaber: closing port: %v", err)
	_ = t.port.Close()
}

func (t *Transport) readError() error {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	if t.failErr != nil {
		return fmt.Errorf("zaber: transport failed: %w", t.failErr)
	}
	if t.readErr != nil {
		return fmt.Errorf("zaber: port read failed: %w", t.readErr)
	}
	return ErrClosed
}

// Send writes one encoded request line and returns the reply to it. A
// missing terminator is added. If the line carries a message id, replies
// with any other id are discarded.
//
// On timeout the error wraps ErrTimeout and the port stays open.
func (t *Transport) Send(ctx context.Context, line string) (*Reply, error) {
	if !strings.HasSuffix(line, LineTerminator) {
		line = strings.TrimRight(line, "\r\n") + LineTerminator
	}
	return t.exchange(ctx, line, requestMessageID(line))
}

func (t *Transport) exchange(ctx context.Context, line string, id int) (*Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	request := strings.TrimRight(line, "\r\n")
	select {
	case <-t.readerDone:
		return nil, t.readError()
	default:
	}
	t.stateMu.RLock()
	failed := t.failErr != nil
	t.stateMu.RUnlock()
	if failed {
		return nil, t.readError()
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(request, err)
	}

	t.drainStale()
	t.requests.Add(1)
	t.logf(LevelDebug, "zaber: tx %s", request)
	if err := t.writeLine(line); err != nil {
		if errors.Is(err, ErrTimeout) {
			t.fail(err)
		}
		return nil, fmt.Errorf("zaber: sending %q: %w", request, err)
	}

	timer := time.NewTimer(t.config.Timeout)
	defer timer.Stop()
	for {
		select {
		case res := <-t.replies:
			if res.err != nil {
				return nil, res.err
			}
			if id != NoMessageID && res.reply.MessageID != id {
				t.dropped.Add(1)
				t.logf(LevelWarning, "zaber: reply %s does not match message id %d", res.reply, id)
				continue
			}
			t.received.Add(1)
			return res.reply, nil
		case <-t.readerDone:
			select {
			case res := <-t.replies:
				if res.err == nil && (id == NoMessageID || res.reply.MessageID == id) {
					t.received.Add(1)
					return res.reply, nil
				}
			default:
			}
			return nil, t.readError()
		case <-timer.C:
			t.timeouts.Add(1)
			t.logf(LevelError, "zaber: no reply to %s within %v", request, t.config.Timeout)
			return nil, fmt.Errorf("zaber: no reply to %q within %v: %w", request, t.config.Timeout, ErrTimeout)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				t.timeouts.Add(1)
			}
			return nil, contextError(request, ctx.Err())
		}
	}
}

// contextError wraps a context error; deadlines also match ErrTimeout.
func contextError(request string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("zaber: waiting for reply to %q: %w: %w", request, ErrTimeout, err)
	}
	return fmt.Errorf("zaber: waiting for reply to %q: %w", request, err)
}

// Request frames cmd, adding a message id and checksum when the transport is
// configured for them, and checks that the reply comes from the addressed
// device and axis.
func (t *Transport) Request(ctx context.Context, cmd Command) (*Reply, error) {
	if t.config.MessageIDs && cmd.MessageID == NoMessageID {
		cmd.MessageID = t.allocMessageID()
	}
	line, err := cmd.Encode(t.config.Checksums)
	if err != nil {
		return nil, err
	}
	reply, err := t.exchange(ctx, line, cmd.MessageID)
	if err != nil {
		return nil, err
	}
	if cmd.Device != BroadcastAddress && reply.DeviceAddress != cmd.Device {
		return reply, fmt.Errorf("zaber: request %q answered by device %d: %w", cmd, reply.DeviceAddress, ErrAddressMismatch)
	}
	if cmd.Axis != 0 && reply.AxisNumber != cmd.Axis {
		return reply, fmt.Errorf("zaber: request %q answered by axis %d: %w", cmd, reply.AxisNumber, ErrAddressMismatch)
	}
	return reply, nil
}

func (t *Transport) allocMessageID() int {
	return int((t.nextID.Add(1) - 1) % (MaxMessageID + 1))
}

// requestMessageID extracts the id from "/<device> <axis> <id> ...", or
// returns NoMessageID. Command words never start with a digit.
func requestMessageID(line string) int {
	fields := strings.Fields(strings.TrimPrefix(line, string(RequestPrefix)))
	if len(fields) < 3 {
		return NoMessageID
	}
	tok := fields[2]
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		tok = tok[:i]
	}
	if !isDigits(tok) || len(tok) > 2 {
		return NoMessageID
	}
	id := 0
	for i := 0; i < len(tok); i++ {
		id = id*10 + int(tok[i]-'0')
	}
	return id
}

// Stats returns communication statistics
func (t *Transport) Stats() TransportStats {
	return TransportStats{
		Requests:    t.requests.Load(),
		Replies:     t.received.Load(),
		Timeouts:    t.timeouts.Load(),
		ParseErrors: t.parseErrors.Load(),
		Dropped:     t.dropped.Load(),
		Messages:    t.messages.Load(),
	}
}

// Close closes the underlying port and waits for the reader to stop.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.stateMu.Lock()
		t.closed = true
		failed := t.failErr != nil
		t.stateMu.Unlock()
		close(t.done)
		if !failed {
			err = t.port.Close()
		}
		select {
		case <-t.readerDone:
		case <-time.After(t.config.Timeout):
			t.logf(LevelWarning, "zaber: reader did not stop within %v", t.config.Timeout)
		}
	})
	return err
}

// IsConnected returns true until the port is closed or fails.
func (t *Transport) IsConnected() bool {
	select {
	case <-t.readerDone:
		return false
	default:
		return true
	}
}

// patientReader retries reads that time out, so a port configured with a
// read timeout looks like a blocking stream to the line scanner.
type patientReader struct {
	r    io.Reader
	done <-chan struct{}
}

func (p *patientReader) Read(b []byte) (int, error) {
	for {
		n, err := p.r.Read(b)
		if n > 0 || (err != nil && !isTimeout(err)) {
			return n, err
		}
		select {
		case <-p.done:
			return 0, ErrClosed
		default:
		}
		if err == nil {
			time.Sleep(time.Millisecond)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
