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

// Reply is one parsed line received from the bus. Values returned by the
// parser are never modified by this package.
type Reply struct {
	MessageType   MessageType
	DeviceAddress int
	AxisNumber    int    // 0 addresses the whole device
	MessageID     int    // NoMessageID when the line carries none
	ReplyFlag     string // OK or RJ, replies only
	DeviceStatus  string // BUSY or IDLE, replies and alerts
	WarningFlag   string // two characters, NoWarning when clear
	Data          string // verbatim payload
	Checksum      string // two hex digits as received, empty when absent

	idWidth int // digits of the message id as received, e.g. 2 for "07"
}

// ReplyParser converts lines into replies.
//
// Info lines have no fixed field after the axis number, so a leading numeric
// token is only taken as a message id when InfoMessageIDs is set. Replies and
// alerts are unambiguous: their next field is never numeric.
//
// A trailing ":XX" of two hex digits is always split off into Checksum. It is
// only compared with the LRC of the line when VerifyChecksums is set.
type ReplyParser struct {
	InfoMessageIDs  bool
	VerifyChecksums bool
}

// ParseReply parses one line with the default parser.
func ParseReply(line string) (*Reply, error) {
	return ReplyParser{}.Parse(line)
}

// Parse converts one line, with or without its terminator, into a Reply.
func (p ReplyParser) Parse(raw string) (*Reply, error) {
	line := strings.TrimSuffix(raw, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil, parseErrorf(raw, "empty line")
	}

	r := &Reply{MessageType: MessageType(line[0]), MessageID: NoMessageID}
	if !r.MessageType.Valid() {
		return nil, parseErrorf(raw, "unknown message type %q", line[0])
	}

	body := line
	if i := strings.LastIndexByte(line, ':'); i >= 0 && len(line)-i-1 == 2 {
		sum := line[i+1:]
		if !isHexPair(sum) {
			return nil, parseErrorf(raw, "malformed checksum %q", sum)
		}
		body = line[:i]
		if p.VerifyChecksums && !VerifyChecksum(body, sum) {
			return nil, parseErrorf(raw, "checksum mismatch: got %s, want %s", sum, ChecksumString(checksumBody(body)))
		}
		r.Checksum = sum
	}

	s := &lineScanner{line: body, pos: 1}
	var err error
	if r.DeviceAddress, err = s.number("device address"); err != nil {
		return nil, parseErrorf(raw, "%v", err)
	}
	if r.AxisNumber, err = s.number("axis number"); err != nil {
		return nil, parseErrorf(raw, "%v", err)
	}

	switch r.MessageType {
	case MessageReply:
		err = s.scanReply(r)
	case MessageAlert:
		err = s.scanAlert(r)
	case MessageInfo:
		err = s.scanInfo(r, p.InfoMessageIDs)
	}
	if err != nil {
		return nil, parseErrorf(raw, "%v", err)
	}
	return r, nil
}

// lineScanner walks a line left to right, one space-delimited token at a time.
type lineScanner struct {
	line string
	pos  int
	sep  bool // the last token was followed by a space
}

func (s *lineScanner) more() bool {
	return s.pos < len(s.line) || s.sep
}

func (s *lineScanner) peek() string {
	if s.pos >= len(s.line) {
		return ""
	}
	rest := s.line[s.pos:]
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		return rest[:i]
	}
	return rest
}

func (s *lineScanner) token(field string) (string, error) {
	if !s.more() {
		return "", fmt.Errorf("missing %s", field)
	}
	tok := s.peek()
	if tok == "" {
		return "", fmt.Errorf("empty %s", field)
	}
	s.pos += len(tok)
	s.sep = s.pos < len(s.line)
	if s.sep {
		s.pos++ // the separating space
	}
	return tok, nil
}

func (s *lineScanner) number(field string) (int, error) {
	tok, err := s.token(field)
	if err != nil {
		return 0, err
	}
	if !isDigits(tok) {
		return 0, fmt.Errorf("%s %q is not a number", field, tok)
	}
	return strconv.Atoi(tok)
}

// rest returns the remaining text verbatim and whether there was any.
func (s *lineScanner) rest() (string, bool) {
	if !s.more() {
		return "", false
	}
	data := s.line[s.pos:]
	s.pos = len(s.line)
	s.sep = false
	return data, true
}

func (s *lineScanner) messageID(r *Reply) error {
	tok := s.peek()
	if !isDigits(tok) {
		return nil
	}
	id, err := s.number("message id")
	if err != nil {
		return err
	}
	r.MessageID = id
	r.idWidth = len(tok)
	return nil
}

func (s *lineScanner) statusAndWarning(r *Reply) error {
	status, err := s.token("device status")
	if err != nil {
		return err
	}
	if status != StatusBusy && status != StatusIdle {
		return fmt.Errorf("unknown device status %q", status)
	}
	warn, err := s.token("warning flag")
	if err != nil {
		return err
	}
	if len(warn) != 2 {
		return fmt.Errorf("warning flag %q is not two characters", warn)
	}
	r.DeviceStatus = status
	r.WarningFlag = warn
	return nil
}

func (s *lineScanner) scanReply(r *Reply) error {
	if err := s.messageID(r); err != nil {
		return err
	}
	flag, err := s.token("reply flag")
	if err != nil {
		return err
	}
	if flag != FlagOK && flag != FlagRejected {
		return fmt.Errorf("unknown reply flag %q", flag)
	}
	r.ReplyFlag = flag
	if err := s.statusAndWarning(r); err != nil {
		return err
	}
	data, ok := s.rest()
	if !ok || data == "" {
		return fmt.Errorf("missing data")
	}
	r.Data = data
	return nil
}

func (s *lineScanner) scanAlert(r *Reply) error {
	if err := s.messageID(r); err != nil {
		return err
	}
	if err := s.statusAndWarning(r); err != nil {
		return err
	}
	r.Data, _ = s.rest()
	return nil
}

func (s *lineScanner) scanInfo(r *Reply, withID bool) error {
	if withID {
		if err := s.messageID(r); err != nil {
			return err
		}
	}
	r.Data, _ = s.rest()
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String returns the wire form of the reply without the line terminator.
func (r *Reply) String() string {
	var b strings.Builder
	b.WriteByte(byte(r.MessageType))
	fmt.Fprintf(&b, "%02d %d", r.DeviceAddress, r.AxisNumber)
	if r.HasMessageID() {
		fmt.Fprintf(&b, " %0*d", r.idWidth, r.MessageID)
	}
	switch r.MessageType {
	case MessageReply:
		b.WriteString(" " + r.ReplyFlag + " " + r.DeviceStatus + " " + r.WarningFlag)
	case MessageAlert:
		b.WriteString(" " + r.DeviceStatus + " " + r.WarningFlag)
	}
	if r.Data != "" {
		b.WriteString(" " + r.Data)
	}
	if r.Checksum != "" {
		b.WriteString(":" + r.Checksum)
	}
	return b.String()
}

// Encode returns the terminated wire line. Encode(Parse(line)) == line for
// every line the parser accepts.
func (r *Reply) Encode() string {
	return r.String() + LineTerminator
}

func (r *Reply) IsReply() bool { return r.MessageType == MessageReply }
func (r *Reply) IsInfo() bool  { return r.MessageType == MessageInfo }
func (r *Reply) IsAlert() bool { return r.MessageType == MessageAlert }

// Rejected reports whether the device refused the command.
func (r *Reply) Rejected() bool { return r.ReplyFlag == FlagRejected }

// Busy reports whether the device or axis was moving when it answered.
func (r *Reply) Busy() bool { return r.DeviceStatus == StatusBusy }

// HasWarning reports whether a warning flag is active.
func (r *Reply) HasWarning() bool {
	return r.WarningFlag != "" && r.WarningFlag != NoWarning
}

func (r *Reply) HasMessageID() bool { return r.MessageID >= 0 }

// DataFields splits the payload on whitespace, e.g. one value per axis.
func (r *Reply) DataFields() []string {
	return strings.Fields(r.Data)
}

// DataInt parses the payload as a single integer.
func (r *Reply) DataInt() (int, error) {
	v, err := strconv.Atoi(r.Data)
	if err != nil {
		return 0, fmt.Errorf("zaber: reply data %q is not an integer: %w", r.Data, err)
	}
	return v, nil
}

// DataInts parses every whitespace separated field as an integer.
func (r *Reply) DataInts() ([]int, error) {
	fields := r.DataFields()
	values := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("zaber: reply data %q is not a list of integers: %w", r.Data, err)
		}
		values = append(values, v)
	}
	return values, nil
}
