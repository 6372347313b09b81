// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package zaber

import (
	"fmt"
	"strings"
)

// lrc implements the longitudinal redundancy check used to protect lines.
type lrc struct {
	sum uint8
}

func (l *lrc) reset() *lrc {
	l.sum = 0
	return l
}

func (l *lrc) pushByte(b byte) *lrc {
	l.sum += b
	return l
}

func (l *lrc) pushBytes(data []byte) *lrc {
	for _, b := range data {
		l.sum += b
	}
	return l
}

func (l *lrc) pushString(s string) *lrc {
	for i := 0; i < len(s); i++ {
		l.sum += s[i]
	}
	return l
}

// value returns the two's complement of the running sum.
func (l *lrc) value() byte {
	return -l.sum
}

// LRC calculates the 8-bit checksum of data.
func LRC(data []byte) byte {
	var l lrc
	return l.reset().pushBytes(data).value()
}

// ChecksumString returns the checksum of body as two uppercase hex digits.
func ChecksumString(body string) string {
	var l lrc
	return fmt.Sprintf("%02X", l.reset().pushString(body).value())
}

// checksumBody strips the leading type character; the checksum covers the
// rest of the line up to the colon.
func checksumBody(line string) string {
	if line == "" {
		return ""
	}
	return line[1:]
}

// AppendChecksum appends ":XX" to an unterminated line.
func AppendChecksum(line string) string {
	line = strings.TrimRight(line, LineTerminator)
	return line + ":" + ChecksumString(checksumBody(line))
}

// VerifyChecksum reports whether sum is the checksum of the unterminated
// line without its ":XX" suffix. Hex digits are compared case-insensitively.
func VerifyChecksum(line, sum string) bool {
	return strings.EqualFold(ChecksumString(checksumBody(line)), sum)
}

func isHexPair(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
