// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package zaber

import (
	"testing"
)

func TestLRC(t *testing.T) {
	var lrc1 lrc
	lrc1.reset().pushByte(0x01).pushByte(0x03)
	lrc1.pushBytes([]byte{0x01, 0x0A})

	if lrc1.value() != 0xF1 {
		t.Fatalf("lrc expected %v, actual %v", 0xF1, lrc1.value())
	}
}

func TestChecksumString(t *testing.T) {
	testCases := []struct {
		body     string
		expected string
	}{
		{body: "01 0 OK IDLE -- 0", expected: "8D"},
		{body: "01 1 OK IDLE -- 0", expected: "8C"},
		{body: "1 1 home", expected: "B5"},
		{body: "1 1", expected: "7E"},
		{body: "", expected: "00"},
	}

	for _, tc := range testCases {
		if got := ChecksumString(tc.body); got != tc.expected {
			t.Errorf("ChecksumString(%q) = %s, expected %s", tc.body, got, tc.expected)
		}
	}
}

func TestAppendAndVerifyChecksum(t *testing.T) {
	line := AppendChecksum("/1 1 home\r\n")
	if line != "/1 1 home:B5" {
		t.Fatalf("AppendChecksum returned %q", line)
	}
	if !VerifyChecksum("@01 0 OK IDLE -- 0", "8d") {
		t.Error("lowercase checksum should verify")
	}
	if VerifyChecksum("@01 0 OK IDLE -- 0", "8C") {
		t.Error("wrong checksum verified")
	}
	if LRC([]byte("01 0 OK IDLE -- 0")) != 0x8D {
		t.Error("LRC disagrees with ChecksumString")
	}
}
