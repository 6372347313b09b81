package zaber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Encode(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		checksum bool
		want     string
	}{
		{"axis command", NewCommand(1, 1, "home"), false, "/1 1 home\r\n"},
		{"bare status query", NewCommand(1, 1, ""), false, "/1 1\r\n"},
		{"device command", NewCommand(12, 0, "get pos"), false, "/12 0 get pos\r\n"},
		{"with id", Command{Device: 1, Axis: 1, MessageID: 5, Body: "move abs 100"}, false, "/1 1 5 move abs 100\r\n"},
		{"with id zero", Command{Device: 1, Axis: 0, MessageID: 0}, false, "/1 0 0\r\n"},
		{"with checksum", NewCommand(1, 1, "home"), true, "/1 1 home:B5\r\n"},
		{"broadcast", NewCommand(0, 0, "stop"), false, "/0 0 stop\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Encode(tt.checksum)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommand_Invalid(t *testing.T) {
	tests := []Command{
		NewCommand(100, 1, "home"),
		NewCommand(-1, 1, "home"),
		NewCommand(1, -1, "home"),
		{Device: 1, Axis: 1, MessageID: 100},
		NewCommand(1, 1, "home\r\n/2 1 home"),
		NewCommand(1, 1, "home:B5"),
	}
	for _, cmd := range tests {
		_, err := cmd.Encode(false)
		assert.ErrorIs(t, err, ErrInvalidCommand, "command %+v", cmd)
	}
}

func TestRequestMessageID(t *testing.T) {
	assert.Equal(t, 12, requestMessageID("/1 1 12 move abs 5\r\n"))
	assert.Equal(t, 7, requestMessageID("/1 0 7:AB\r\n"))
	assert.Equal(t, NoMessageID, requestMessageID("/1 1 home\r\n"))
	assert.Equal(t, NoMessageID, requestMessageID("/1 1\r\n"))
	assert.Equal(t, NoMessageID, requestMessageID("/1 1 123 home\r\n"))
}
