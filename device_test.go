package zaber

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimChain(t *testing.T, sim *simDevice, axes int) (*Device, *fakeController) {
	t.Helper()
	tr, fc := newTestTransport(t, testConfig(), sim.respond)
	dev, err := NewDevice(tr, 1, axes)
	require.NoError(t, err)
	dev.SetPollConfig(fastPoll())
	return dev, fc
}

func TestNewDevice_Bounds(t *testing.T) {
	for _, tc := range []struct {
		name    string
		address int
		axes    int
	}{
		{"broadcast address", 0, 1},
		{"address too high", 100, 1},
		{"negative address", -1, 1},
		{"no axes", 1, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDevice(nil, tc.address, tc.axes)
			assert.ErrorIs(t, err, ErrInvalidDevice)
		})
	}

	dev, err := NewDevice(nil, 99, 4)
	require.NoError(t, err)
	assert.Equal(t, 99, dev.Address())
	assert.Equal(t, 4, dev.AxisCount())
	assert.Equal(t, DefaultPollConfig(), dev.PollConfig())
}

func TestDevice_SendAddressesAxisZero(t *testing.T) {
	tr, fc := newTestTransport(t, testConfig(), scripted("@01 0 OK IDLE -- 0"))
	dev, err := NewDevice(tr, 1, 1)
	require.NoError(t, err)

	reply, err := dev.Send(context.Background(), "renumber")
	require.NoError(t, err)
	assert.Equal(t, 0, reply.AxisNumber)
	assert.Equal(t, []string{"/1 0 renumber"}, fc.Requests())
}

func TestDevice_Rejected(t *testing.T) {
	dev, _ := newSimChain(t, newSimDevice(1, 0), 1)

	reply, err := dev.Send(context.Background(), "frobnicate")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "BADCOMMAND", rejected.Reply.Data)
	assert.Equal(t, "/1 0 frobnicate", rejected.Command)
	require.NotNil(t, reply)
	assert.True(t, reply.Rejected())
}

func TestDevice_Settings(t *testing.T) {
	dev, fc := newSimChain(t, newSimDevice(1, 0), 1)
	ctx := context.Background()

	v, err := dev.Get(ctx, "maxspeed")
	require.NoError(t, err)
	assert.Equal(t, "153600", v)

	require.NoError(t, dev.Set(ctx, "maxspeed", "76800"))
	n, err := dev.GetInt(ctx, "maxspeed")
	require.NoError(t, err)
	assert.Equal(t, 76800, n)

	assert.Equal(t, []string{"/1 0 get maxspeed", "/1 0 set maxspeed 76800", "/1 0 get maxspeed"}, fc.Requests())

	_, err = dev.Get(ctx, "nosuchsetting")
	assert.ErrorIs(t, err, ErrRejected)

	_, err = dev.Get(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.ErrorIs(t, dev.Set(ctx, "maxspeed", ""), ErrInvalidCommand)
}

func TestDevice_Identify(t *testing.T) {
	dev, _ := newSimChain(t, newSimDevice(3, 0), 1)

	_, err := dev.Axis(3)
	require.ErrorIs(t, err, ErrInvalidAxis)

	id, err := dev.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{DeviceID: 30222, Firmware: "7.38", AxisCount: 3}, id)
	assert.Equal(t, 3, dev.AxisCount())

	axis, err := dev.Axis(3)
	require.NoError(t, err)
	assert.Equal(t, 3, axis.Number())
}

func TestDevice_HomeWaitsForAllAxes(t *testing.T) {
	dev, fc := newSimChain(t, newSimDevice(2, 2), 2)
	ctx := context.Background()

	require.NoError(t, dev.Home(ctx))
	assert.Equal(t, []string{"/1 0 home", "/1 0", "/1 0", "/1 0"}, fc.Requests())

	status, err := dev.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
}

func TestDevice_StopWaits(t *testing.T) {
	dev, fc := newSimChain(t, newSimDevice(1, 0), 1)

	require.NoError(t, dev.Stop(context.Background()))
	assert.Equal(t, []string{"/1 0 stop", "/1 0"}, fc.Requests())
}
