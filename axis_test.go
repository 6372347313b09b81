package zaber

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAxis_Bounds(t *testing.T) {
	dev, err := NewDevice(nil, 1, 2)
	require.NoError(t, err)

	for _, n := range []int{-1, 0, 3, 100} {
		_, err := NewAxis(dev, n)
		assert.ErrorIs(t, err, ErrInvalidAxis, "axis %d", n)
	}
	for _, n := range []int{1, 2} {
		axis, err := dev.Axis(n)
		require.NoError(t, err)
		assert.Equal(t, n, axis.Number())
		assert.Same(t, dev, axis.Device())
	}

	_, err = NewAxis(nil, 1)
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestAxis_HomeEndToEnd(t *testing.T) {
	tr, fc := newTestTransport(t, testConfig(), scripted(
		"@01 1 OK BUSY WR 0",
		"@01 1 OK IDLE -- 0",
	))
	dev, err := NewDevice(tr, 1, 1)
	require.NoError(t, err)
	dev.SetPollConfig(fastPoll())
	axis, err := dev.Axis(1)
	require.NoError(t, err)

	require.NoError(t, axis.Home(context.Background()))
	assert.Equal(t, []string{"/1 1 home", "/1 1"}, fc.Requests())
}

func TestAxis_WaitUntilIdleQueriesUntilIdle(t *testing.T) {
	for _, busy := range []int{0, 1, 5} {
		replies := make([]string, 0, busy+1)
		for i := 0; i < busy; i++ {
			replies = append(replies, "@01 1 OK BUSY -- 0")
		}
		replies = append(replies, "@01 1 OK IDLE -- 0")

		tr, fc := newTestTransport(t, testConfig(), scripted(replies...))
		dev, err := NewDevice(tr, 1, 1)
		require.NoError(t, err)
		dev.SetPollConfig(fastPoll())
		axis, err := dev.Axis(1)
		require.NoError(t, err)

		require.NoError(t, axis.WaitUntilIdle(context.Background()))
		assert.Len(t, fc.Requests(), busy+1, "%d busy replies", busy)
	}
}

func TestAxis_MoveVelDoesNotPoll(t *testing.T) {
	tr, fc := newTestTransport(t, testConfig(), scripted("@01 1 OK BUSY -- 0"))
	dev, err := NewDevice(tr, 1, 1)
	require.NoError(t, err)
	axis, err := dev.Axis(1)
	require.NoError(t, err)

	require.NoError(t, axis.MoveVel(context.Background(), -2000))
	assert.Equal(t, []string{"/1 1 move vel -2000"}, fc.Requests())
}

func TestAxis_Moves(t *testing.T) {
	dev, fc := newSimChain(t, newSimDevice(2, 3), 2)
	axis, err := dev.Axis(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, axis.MoveAbs(ctx, 5000))
	pos, err := axis.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5000, pos)

	require.NoError(t, axis.MoveRel(ctx, -1200))
	pos, err = axis.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3800, pos)

	status, err := axis.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)

	require.NoError(t, axis.Home(ctx))
	pos, err = axis.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	requests := fc.Requests()
	assert.Equal(t, "/1 2 move abs 5000", requests[0])
	// move, three busy queries, one idle query
	assert.Equal(t, "/1 2 get pos", requests[5])
}

func TestAxis_StatusWhileMoving(t *testing.T) {
	dev, _ := newSimChain(t, newSimDevice(1, 2), 1)
	axis, err := dev.Axis(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, axis.MoveVel(ctx, 1000))
	status, err := axis.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, status)

	require.NoError(t, axis.Stop(ctx))
	status, err = axis.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
}

func TestAxis_Settings(t *testing.T) {
	dev, fc := newSimChain(t, newSimDevice(1, 0), 1)
	axis, err := dev.Axis(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, axis.Set(ctx, "maxspeed", "1000"))
	v, err := axis.Get(ctx, "maxspeed")
	require.NoError(t, err)
	assert.Equal(t, "1000", v)
	assert.Equal(t, []string{"/1 1 set maxspeed 1000", "/1 1 get maxspeed"}, fc.Requests())
}

func TestAxis_RejectedMoveDoesNotPoll(t *testing.T) {
	tr, fc := newTestTransport(t, testConfig(), scripted("@01 1 RJ IDLE -- BADDATA"))
	dev, err := NewDevice(tr, 1, 1)
	require.NoError(t, err)
	axis, err := dev.Axis(1)
	require.NoError(t, err)

	err = axis.MoveAbs(context.Background(), 99999999)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Len(t, fc.Requests(), 1)
}

func TestAxis_PollMaxAttempts(t *testing.T) {
	dev, fc := newSimChain(t, newSimDevice(1, 10), 1)
	dev.SetPollConfig(PollConfig{MaxAttempts: 3})
	axis, err := dev.Axis(1)
	require.NoError(t, err)

	err = axis.MoveAbs(context.Background(), 10)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, fc.Requests(), 4)
}

func TestAxis_PollTimeout(t *testing.T) {
	tr, _ := newTestTransport(t, testConfig(), func(string) []string {
		return []string{"@01 1 OK BUSY -- 0"}
	})
	dev, err := NewDevice(tr, 1, 1)
	require.NoError(t, err)
	dev.SetPollConfig(PollConfig{Interval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond})
	axis, err := dev.Axis(1)
	require.NoError(t, err)

	start := time.Now()
	err = axis.WaitUntilIdle(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAxis_PollCancelled(t *testing.T) {
	tr, _ := newTestTransport(t, testConfig(), func(string) []string {
		return []string{"@01 1 OK BUSY -- 0"}
	})
	dev, err := NewDevice(tr, 1, 1)
	require.NoError(t, err)
	dev.SetPollConfig(PollConfig{Interval: 5 * time.Millisecond})
	axis, err := dev.Axis(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err = axis.WaitUntilIdle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}
