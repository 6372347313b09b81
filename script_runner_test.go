package zaber

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimScriptRunner(t *testing.T, sim *simDevice) (*ScriptRunner, *fakeController) {
	t.Helper()
	tr, fc := newTestTransport(t, testConfig(), sim.respond)
	chain, err := NewChain(tr, Config{
		Devices: []DeviceFile{{Address: 1, Axes: 2}},
		Poll:    PollFile{Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	return NewScriptRunner(chain), fc
}

func TestScriptRunner_Run(t *testing.T) {
	runner, fc := newSimScriptRunner(t, newSimDevice(2, 1))
	var log strings.Builder
	runner.SetLogger(&log)

	steps, err := ParseScript(strings.NewReader(`step,device,axis,command,value,wait
1,1,0,home,,
2,1,1,move_abs,1000,
3,1,1,move_rel,-250,5ms
4,1,1,get,pos,
5,1,2,set,maxspeed 5000,
6,1,0,raw,get maxspeed,
7,1,2,move_vel,300,
8,1,2,stop,,
`))
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), steps)
	require.NoError(t, err)
	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)
	require.Len(t, result.Steps, 8)
	assert.Equal(t, "750", result.Steps[3].Output)
	assert.Equal(t, "5000", result.Steps[5].Output)

	requests := fc.Requests()
	assert.Equal(t, "/1 0 home", requests[0])
	assert.Contains(t, requests, "/1 1 move rel -250")
	assert.Contains(t, requests, "/1 2 move vel 300")
	assert.Equal(t, "/1 2", requests[len(requests)-1])

	assert.Contains(t, log.String(), "INFO: zaber: script "+result.RunID+": 8 steps")
	assert.Contains(t, log.String(), "completed")
}

func TestScriptRunner_StopsAtFirstFailure(t *testing.T) {
	runner, fc := newSimScriptRunner(t, newSimDevice(2, 0))

	steps := []ScriptStep{
		{Step: 1, Device: 1, Axis: 1, Command: StepHome},
		{Step: 2, Device: 1, Axis: 3, Command: StepHome},
		{Step: 3, Device: 1, Axis: 1, Command: StepHome},
	}
	result, err := runner.Run(context.Background(), steps)
	assert.ErrorIs(t, err, ErrInvalidAxis)
	assert.ErrorContains(t, err, "step 2")
	assert.Len(t, result.Steps, 1)
	assert.Len(t, fc.Requests(), 2)

	_, err = runner.Run(context.Background(), []ScriptStep{{Step: 1, Device: 9, Command: StepStop}})
	assert.ErrorIs(t, err, ErrInvalidDevice)

	_, err = runner.Run(context.Background(), []ScriptStep{{Step: 1, Device: 1, Command: StepMoveAbs, Value: "10"}})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = runner.Run(context.Background(), []ScriptStep{{Step: 1, Device: 1, Axis: 1, Command: StepRaw, Value: "warp 9"}})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestScriptRunner_CancelDuringWait(t *testing.T) {
	runner, _ := newSimScriptRunner(t, newSimDevice(1, 0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	result, err := runner.Run(ctx, []ScriptStep{
		{Step: 1, Device: 1, Axis: 1, Command: StepStop, Wait: time.Minute},
		{Step: 2, Device: 1, Axis: 1, Command: StepHome},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Steps, 1)
}
