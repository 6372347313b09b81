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
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	Step     int
	Output   string // setting value for get, reply data for raw
	Duration time.Duration
}

// ScriptResult is the outcome of one script run.
type ScriptResult struct {
	RunID string
	Steps []StepResult
}

// ScriptRunner executes motion scripts against the devices of a chain.
type ScriptRunner struct {
	chain  *Chain
	logger io.Writer
}

func NewScriptRunner(chain *Chain) *ScriptRunner {
	return &ScriptRunner{chain: chain}
}

func (r *ScriptRunner) SetLogger(logger io.Writer) {
	r.logger = logger
}

// Run executes steps in order and stops at the first failure. The result
// holds every step completed before it.
func (r *ScriptRunner) Run(ctx context.Context, steps []ScriptStep) (ScriptResult, error) {
	result := ScriptResult{RunID: uuid.NewString()}
	logf(r.logger, LevelInfo, "zaber: script %s: %d steps", result.RunID, len(steps))

	for _, step := range steps {
		start := time.Now()
		output, err := r.runStep(ctx, step)
		if err != nil {
			logf(r.logger, LevelError, "zaber: script %s: step %d (%s) failed: %v", result.RunID, step.Step, step.Command, err)
			return result, fmt.Errorf("zaber: script step %d (%s on device %d axis %d): %w", step.Step, step.Command, step.Device, step.Axis, err)
		}
		result.Steps = append(result.Steps, StepResult{Step: step.Step, Output: output, Duration: time.Since(start)})
		logf(r.logger, LevelDebug, "zaber: script %s: step %d (%s) done in %v", result.RunID, step.Step, step.Command, time.Since(start))

		if step.Wait > 0 {
			timer := time.NewTimer(step.Wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}
	logf(r.logger, LevelInfo, "zaber: script %s: completed", result.RunID)
	return result, nil
}

func (r *ScriptRunner) runStep(ctx context.Context, step ScriptStep) (string, error) {
	dev, err := r.chain.Device(step.Device)
	if err != nil {
		return "", err
	}
	if step.Axis == 0 {
		return r.runDeviceStep(ctx, dev, step)
	}
	axis, err := dev.Axis(step.Axis)
	if err != nil {
		return "", err
	}

	switch step.Command {
	case StepHome:
		return "", axis.Home(ctx)
	case StepStop:
		return "", axis.Stop(ctx)
	case StepMoveAbs, StepMoveRel, StepMoveVel:
		v, err := strconv.Atoi(step.Value)
		if err != nil {
			return "", fmt.Errorf("zaber: %s value %q: %w", step.Command, step.Value, ErrInvalidCommand)
		}
		switch step.Command {
		case StepMoveAbs:
			return "", axis.MoveAbs(ctx, v)
		case StepMoveRel:
			return "", axis.MoveRel(ctx, v)
		default:
			return "", axis.MoveVel(ctx, v)
		}
	case StepGet:
		return axis.Get(ctx, step.Value)
	case StepSet:
		f := strings.Fields(step.Value)
		if len(f) != 2 {
			return "", fmt.Errorf("zaber: set value %q: %w", step.Value, ErrInvalidCommand)
		}
		return "", axis.Set(ctx, f[0], f[1])
	case StepRaw:
		reply, err := axis.Send(ctx, step.Value)
		if err != nil {
			return "", err
		}
		return reply.Data, nil
	}
	return "", fmt.Errorf("zaber: unknown script command %q: %w", step.Command, ErrInvalidCommand)
}

func (r *ScriptRunner) runDeviceStep(ctx context.Context, dev *Device, step ScriptStep) (string, error) {
	switch step.Command {
	case StepHome:
		return "", dev.Home(ctx)
	case StepStop:
		return "", dev.Stop(ctx)
	case StepGet:
		return dev.Get(ctx, step.Value)
	case StepSet:
		f := strings.Fields(step.Value)
		if len(f) != 2 {
			return "", fmt.Errorf("zaber: set value %q: %w", step.Value, ErrInvalidCommand)
		}
		return "", dev.Set(ctx, f[0], f[1])
	case StepRaw:
		reply, err := dev.Send(ctx, step.Value)
		if err != nil {
			return "", err
		}
		return reply.Data, nil
	}
	return "", fmt.Errorf("zaber: %s needs an axis: %w", step.Command, ErrInvalidCommand)
}
