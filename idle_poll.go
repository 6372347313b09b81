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
	"errors"
	"fmt"
	"time"
)

// PollConfig bounds how long WaitUntilIdle keeps querying a busy axis.
type PollConfig struct {
	Interval    time.Duration // Pause between status queries
	MaxAttempts int           // 0 for no limit
	Timeout     time.Duration // 0 for no limit beyond the caller's context
}

// DefaultPollConfig returns default configuration
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  60 * time.Second,
	}
}

// pollUntilIdle issues query until a reply reports IDLE. With N busy replies
// before the idle one it issues exactly N+1 queries.
func pollUntilIdle(ctx context.Context, cfg PollConfig, query func(context.Context) (*Reply, error)) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		reply, err := query(ctx)
		if err != nil {
			return err
		}
		if !reply.Busy() {
			return nil
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("zaber: still busy after %d status queries: %w", attempt, ErrTimeout)
		}
		if cfg.Interval <= 0 {
			if err := ctx.Err(); err != nil {
				return idleWaitError(err)
			}
			continue
		}
		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return idleWaitError(ctx.Err())
		case <-timer.C:
		}
	}
}

func idleWaitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("zaber: waiting for idle: %w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("zaber: waiting for idle: %w", err)
}
