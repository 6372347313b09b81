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
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// AxisSample is the state of one axis at one poll.
type AxisSample struct {
	Device   int
	Axis     int
	Status   string
	Warning  string
	Position int
	Time     time.Time
}

// OnSampleFunc is a callback type for pushing axis samples
type OnSampleFunc func([]AxisSample)

// OnErrorFunc is a callback type for error reporting
type OnErrorFunc func(error)

// AxisStream handles asynchronous sample pushing and callback dispatch
type AxisStream struct {
	dataCh   chan []AxisSample
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	onData   atomic.Value // OnSampleFunc
	onError  atomic.Value // OnErrorFunc
}

// NewAxisStream creates an AxisStream with a given buffer size
func NewAxisStream(bufferSize int) *AxisStream {
	return &AxisStream{
		dataCh: make(chan []AxisSample, bufferSize),
		stopCh: make(chan struct{}),
	}
}

func (s *AxisStream) SetOnData(fn OnSampleFunc) { s.onData.Store(fn) }
func (s *AxisStream) SetOnError(fn OnErrorFunc) { s.onError.Store(fn) }

// Start launches the goroutine to dispatch samples to the OnData callback
func (s *AxisStream) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopCh:
				return
			case data := <-s.dataCh:
				if cb, ok := s.onData.Load().(OnSampleFunc); ok && cb != nil {
					cb(data)
				}
			}
		}
	}()
}

// Push sends samples to the stream, unless stopped
func (s *AxisStream) Push(data []AxisSample) {
	select {
	case s.dataCh <- data:
	case <-s.stopCh:
	}
}

func (s *AxisStream) reportError(err error) {
	if cb, ok := s.onError.Load().(OnErrorFunc); ok && cb != nil {
		cb(err)
	}
}

// Stop signals the stream to stop and waits for the dispatcher
func (s *AxisStream) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// AxisPoller samples a set of axes at a fixed interval.
type AxisPoller struct {
	mu       sync.Mutex
	axes     []*Axis
	interval time.Duration
	stream   *AxisStream
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewAxisPoller creates a poller that samples every interval.
func NewAxisPoller(interval time.Duration, bufferSize int) *AxisPoller {
	return &AxisPoller{
		interval: interval,
		stream:   NewAxisStream(bufferSize),
	}
}

// AddAxis adds an axis to every following poll.
func (p *AxisPoller) AddAxis(axes ...*Axis) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.axes = append(p.axes, axes...)
}

func (p *AxisPoller) SetOnData(fn OnSampleFunc) { p.stream.SetOnData(fn) }
func (p *AxisPoller) SetOnError(fn OnErrorFunc) { p.stream.SetOnError(fn) }

// SampleOnce queries status and position of every axis. Samples of the axes
// that answered are returned together with the joined errors of the others.
func (p *AxisPoller) SampleOnce(ctx context.Context) ([]AxisSample, error) {
	p.mu.Lock()
	axes := append([]*Axis(nil), p.axes...)
	p.mu.Unlock()

	samples := make([]*AxisSample, len(axes))
	errs := make([]error, len(axes))
	var g errgroup.Group
	for i, a := range axes {
		i, a := i, a
		g.Go(func() error {
			s, err := sampleAxis(ctx, a)
			if err != nil {
				errs[i] = fmt.Errorf("zaber: sampling %s: %w", a, err)
				return nil
			}
			samples[i] = s
			return nil
		})
	}
	_ = g.Wait()

	out := make([]AxisSample, 0, len(axes))
	for _, s := range samples {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, errors.Join(errs...)
}

func sampleAxis(ctx context.Context, a *Axis) (*AxisSample, error) {
	reply, err := a.Send(ctx, "")
	if err != nil {
		return nil, err
	}
	pos, err := a.Position(ctx)
	if err != nil {
		return nil, err
	}
	return &AxisSample{
		Device:   a.Device().Address(),
		Axis:     a.Number(),
		Status:   reply.DeviceStatus,
		Warning:  reply.WarningFlag,
		Position: pos,
		Time:     time.Now(),
	}, nil
}

// Start initiates the polling process.
func (p *AxisPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.stream.Start()
	p.wg.Add(1)
	go p.poll(ctx)
}

// poll is a private method that runs the polling loop.
func (p *AxisPoller) poll(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples, err := p.SampleOnce(ctx)
			if err != nil && ctx.Err() == nil {
				p.stream.reportError(err)
			}
			if len(samples) > 0 {
				p.stream.Push(samples)
			}
		}
	}
}

// Stop stops the polling process and cleans up resources.
func (p *AxisPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.stream.Stop()
}
