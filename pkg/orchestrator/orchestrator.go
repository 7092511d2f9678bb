/*
 * SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.
 * SPDX-License-Identifier: Apache-2.0
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/access/nvue"
	"github.com/nvidia/nvfwupd/pkg/access/redfish"
	"github.com/nvidia/nvfwupd/pkg/access/sshcopy"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/platform"
	"github.com/nvidia/nvfwupd/pkg/target"
	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

// Operation is what Run does on every target.
type Operation int

const (
	OpShowVersion Operation = iota
	OpUpdate
	OpShowProgress
	OpForceUpdate
)

func (op Operation) String() string {
	switch op {
	case OpShowVersion:
		return "show_version"
	case OpUpdate:
		return "update_fw"
	case OpShowProgress:
		return "show_update_progress"
	case OpForceUpdate:
		return "force_update"
	default:
		return fmt.Sprintf("operation(%d)", int(op))
	}
}

// ForceAction is the force_update sub-command.
type ForceAction string

const (
	ForceEnable  ForceAction = "enable"
	ForceDisable ForceAction = "disable"
	ForceStatus  ForceAction = "status"
)

// Options are the command options shared by the targets of a run.
type Options struct {
	Background  bool
	ForceUpdate bool
	Special     map[string]any
	Targets     []string
	Component   string
	Timeout     time.Duration // per push; the session upload timeout when zero
	ForceAction ForceAction
}

// Input is the work for one target. Recipe packages are applied in order.
type Input struct {
	Target  *target.Target
	Recipe  []*fwpkg.Package
	JobIDs  []string
	Options Options
}

const (
	DefaultWidth             = 8
	DefaultPhase2Interval    = 20 * time.Second
	DefaultReconnectAttempts = 3
	DefaultReconnectDelay    = 10 * time.Second
)

// Config tunes an Orchestrator.
type Config struct {
	Width             int           // targets handled at once
	Phase2Interval    time.Duration // between polls of outstanding jobs of several targets
	ReconnectAttempts uint
	ReconnectDelay    time.Duration // negative disables the delay
	Access            access.Options
	Monitor           taskmonitor.Config
	Push              platform.PushConfig
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Phase2Interval == 0 {
		c.Phase2Interval = DefaultPhase2Interval
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	switch {
	case c.ReconnectDelay == 0:
		c.ReconnectDelay = DefaultReconnectDelay
	case c.ReconnectDelay < 0:
		c.ReconnectDelay = 0
	}
	c.Access = c.Access.WithDefaults()
	c.Monitor = c.Monitor.WithDefaults()
	return c
}

// Dialer builds the session for a target.
type Dialer func(t *target.Target, opts access.Options) access.Session

// Dial picks the session implementation from the target transport.
func Dial(t *target.Target, opts access.Options) access.Session {
	switch t.Transport {
	case target.TransportNVUE:
		return nvue.New(t, opts)
	case target.TransportSSH:
		return sshcopy.New(t, opts)
	default:
		return redfish.New(t, opts)
	}
}

// Orchestrator runs one operation across many targets.
type Orchestrator struct {
	cfg   Config
	dial  Dialer
	clock taskmonitor.Clock
	stop  *atomic.Bool
}

// New returns an Orchestrator dialing with Dial.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg.WithDefaults(),
		dial:  Dial,
		clock: taskmonitor.RealClock{},
		stop:  atomic.NewBool(false),
	}
}

// WithDialer replaces the session factory.
func (o *Orchestrator) WithDialer(d Dialer) *Orchestrator {
	o.dial = d
	return o
}

// WithClock replaces the clock used for every poll delay.
func (o *Orchestrator) WithClock(c taskmonitor.Clock) *Orchestrator {
	o.clock = c
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Stop keeps targets and packages that have not started from starting.
// Requests already sent are allowed to complete.
func (o *Orchestrator) Stop() { o.stop.Store(true) }

// Stopped reports whether Stop was called.
func (o *Orchestrator) Stopped() bool { return o.stop.Load() }

// Run executes op once per input and returns one Result per input, in input
// order. It never fails as a whole: every problem ends up in a Result.
func (o *Orchestrator) Run(ctx context.Context, inputs []Input, op Operation) []Result {
	solo := len(inputs) == 1
	workers := lo.Map(inputs, func(in Input, _ int) *worker { return newWorker(o, in) })

	o.each(workers, func(w *worker) {
		if o.Stopped() {
			w.skip()
			return
		}
		w.run(ctx, op, solo)
	})

	if op == OpUpdate && !solo {
		o.pollOutstanding(ctx, workers)
	}

	return lo.Map(workers, func(w *worker, _ int) Result {
		defer w.close()
		return w.result()
	})
}

// pollOutstanding polls the jobs of every target still having one, until none
// is left. Targets whose controller stays unreachable are dropped.
func (o *Orchestrator) pollOutstanding(ctx context.Context, workers []*worker) {
	for {
		outstanding := lo.Filter(workers, func(w *worker, _ int) bool { return w.current != nil })
		if len(outstanding) == 0 {
			return
		}

		log.Debugf("Polling %d outstanding target(s)", len(outstanding))
		if o.Stopped() {
			lo.ForEach(outstanding, func(w *worker, _ int) { w.abandon("interrupted") })
			return
		}
		if err := o.clock.Sleep(ctx, o.cfg.Phase2Interval); err != nil {
			lo.ForEach(outstanding, func(w *worker, _ int) { w.abandon(err.Error()) })
			return
		}

		o.each(outstanding, func(w *worker) { w.poll(ctx) })
	}
}

// each runs fn on every worker, at most Width at a time.
func (o *Orchestrator) each(workers []*worker, fn func(w *worker)) {
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Width)
	for _, w := range workers {
		g.Go(func() error {
			o.guard(w, fn)
			return nil
		})
	}
	_ = g.Wait()
}

// guard turns a worker panic into an internal error of that worker only.
func (o *Orchestrator) guard(w *worker, fn func(w *worker)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithField("stack", string(debug.Stack())).Errorf("Worker panic: %v", r)
			w.current, w.queue = nil, nil
			w.code |= CodeInternal
			w.out.Errorf("internal error: %v", r)
		}
	}()
	fn(w)
}
