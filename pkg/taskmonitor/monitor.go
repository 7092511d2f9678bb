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

package taskmonitor

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
)

// Config holds the monitor timing. Zero fields take the defaults.
type Config struct {
	GraceInterval   time.Duration
	GraceRetries    int
	PollInterval    time.Duration
	StallTimeout    time.Duration
	RetryAttempts   uint
	RetryDelay      time.Duration
	UnknownLeniency int
	RebootTimeout   time.Duration
	RebootInterval  time.Duration
}

const (
	DefaultGraceInterval   = 15 * time.Second
	DefaultGraceRetries    = 4
	DefaultPollInterval    = 5 * time.Second
	DefaultStallTimeout    = 600 * time.Second
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultUnknownLeniency = defaultLeniency
	DefaultRebootTimeout   = 20 * time.Minute
	DefaultRebootInterval  = 30 * time.Second
)

// WithDefaults fills unset fields. RetryDelay and the intervals keep an
// explicit negative value as zero so tests can run without sleeping.
func (c Config) WithDefaults() Config {
	c.GraceInterval = durationOr(c.GraceInterval, DefaultGraceInterval)
	c.PollInterval = durationOr(c.PollInterval, DefaultPollInterval)
	c.StallTimeout = durationOr(c.StallTimeout, DefaultStallTimeout)
	c.RetryDelay = durationOr(c.RetryDelay, DefaultRetryDelay)
	c.RebootTimeout = durationOr(c.RebootTimeout, DefaultRebootTimeout)
	c.RebootInterval = durationOr(c.RebootInterval, DefaultRebootInterval)

	if c.GraceRetries == 0 {
		c.GraceRetries = DefaultGraceRetries
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.UnknownLeniency == 0 {
		c.UnknownLeniency = DefaultUnknownLeniency
	}
	return c
}

func durationOr(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	default:
		return d
	}
}

// Clock is the time source of the monitor.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProgressFunc is called whenever the reported percentage changes.
type ProgressFunc func(t *Task)

// Monitor polls jobs of one session.
type Monitor struct {
	sess     access.Session
	cfg      Config
	clock    Clock
	progress ProgressFunc
	logger   *log.Entry
}

// New returns a monitor for jobs of sess.
func New(sess access.Session, cfg Config) *Monitor {
	return &Monitor{
		sess:   sess,
		cfg:    cfg.WithDefaults(),
		clock:  RealClock{},
		logger: log.WithField("target", sess.Target().Name()),
	}
}

// WithClock replaces the time source.
func (m *Monitor) WithClock(c Clock) *Monitor {
	m.clock = c
	return m
}

// WithProgress registers a progress callback.
func (m *Monitor) WithProgress(fn ProgressFunc) *Monitor {
	m.progress = fn
	return m
}

// Config returns the effective timing.
func (m *Monitor) Config() Config { return m.cfg }

// ReconnectFunc re-establishes a lost session.
type ReconnectFunc func(ctx context.Context) error

// Tracker follows one job across polls.
type Tracker struct {
	m          *Monitor
	task       *Task
	rebootWait bool
	reconnect  ReconnectFunc
	polls      int
	started    bool
	lost       bool
	lastMove   time.Time
}

// Track starts following jobID. With rebootWait, a lost connection while
// polling is treated as a controller reboot rather than a failure.
func (m *Monitor) Track(jobID string, rebootWait bool) *Tracker {
	return &Tracker{
		m:          m,
		task:       NewTask(jobID),
		rebootWait: rebootWait,
		lastMove:   m.clock.Now(),
	}
}

// WithReconnect is used when polling loses the controller and the tracker
// does not wait for a reboot.
func (tr *Tracker) WithReconnect(fn ReconnectFunc) *Tracker {
	tr.reconnect = fn
	return tr
}

// Task returns the cached task.
func (tr *Tracker) Task() *Task { return tr.task }

// Lost reports whether the task failed because the controller stayed unreachable.
func (tr *Tracker) Lost() bool { return tr.lost }

// Step polls the job once and folds the answer into the task.
func (tr *Tracker) Step(ctx context.Context) State {
	task := tr.task
	if task.State.IsTerminal() {
		return task.State
	}

	tr.polls++

	resp, err := tr.poll(ctx)
	if err != nil && fwerr.IsConnectivity(err) {
		switch {
		case tr.rebootWait:
			tr.m.logger.WithError(err).Info("controller unreachable while polling, waiting for reboot")
			if rerr := tr.waitReboot(ctx); rerr != nil {
				tr.lost = true
				task.Fail("controller did not come back after reboot: %v", rerr)
				return task.State
			}
			resp, err = tr.poll(ctx)
		case tr.reconnect != nil:
			tr.m.logger.WithError(err).Info("controller unreachable while polling, reconnecting")
			if rerr := tr.reconnect(ctx); rerr != nil {
				tr.lost = true
				task.Fail("reconnect failed: %v", rerr)
				return task.State
			}
			resp, err = tr.poll(ctx)
		}
	}
	if err != nil {
		task.Fail("polling failed: %v", err)
		return task.State
	}

	prev := task.Last.Percent
	state := task.Observe(resp, tr.m.sess.Kind(), tr.m.cfg.UnknownLeniency)

	now := tr.m.clock.Now()
	if task.Last.Percent != prev || tr.polls == 1 {
		tr.lastMove = now
		if task.Last.Percent != prev && task.Last.Percent != percentUnknown && tr.m.progress != nil {
			tr.m.progress(task)
		}
	}
	if isStarted(task) {
		tr.started = true
	}

	if !state.IsTerminal() && now.Sub(tr.lastMove) > tr.m.cfg.StallTimeout {
		task.Fail("no progress for %s", tr.m.cfg.StallTimeout)
	}

	return task.State
}

// NextInterval is the delay before the next Step.
func (tr *Tracker) NextInterval() time.Duration {
	if !tr.started && tr.polls <= tr.m.cfg.GraceRetries {
		return tr.m.cfg.GraceInterval
	}
	return tr.m.cfg.PollInterval
}

func isStarted(t *Task) bool {
	if t.State.IsTerminal() || t.Last.Percent > 0 {
		return true
	}
	switch t.Last.RawState {
	case "", "New", "new", "Pending", "pending":
		return false
	}
	return true
}

func (tr *Tracker) poll(ctx context.Context) (*access.Response, error) {
	cfg := tr.m.cfg
	return retry.DoWithData(
		func() (*access.Response, error) {
			return tr.m.sess.PollJob(ctx, tr.task.ID)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.RetryAttempts),
		retry.Delay(cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(fwerr.IsConnectivity),
		retry.OnRetry(func(n uint, err error) {
			tr.m.logger.WithError(err).Debugf("poll of task %s failed, attempt %d", tr.task.ID, n+1)
		}),
	)
}

func (tr *Tracker) waitReboot(ctx context.Context) error {
	cfg := tr.m.cfg
	deadline := tr.m.clock.Now().Add(cfg.RebootTimeout)

	var err error
	for tr.m.clock.Now().Before(deadline) {
		if serr := tr.m.clock.Sleep(ctx, cfg.RebootInterval); serr != nil {
			return serr
		}
		if err = tr.m.sess.IsReachable(ctx); err == nil {
			return nil
		}
	}
	if err == nil {
		err = context.DeadlineExceeded
	}
	return err
}

// Wait polls in the foreground until the job is terminal.
func (m *Monitor) Wait(ctx context.Context, jobID string, rebootWait bool) *Task {
	tr := m.Track(jobID, rebootWait)
	for {
		if tr.Step(ctx).IsTerminal() {
			return tr.task
		}
		if err := m.clock.Sleep(ctx, tr.NextInterval()); err != nil {
			tr.task.Fail("monitoring interrupted: %v", err)
			return tr.task
		}
	}
}

// Once reads the job a single time, as used in background mode.
func (m *Monitor) Once(ctx context.Context, jobID string) *Task {
	tr := m.Track(jobID, false)
	tr.Step(ctx)
	return tr.task
}
