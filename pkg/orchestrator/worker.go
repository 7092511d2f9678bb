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
	"slices"
	"strings"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/inventory"
	"github.com/nvidia/nvfwupd/pkg/output"
	"github.com/nvidia/nvfwupd/pkg/platform"
	"github.com/nvidia/nvfwupd/pkg/target"
	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

// inflight is the job currently followed for a target.
type inflight struct {
	pkg     *fwpkg.Package
	tracker *taskmonitor.Tracker
}

// worker owns everything about one target. Only one goroutine touches it at
// a time.
type worker struct {
	o      *Orchestrator
	in     Input
	logger *log.Entry
	out    *output.Buffer

	sess     access.Session
	tag      platform.Tag
	behavior platform.Behavior
	monitor  *taskmonitor.Monitor

	queue   []*fwpkg.Package
	current *inflight

	code        Code
	connection  string
	records     []inventory.Record
	withPackage bool
	tasks       []TaskResult
	forceUpdate *bool
}

func newWorker(o *Orchestrator, in Input) *worker {
	return &worker{
		o:          o,
		in:         in,
		logger:     log.WithField("target", in.Target.Name()),
		out:        output.NewBuffer(),
		connection: output.ConnectionNone,
	}
}

func (w *worker) run(ctx context.Context, op Operation, solo bool) {
	if err := w.validateRecipe(op); err != nil {
		w.failErr(err)
		return
	}
	if !w.connect(ctx, op == OpShowVersion || op == OpUpdate) {
		return
	}

	switch op {
	case OpShowVersion:
		w.showVersion(ctx)
	case OpUpdate:
		w.queue = slices.Clone(w.in.Recipe)
		w.submitNext(ctx)
		if solo {
			w.follow(ctx)
		}
	case OpShowProgress:
		w.showProgress(ctx)
	case OpForceUpdate:
		w.setForceUpdate(ctx)
	}
}

// validateRecipe runs before any network call.
func (w *worker) validateRecipe(op Operation) error {
	if op == OpUpdate && len(w.in.Recipe) == 0 {
		return fwerr.New(fwerr.KindPackageParse, "update", "no package given")
	}
	for _, pkg := range w.in.Recipe {
		if err := pkg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) connect(ctx context.Context, resolve bool) bool {
	w.sess = w.o.dial(w.in.Target, w.o.cfg.Access)
	if err := w.sess.IsReachable(ctx); err != nil {
		w.connection = output.ConnectionFailed
		w.failErr(err)
		return false
	}
	w.connection = output.ConnectionOK
	w.monitor = taskmonitor.New(w.sess, w.o.cfg.Monitor).
		WithClock(w.o.clock).
		WithProgress(w.progress)

	if !resolve {
		return true
	}

	tag, err := platform.Resolve(ctx, w.sess)
	if err != nil {
		w.failErr(err)
		return false
	}
	b, err := platform.New(tag, platform.Deps{Session: w.sess, Push: w.o.cfg.Push})
	if err != nil {
		w.failErr(err)
		return false
	}
	w.tag, w.behavior = tag, b
	w.logger = w.logger.WithField("platform", tag.Name)

	if d, ok := b.(platform.Describer); ok {
		w.logger.Debugf("Using %s", d.Describe())
	}
	if model := w.sess.Identity().Model; model != "" {
		w.out.Printf("Connected to %s (%s)", model, tag.Name)
	}
	return true
}

// parse reads the package index. NVOS images are opaque and only validated.
func (w *worker) parse(ctx context.Context, pkg *fwpkg.Package) error {
	if w.tag.Transport() != target.TransportRedfish {
		return nil
	}
	if err := pkg.Parse(ctx); err != nil {
		return err
	}
	w.logger.Debugf("Package %s version %s (%s)", pkg.Name(), pkg.Version(), pkg.Format())
	return nil
}

func (w *worker) showVersion(ctx context.Context) {
	var index fwpkg.Index
	if len(w.in.Recipe) > 0 {
		pkg := w.in.Recipe[0]
		if len(w.in.Recipe) > 1 {
			w.logger.Warnf("Comparing against %s only", pkg.Name())
		}
		if err := w.parse(ctx, pkg); err != nil {
			w.failErr(err)
			return
		}
		index = pkg.Index()
		w.withPackage = true
	}

	records, err := inventory.Collect(ctx, w.sess, w.behavior, index)
	if err != nil {
		w.failErr(err)
		return
	}
	w.records = records
}

// submitNext pushes queued packages until one leaves a job to follow.
func (w *worker) submitNext(ctx context.Context) {
	for len(w.queue) > 0 && w.current == nil {
		if w.o.Stopped() {
			w.dropQueue("interrupted")
			return
		}
		pkg := w.queue[0]
		w.queue = w.queue[1:]
		w.submit(ctx, pkg)
	}
}

func (w *worker) submit(ctx context.Context, pkg *fwpkg.Package) {
	if err := w.parse(ctx, pkg); err != nil {
		w.failErr(err)
		return
	}

	var updateService map[string]any
	if w.tag.Transport() == target.TransportRedfish {
		us, err := platform.ReadUpdateService(ctx, w.sess)
		if err != nil {
			w.failErr(err)
			return
		}
		updateService = us
	}

	opts := w.in.Options
	args := platform.UpdateArgs{
		Package:     pkg,
		Targets:     opts.Targets,
		Component:   opts.Component,
		ForceUpdate: opts.ForceUpdate,
		Special:     opts.Special,
	}
	uri := w.behavior.GetUpdateURI(updateService)
	w.logger.Debugf("Update URI for %s is %s", pkg.Name(), uri)

	jobID, err := w.behavior.UpdateComponent(ctx, args, uri, pkg.Path(), opts.Timeout)
	if err != nil {
		w.code |= CodeFor(err)
		w.out.Errorf("%s: %v", pkg.Name(), err)
		return
	}
	if jobID == "" {
		if w.sess.Kind() == target.TransportSSH {
			w.out.Printf("%s: image staged on the switch, no install was started", pkg.Name())
			return
		}
		w.out.Printf("%s: update accepted, no task was created", pkg.Name())
		return
	}
	w.out.Printf("%s: update task %s created", pkg.Name(), jobID)

	rebootWait := false
	if rw, ok := w.behavior.(platform.RebootWaiter); ok {
		rebootWait = rw.NeedsRebootWait(pkg)
	}
	tr := w.monitor.Track(jobID, rebootWait).WithReconnect(w.reconnect)

	if opts.Background {
		tr.Step(ctx)
		w.record(pkg.Name(), tr.Task())
		return
	}
	w.current = &inflight{pkg: pkg, tracker: tr}
}

// follow polls a single target in the foreground.
func (w *worker) follow(ctx context.Context) {
	for w.current != nil {
		w.poll(ctx)
		if w.current == nil {
			return
		}
		if w.o.Stopped() {
			w.abandon("interrupted")
			return
		}
		if err := w.o.clock.Sleep(ctx, w.current.tracker.NextInterval()); err != nil {
			w.abandon(err.Error())
			return
		}
	}
}

// poll steps the current job and moves on to the next package once it ends.
func (w *worker) poll(ctx context.Context) {
	cur := w.current
	if cur == nil || !cur.tracker.Step(ctx).IsTerminal() {
		return
	}

	w.current = nil
	w.record(cur.pkg.Name(), cur.tracker.Task())
	if cur.tracker.Lost() {
		w.connection = output.ConnectionLost
		w.code |= CodeConnectivity
		w.dropQueue("controller unreachable")
		return
	}
	w.submitNext(ctx)
}

// reconnect probes the controller again after polling lost it.
func (w *worker) reconnect(ctx context.Context) error {
	return retry.Do(
		func() error { return w.sess.IsReachable(ctx) },
		retry.Context(ctx),
		retry.Attempts(w.o.cfg.ReconnectAttempts),
		retry.Delay(w.o.cfg.ReconnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(fwerr.IsConnectivity),
		retry.OnRetry(func(n uint, err error) {
			w.logger.WithError(err).Debugf("Reconnect attempt %d failed", n+1)
		}),
	)
}

func (w *worker) progress(t *taskmonitor.Task) {
	if t.Last.Percent < 0 {
		return
	}
	w.logger.Infof("Task %s: %d%%", t.ID, t.Last.Percent)
}

// abandon stops following the current job. It keeps running on the controller.
func (w *worker) abandon(reason string) {
	cur := w.current
	if cur == nil {
		return
	}
	w.current = nil

	task := cur.tracker.Task()
	w.tasks = append(w.tasks, TaskResult{Package: cur.pkg.Name(), Task: task})
	w.code |= CodeJobFailure
	w.out.Errorf("%s: stopped monitoring task %s (%s), check it with show_update_progress", cur.pkg.Name(), task.ID, reason)
	w.dropQueue(reason)
}

func (w *worker) dropQueue(reason string) {
	if len(w.queue) == 0 {
		return
	}
	names := make([]string, 0, len(w.queue))
	for _, pkg := range w.queue {
		names = append(names, pkg.Name())
	}
	w.queue = nil
	w.code |= CodeJobFailure
	w.out.Errorf("not applied (%s): %s", reason, strings.Join(names, ", "))
}

func (w *worker) showProgress(ctx context.Context) {
	for _, id := range w.in.JobIDs {
		w.record("", w.monitor.Once(ctx, id))
	}
}

func (w *worker) record(pkgName string, task *taskmonitor.Task) {
	w.tasks = append(w.tasks, TaskResult{Package: pkgName, Task: task})

	label := "task " + task.ID
	if pkgName != "" {
		label = pkgName + ": " + label
	}

	switch task.State {
	case taskmonitor.StateSucceeded:
		w.out.Printf("%s completed successfully", label)
		if task.Last.Note != "" {
			w.out.Printf("%s: %s", label, task.Last.Note)
		}
	case taskmonitor.StateFailed, taskmonitor.StateCancelled:
		w.code |= CodeJobFailure
		w.out.Errorf("%s: %v", label, task.Err)
	default:
		w.out.Printf("%s is %s", label, strings.ToLower(task.State.String()))
	}
}

func (w *worker) setForceUpdate(ctx context.Context) {
	if w.sess.Kind() != target.TransportRedfish {
		w.failErr(fwerr.New(fwerr.KindProtocol, "force_update", "not supported over %s", w.sess.Kind()))
		return
	}

	switch action := w.in.Options.ForceAction; action {
	case ForceEnable, ForceDisable:
		if err := platform.SetForceUpdate(ctx, w.sess, action == ForceEnable); err != nil {
			w.failErr(err)
			return
		}
	case ForceStatus, "":
	default:
		w.failErr(fwerr.New(fwerr.KindFatal, "force_update", "unknown action %q", action))
		return
	}

	enabled, err := platform.ForceUpdateStatus(ctx, w.sess)
	if err != nil {
		w.failErr(err)
		return
	}
	w.forceUpdate = &enabled
}

func (w *worker) skip() {
	w.code |= CodeJobFailure
	w.out.Errorf("not started: interrupted")
}

func (w *worker) failErr(err error) {
	w.code |= CodeFor(err)
	w.out.Errorf("%v", err)

	entry := w.logger.WithError(err)
	if body := fwerr.BodyOf(err); body != "" {
		entry = entry.WithField("body", body)
	}
	entry.Debug("Target failed")
}

func (w *worker) close() {
	if w.sess != nil {
		if err := w.sess.Close(); err != nil {
			w.logger.WithError(err).Debug("Failed to close session")
		}
	}
	for _, pkg := range w.in.Recipe {
		if err := pkg.Cleanup(); err != nil {
			w.logger.WithError(err).Warnf("Failed to clean up %s", pkg.Name())
		}
	}
}

func (w *worker) result() Result {
	platformName := w.in.Target.Platform
	if w.behavior != nil {
		platformName = w.tag.Name
	}
	return Result{
		Target:      w.in.Target.Name(),
		Platform:    platformName,
		Connection:  w.connection,
		Code:        w.code,
		Output:      w.out,
		Records:     w.records,
		WithPackage: w.withPackage,
		Tasks:       w.tasks,
		ForceUpdate: w.forceUpdate,
	}
}
