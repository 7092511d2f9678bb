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

// Package taskmonitor follows a remote update job until it reaches a terminal
// state. Every poll re-reads the controller; a Task only caches the last poll.
package taskmonitor

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// State is the monitor's view of a job.
type State int

const (
	StateSubmitted State = iota
	StatePending
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "Submitted"
	case StatePending:
		return "Pending"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Task states reported by controllers, lower case. Both sets are open: states
// in neither are judged by their status.
var (
	PendingStates = mapset.NewSet("new", "pending", "running", "starting", "service")
	FailureStates = mapset.NewSet("cancelled", "cancelling", "exception", "interrupted", "killed", "stopping", "suspended", "error")

	nvuePendingStates = mapset.NewSet("start", "running", "action_wait", "in_progress")

	failureKeywords = []string{"fail", "violation"}
)

const (
	stateCompleted     = "completed"
	stateCancelled     = "cancelled"
	nvueActionSuccess  = "action_success"
	nvueActionError    = "action_error"
	statusOK           = "ok"
	percentUnknown     = -1
	verdictUnknown     = StateSubmitted // no usable state in the response
	defaultLeniency    = 2
	warningSuccessNote = "completed with status %s"
)

// Message is one entry of a task's message list.
type Message struct {
	MessageID string
	Message   string
	Severity  string
	Args      []string
}

func (m Message) String() string {
	switch {
	case m.Message != "" && m.MessageID != "":
		return fmt.Sprintf("%s: %s", m.MessageID, m.Message)
	case m.Message != "":
		return m.Message
	default:
		return m.MessageID
	}
}

// Observation is what one poll reported.
type Observation struct {
	RawState string
	Status   string
	Percent  int
	Messages []Message
	Note     string // set for terminal successes that carried a warning
}

// Classify maps one poll response to a State. verdictUnknown means the
// response held no usable state. It is a pure function of the response.
func Classify(resp *access.Response, kind target.Transport) (State, Observation) {
	if kind == target.TransportNVUE {
		return classifyNVUE(resp)
	}
	return classifyRedfish(resp)
}

func classifyRedfish(resp *access.Response) (State, Observation) {
	obs := Observation{
		RawState: resp.String("TaskState"),
		Status:   resp.String("TaskStatus"),
		Percent:  percentOf(resp, "PercentComplete"),
		Messages: messagesOf(resp),
	}

	state := strings.ToLower(strings.TrimSpace(obs.RawState))
	ok := strings.EqualFold(strings.TrimSpace(obs.Status), statusOK)

	switch {
	case state == "":
		return verdictUnknown, obs
	case state == stateCancelled:
		return StateCancelled, obs
	case FailureStates.Contains(state):
		return StateFailed, obs
	case PendingStates.Contains(state):
		return StatePending, obs
	case ok:
		return StateSucceeded, obs
	case state == stateCompleted:
		if hasFailureKeyword(obs.Messages) {
			return StateFailed, obs
		}
		obs.Note = fmt.Sprintf(warningSuccessNote, obs.Status)
		return StateSucceeded, obs
	default:
		return StateFailed, obs
	}
}

func classifyNVUE(resp *access.Response) (State, Observation) {
	obs := Observation{
		RawState: resp.String("state"),
		Status:   resp.String("status"),
		Percent:  percentOf(resp, "percentage"),
	}
	if obs.Status != "" {
		obs.Messages = []Message{{Message: obs.Status}}
	}

	state := strings.ToLower(strings.TrimSpace(obs.RawState))

	switch {
	case state == "":
		return verdictUnknown, obs
	case state == nvueActionSuccess:
		return StateSucceeded, obs
	case state == nvueActionError:
		return StateFailed, obs
	case nvuePendingStates.Contains(state), PendingStates.Contains(state):
		return StatePending, obs
	default:
		return StateFailed, obs
	}
}

func hasFailureKeyword(msgs []Message) bool {
	for _, m := range msgs {
		text := strings.ToLower(m.MessageID + " " + m.Message + " " + strings.Join(m.Args, " "))
		for _, kw := range failureKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}

func percentOf(resp *access.Response, key string) int {
	switch v := resp.Lookup(key).(type) {
	case float64:
		return int(v)
	case string:
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil {
			return p
		}
	}
	return percentUnknown
}

func messagesOf(resp *access.Response) []Message {
	var out []Message
	for _, key := range []string{"Messages", "@Message.ExtendedInfo"} {
		list, _ := resp.Lookup(key).([]any)
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}

			msg := Message{}
			msg.MessageID, _ = m["MessageId"].(string)
			msg.Message, _ = m["Message"].(string)
			msg.Severity, _ = m["Severity"].(string)
			if args, ok := m["MessageArgs"].([]any); ok {
				for _, a := range args {
					msg.Args = append(msg.Args, fmt.Sprint(a))
				}
			}
			out = append(out, msg)
		}
	}
	return out
}

// Task caches the last poll of one job.
type Task struct {
	ID       string
	State    State
	Last     Observation
	Response *access.Response
	Err      error // set once the task fails or is cancelled

	unknownPolls int
}

// NewTask returns a submitted task.
func NewTask(id string) *Task {
	return &Task{ID: id, State: StateSubmitted, Last: Observation{Percent: percentUnknown}}
}

// Observe folds one poll into the task. A terminal task ignores further polls.
func (t *Task) Observe(resp *access.Response, kind target.Transport, leniency int) State {
	if t.State.IsTerminal() {
		return t.State
	}

	verdict, obs := Classify(resp, kind)
	t.Response = resp
	t.Last = obs

	if verdict == verdictUnknown {
		t.unknownPolls++
		if t.unknownPolls > leniency {
			t.fail(StateFailed, "task state unavailable after %d polls", t.unknownPolls)
			return t.State
		}
		t.State = StatePending
		return t.State
	}
	t.unknownPolls = 0

	switch verdict {
	case StateFailed:
		t.fail(StateFailed, "task %s ended in state %s", t.ID, describe(obs))
	case StateCancelled:
		t.fail(StateCancelled, "task %s was cancelled", t.ID)
	default:
		t.State = verdict
	}

	return t.State
}

// Fail forces a terminal failure, e.g. after a stall or lost connection.
func (t *Task) Fail(format string, args ...any) {
	if !t.State.IsTerminal() {
		t.fail(StateFailed, format, args...)
	}
}

func (t *Task) fail(state State, format string, args ...any) {
	t.State = state

	e := fwerr.New(fwerr.KindJobFailure, "task "+t.ID, format, args...)
	if t.Response != nil {
		e.WithBody(t.Response.Body)
	}
	if msgs := t.MessageLines(); len(msgs) > 0 {
		e.Msg += ": " + strings.Join(msgs, "; ")
	}
	t.Err = e
}

// MessageLines renders the last message list.
func (t *Task) MessageLines() []string {
	out := make([]string, 0, len(t.Last.Messages))
	for _, m := range t.Last.Messages {
		if s := m.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func describe(obs Observation) string {
	if obs.Status == "" {
		return obs.RawState
	}
	return fmt.Sprintf("%s (%s)", obs.RawState, obs.Status)
}
