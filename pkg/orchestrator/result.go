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
	"github.com/samber/lo"

	"github.com/nvidia/nvfwupd/pkg/inventory"
	"github.com/nvidia/nvfwupd/pkg/output"
	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

// TaskResult is a job and the package that started it. Package is empty for
// jobs given by id.
type TaskResult struct {
	Package string
	Task    *taskmonitor.Task
}

// Result is the outcome of one target.
type Result struct {
	Target      string
	Platform    string
	Connection  string
	Code        Code
	Output      *output.Buffer
	Records     []inventory.Record
	WithPackage bool
	Tasks       []TaskResult
	ForceUpdate *bool
}

// Report converts the result for printing.
func (r Result) Report() output.Target {
	return output.Target{
		Target:      r.Target,
		Platform:    r.Platform,
		Connection:  r.Connection,
		Code:        int(r.Code),
		Messages:    r.Output.Lines(),
		Errors:      r.Output.Errors(),
		Components:  output.Components(r.Records, r.WithPackage),
		Tasks:       lo.Map(r.Tasks, func(t TaskResult, _ int) output.Task { return taskRow(t) }),
		ForceUpdate: r.ForceUpdate,
	}
}

func taskRow(t TaskResult) output.Task {
	return output.Task{
		Package:  t.Package,
		ID:       t.Task.ID,
		State:    t.Task.State.String(),
		Percent:  t.Task.Last.Percent,
		Messages: t.Task.MessageLines(),
	}
}

// Aggregate ORs the codes of all results.
func Aggregate(results []Result) Code {
	return lo.Reduce(results, func(acc Code, r Result, _ int) Code { return acc | r.Code }, CodeOK)
}

// Report builds the printable report of a run.
func Report(results []Result) output.Report {
	return output.NewReport(lo.Map(results, func(r Result, _ int) output.Target { return r.Report() }))
}
