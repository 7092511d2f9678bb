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

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"

	"github.com/nvidia/nvfwupd/pkg/inventory"
)

// Component is one inventory row.
type Component struct {
	Name          string `json:"AP Name"`
	SysVersion    string `json:"Sys Version"`
	StagedVersion string `json:"Staged Version,omitempty"`
	PkgVersion    string `json:"Pkg Version,omitempty"`
	UpToDate      string `json:"Up-To-Date,omitempty"`
}

// Task is one update job row.
type Task struct {
	Package  string   `json:"Package,omitempty"`
	ID       string   `json:"Task Id"`
	State    string   `json:"Status"`
	Percent  int      `json:"Percent Complete"`
	Messages []string `json:"Messages,omitempty"`
}

// Connection states of a Target.
const (
	ConnectionOK     = "Connected"
	ConnectionFailed = "Connection Failed"
	ConnectionLost   = "Connection Lost"
	ConnectionNone   = "Not Connected"
)

// Target is the outcome for one target.
type Target struct {
	Target      string      `json:"Target"`
	Platform    string      `json:"Platform,omitempty"`
	Connection  string      `json:"Connection"`
	Code        int         `json:"Error Code"`
	Messages    []string    `json:"Messages,omitempty"`
	Errors      []string    `json:"Errors,omitempty"`
	Components  []Component `json:"Components,omitempty"`
	Tasks       []Task      `json:"Tasks,omitempty"`
	ForceUpdate *bool       `json:"ForceUpdate,omitempty"`
}

// Report is the aggregated outcome of one invocation.
type Report struct {
	Errors []string `json:"Error"`
	Code   int      `json:"Error Code"`
	Output []Target `json:"Output"`
}

// Components converts inventory records. withPackage adds the comparison columns.
func Components(records []inventory.Record, withPackage bool) []Component {
	return lo.Map(records, func(r inventory.Record, _ int) Component {
		c := Component{Name: r.Name, SysVersion: r.Running, StagedVersion: r.Staged}
		if withPackage {
			c.PkgVersion = r.Package
			c.UpToDate = r.UpToDateString()
		}
		return c
	})
}

// NewReport aggregates targets: error codes are OR-ed and errors are prefixed
// with their target.
func NewReport(targets []Target) Report {
	r := Report{Errors: []string{}, Output: targets}
	if r.Output == nil {
		r.Output = []Target{}
	}
	for _, t := range targets {
		r.Code |= t.Code
		for _, e := range t.Errors {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", t.Target, e))
		}
	}
	return r
}

// WriteJSON writes the report as one indented JSON object.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes per-target sections with tables.
func (r Report) WriteText(w io.Writer) error {
	for i, t := range r.Output {
		if i > 0 {
			fmt.Fprintln(w)
		}

		title := t.Target
		if t.Platform != "" {
			title = fmt.Sprintf("%s (%s)", t.Target, t.Platform)
		}
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, strings.Repeat("-", len(title)))

		for _, m := range t.Messages {
			fmt.Fprintln(w, m)
		}
		if len(t.Components) > 0 {
			componentTable(w, t.Components)
		}
		if len(t.Tasks) > 0 {
			taskTable(w, t.Tasks)
		}
		if t.ForceUpdate != nil {
			fmt.Fprintf(w, "ForceUpdate: %t\n", *t.ForceUpdate)
		}
		for _, e := range t.Errors {
			fmt.Fprintf(w, "Error: %s\n", e)
		}
	}

	if r.Code != 0 {
		fmt.Fprintf(w, "\nError Code: %d\n", r.Code)
	}
	return nil
}

func componentTable(w io.Writer, rows []Component) {
	withPackage := lo.SomeBy(rows, func(c Component) bool { return c.PkgVersion != "" })
	withStaged := lo.SomeBy(rows, func(c Component) bool { return c.StagedVersion != "" })

	tw := newTable(w)
	header := table.Row{"AP Name", "Sys Version"}
	if withStaged {
		header = append(header, "Staged Version")
	}
	if withPackage {
		header = append(header, "Pkg Version", "Up-To-Date")
	}
	tw.AppendHeader(header)

	for _, c := range rows {
		row := table.Row{c.Name, c.SysVersion}
		if withStaged {
			row = append(row, c.StagedVersion)
		}
		if withPackage {
			row = append(row, c.PkgVersion, c.UpToDate)
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func taskTable(w io.Writer, rows []Task) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Package", "Task Id", "Status", "Percent", "Messages"})
	for _, t := range rows {
		percent := "-"
		if t.Percent >= 0 {
			percent = fmt.Sprintf("%d%%", t.Percent)
		}
		tw.AppendRow(table.Row{t.Package, t.ID, t.State, percent, strings.Join(t.Messages, "\n")})
	}
	tw.Render()
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	return tw
}
