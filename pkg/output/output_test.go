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
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/nvfwupd/pkg/inventory"
)

func TestBufferConcurrentWrites(t *testing.T) {
	b := NewBuffer()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Printf("line %d", i)
		}()
	}
	wg.Wait()
	b.Errorf("failed: %s", "boom")

	assert.Len(t, b.Lines(), 20)
	assert.Equal(t, []string{"failed: boom"}, b.Errors())
}

func TestNewReport(t *testing.T) {
	testCases := map[string]struct {
		targets    []Target
		wantCode   int
		wantErrors []string
	}{
		"empty": {
			wantErrors: []string{},
		},
		"all ok": {
			targets:    []Target{{Target: "a"}, {Target: "b"}},
			wantErrors: []string{},
		},
		"codes are or-ed": {
			targets: []Target{
				{Target: "a", Code: 1, Errors: []string{"task 5 failed"}},
				{Target: "b", Code: 2, Errors: []string{"unreachable"}},
				{Target: "c", Code: 1},
			},
			wantCode:   3,
			wantErrors: []string{"a: task 5 failed", "b: unreachable"},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			r := NewReport(tc.targets)
			assert.Equal(t, tc.wantCode, r.Code)
			assert.Equal(t, tc.wantErrors, r.Errors)
			assert.Len(t, r.Output, len(tc.targets))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	r := NewReport([]Target{
		{Target: "10.0.0.1", Code: 0, Components: []Component{{Name: "BMC", SysVersion: "1.0"}}},
		{Target: "10.0.0.2", Code: 2, Errors: []string{"connectivity error"}},
	})

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(2), got["Error Code"])
	assert.Equal(t, []any{"10.0.0.2: connectivity error"}, got["Error"])

	out, ok := got["Output"].([]any)
	require.True(t, ok)
	require.Len(t, out, 2)
	first := out[0].(map[string]any)
	assert.Equal(t, []any{map[string]any{"AP Name": "BMC", "Sys Version": "1.0"}}, first["Components"])
}

func TestWriteJSONEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReport(nil).WriteJSON(&buf))
	assert.JSONEq(t, `{"Error":[],"Error Code":0,"Output":[]}`, buf.String())
}

func TestComponents(t *testing.T) {
	records := []inventory.Record{
		{Name: "BMC", Running: "1.0", Package: "1.1", Comparable: true},
		{Name: "CPLD", Running: "0.1", Staged: "0.2", Package: "N/A"},
	}

	plain := Components(records, false)
	assert.Equal(t, Component{Name: "BMC", SysVersion: "1.0"}, plain[0])

	full := Components(records, true)
	assert.Equal(t, Component{Name: "BMC", SysVersion: "1.0", PkgVersion: "1.1", UpToDate: "No"}, full[0])
	assert.Equal(t, Component{Name: "CPLD", SysVersion: "0.1", StagedVersion: "0.2", PkgVersion: "N/A", UpToDate: "N/A"}, full[1])
}

func TestWriteText(t *testing.T) {
	yes := true
	r := NewReport([]Target{
		{
			Target:     "10.0.0.1",
			Platform:   "hgx",
			Messages:   []string{"Connected"},
			Components: []Component{{Name: "HGX_FW_BMC_0", SysVersion: "1.0", PkgVersion: "1.1", UpToDate: "No"}},
			Tasks:      []Task{{Package: "fw.fwpkg", ID: "5", State: "Succeeded", Percent: 100}},
		},
		{Target: "10.0.0.2", Code: 4, Errors: []string{"authentication error"}, ForceUpdate: &yes},
	})

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	text := buf.String()

	for _, want := range []string{
		"10.0.0.1 (hgx)", "Connected", "AP Name", "Pkg Version", "HGX_FW_BMC_0",
		"Task Id", "Succeeded", "100%", "ForceUpdate: true", "Error: authentication error", "Error Code: 4",
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "Staged Version")
}
