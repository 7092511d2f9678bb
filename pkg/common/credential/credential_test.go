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

package credential

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStringMasks(t *testing.T) {
	cred := New("admin", "hunter2")

	data, err := json.Marshal(cred)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), mask)

	assert.NotContains(t, fmt.Sprintf("%v %+v %#v", cred.Password, *cred, cred.Password), "hunter2")
	assert.Equal(t, "", NewSecret("").String())
}

func TestSecretStringUnmarshal(t *testing.T) {
	var cred Credential
	require.NoError(t, json.Unmarshal([]byte(`{"user":"root","password":"0penBmc"}`), &cred))
	assert.Equal(t, "root", cred.User)
	assert.Equal(t, "0penBmc", cred.Password.Value)
	assert.Equal(t, []string{"0penBmc"}, cred.Secrets())
}

func TestPatch(t *testing.T) {
	testCases := map[string]struct {
		base        *Credential
		patch       *Credential
		wantPatched bool
		wantUser    string
		wantPass    string
	}{
		"nil patch": {
			base:        New("a", "b"),
			patch:       nil,
			wantPatched: false,
			wantUser:    "a",
			wantPass:    "b",
		},
		"empty values ignored": {
			base:        New("a", "b"),
			patch:       New(" ", ""),
			wantPatched: false,
			wantUser:    "a",
			wantPass:    "b",
		},
		"password only": {
			base:        New("a", "b"),
			patch:       New("", "c"),
			wantPatched: true,
			wantUser:    "a",
			wantPass:    "c",
		},
		"both": {
			base:        New("a", "b"),
			patch:       New("x", "y"),
			wantPatched: true,
			wantUser:    "x",
			wantPass:    "y",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.wantPatched, tc.base.Patch(tc.patch))
			assert.Equal(t, tc.wantUser, tc.base.User)
			assert.Equal(t, tc.wantPass, tc.base.Password.Value)
		})
	}
}

func TestIsValid(t *testing.T) {
	var nilCred *Credential
	assert.False(t, nilCred.IsValid())
	assert.False(t, New("  ", "x").IsValid())
	assert.True(t, New("root", "").IsValid())
	assert.Nil(t, New("root", "").Secrets())
}
