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

package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	testCases := map[string]struct {
		args          []string
		wantErr       bool
		wantHost      string
		wantAddress   string
		wantTransport Transport
		wantPlatform  string
		wantPort      int
	}{
		"direct redfish": {
			args:          []string{"ip=10.0.0.1", "user=admin", "password=pw"},
			wantHost:      "10.0.0.1",
			wantAddress:   "10.0.0.1",
			wantTransport: TransportRedfish,
		},
		"comma separated with platform": {
			args:          []string{"ip=10.0.0.2,user=admin,password=pw,servertype=GB200"},
			wantHost:      "10.0.0.2",
			wantAddress:   "10.0.0.2",
			wantTransport: TransportRedfish,
			wantPlatform:  "gb200",
		},
		"nvswitch defaults to nvue": {
			args:          []string{"ip=10.0.0.3", "user=admin", "password=pw", "servertype=NVSwitch"},
			wantHost:      "10.0.0.3",
			wantAddress:   "10.0.0.3",
			wantTransport: TransportNVUE,
			wantPlatform:  "nvswitch",
		},
		"switch alias defaults to nvue": {
			args:          []string{"ip=10.0.0.4", "user=admin", "password=pw", "servertype=switch"},
			wantHost:      "10.0.0.4",
			wantAddress:   "10.0.0.4",
			wantTransport: TransportNVUE,
			wantPlatform:  "nvswitch",
		},
		"nvos alias defaults to nvue": {
			args:          []string{"ip=10.0.0.5", "user=admin", "password=pw", "servertype=NVOS"},
			wantHost:      "10.0.0.5",
			wantAddress:   "10.0.0.5",
			wantTransport: TransportNVUE,
			wantPlatform:  "nvswitch",
		},
		"alias with explicit ssh": {
			args:          []string{"ip=10.0.0.6", "user=admin", "password=pw", "servertype=nvos", "transport=ssh"},
			wantHost:      "10.0.0.6",
			wantAddress:   "10.0.0.6",
			wantTransport: TransportSSH,
			wantPlatform:  "nvswitch",
		},
		"port forward": {
			args:          []string{"port=18443", "user=admin", "password=pw"},
			wantAddress:   "127.0.0.1:18443",
			wantTransport: TransportRedfish,
			wantPort:      18443,
		},
		"missing equals": {
			args:    []string{"ip"},
			wantErr: true,
		},
		"missing host": {
			args:    []string{"user=admin"},
			wantErr: true,
		},
		"missing user": {
			args:    []string{"ip=10.0.0.1"},
			wantErr: true,
		},
		"bad port": {
			args:    []string{"ip=10.0.0.1", "user=a", "port=abc"},
			wantErr: true,
		},
		"port out of range": {
			args:    []string{"ip=10.0.0.1", "user=a", "port=70000"},
			wantErr: true,
		},
		"bad transport": {
			args:    []string{"ip=10.0.0.1", "user=a", "transport=telnet"},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			tg, err := ParseKeyValues(tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantHost, tg.Host)
			assert.Equal(t, tc.wantAddress, tg.Address())
			assert.Equal(t, tc.wantTransport, tg.Transport)
			assert.Equal(t, tc.wantPlatform, tg.Platform)
			assert.Equal(t, tc.wantPort, tg.Port)
			assert.Equal(t, tc.wantPort > 0, tg.IsPortForward())
		})
	}
}

func TestParseJSON(t *testing.T) {
	single := `{"BMC_IP":"10.1.1.1","Username":"root","Password":"pw","session_auth":"true"}`
	list := `[{"ip":"10.1.1.1","user":"a"},{"ip":"10.1.1.2","user":"b","port":"2222","transport":"ssh"}]`
	wrapped := `{"Targets":[{"ip":"10.1.1.3","user":"c"}]}`

	ts, err := ParseJSON([]byte(single))
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "10.1.1.1", ts[0].Host)
	assert.Equal(t, "root", ts[0].Credential.User)
	assert.True(t, ts[0].SessionAuth)
	assert.Equal(t, []string{"pw"}, ts[0].Secrets())

	ts, err = ParseJSON([]byte(list))
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, TransportSSH, ts[1].Transport)
	assert.Equal(t, 2222, ts[1].Port)

	ts, err = ParseJSON([]byte(wrapped))
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "10.1.1.3", ts[0].Name())

	_, err = ParseJSON([]byte(`"x"`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`[1]`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestCopyTarget(t *testing.T) {
	direct, err := ParseKeyValues([]string{"ip=sw-01,user=admin,password=pw,servertype=nvos"})
	require.NoError(t, err)
	ct, err := direct.CopyTarget()
	require.NoError(t, err)
	assert.Same(t, direct, ct)

	forwarded, err := ParseKeyValues([]string{"port=18443,ssh_port=18022,user=admin,password=pw,servertype=nvos"})
	require.NoError(t, err)
	ct, err = forwarded.CopyTarget()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18022", ct.Address())
	assert.Equal(t, "127.0.0.1:18443", forwarded.Address())

	forwarded.SSHPort = 0
	_, err = forwarded.CopyTarget()
	assert.ErrorContains(t, err, "ssh_port")
}
