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

package access

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
)

func TestNewResponse(t *testing.T) {
	r := NewResponse(200, nil, []byte(` {"TaskState":"Running","Oem":{"Nvidia":{"X":"y"}}}`))
	assert.Equal(t, "Running", r.String("TaskState"))
	assert.Equal(t, "y", r.String("Oem", "Nvidia", "X"))
	assert.Nil(t, r.Lookup("Oem", "Missing", "X"))
	assert.NotNil(t, r.Header)

	assert.Nil(t, NewResponse(202, nil, nil).JSON)
	assert.Nil(t, NewResponse(200, nil, []byte("[1,2]")).JSON)
	assert.Nil(t, NewResponse(200, nil, []byte("{broken")).JSON)
}

func TestCheckStatus(t *testing.T) {
	alreadyExists := []byte(`{"error":{"code":"Base.1.8.GeneralError","@Message.ExtendedInfo":[{"MessageId":"Base.1.8.ValueAlreadyExists"}]}}`)
	otherBadRequest := []byte(`{"error":{"code":"Base.1.8.PropertyValueNotInList"}}`)

	testCases := map[string]struct {
		method   string
		status   int
		body     []byte
		wantKind fwerr.Kind
		wantOK   bool
	}{
		"200 GET":                 {method: http.MethodGet, status: 200, wantOK: true},
		"202 POST":                {method: http.MethodPost, status: 202, wantOK: true},
		"PATCH already exists":    {method: http.MethodPatch, status: 400, body: alreadyExists, wantOK: true},
		"PATCH code only":         {method: http.MethodPatch, status: 400, body: []byte(`{"error":{"code":"Base.ValueAlreadyExists"}}`), wantOK: true},
		"PATCH plain text exists": {method: http.MethodPatch, status: 400, body: []byte("ValueAlreadyExists"), wantOK: true},
		"PATCH other 400":         {method: http.MethodPatch, status: 400, body: otherBadRequest, wantKind: fwerr.KindProtocol},
		"POST 400 already exists": {method: http.MethodPost, status: 400, body: alreadyExists, wantKind: fwerr.KindProtocol},
		"401":                     {method: http.MethodGet, status: 401, wantKind: fwerr.KindAuthentication},
		"403":                     {method: http.MethodPost, status: 403, wantKind: fwerr.KindAuthentication},
		"500":                     {method: http.MethodGet, status: 500, body: []byte("oops"), wantKind: fwerr.KindProtocol},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			err := CheckStatus("op", tc.method, NewResponse(tc.status, nil, tc.body))
			if tc.wantOK {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tc.wantKind, fwerr.KindOf(err))
			assert.Equal(t, string(tc.body), fwerr.BodyOf(err))
		})
	}
}

func TestPatchAlreadyExistsIsIdempotent(t *testing.T) {
	first := NewResponse(200, nil, []byte(`{}`))
	second := NewResponse(400, nil, []byte(`{"error":{"code":"Base.1.8.ValueAlreadyExists"}}`))

	assert.NoError(t, CheckStatus("PATCH", http.MethodPatch, first))
	assert.NoError(t, CheckStatus("PATCH", http.MethodPatch, second))
}

func TestOptions(t *testing.T) {
	o := ApplyOptions([]RequestOption{SuppressErrors(), ExpectJSON(), WithHeader("X-Auth-Token", "t")})
	assert.True(t, o.SuppressErrors)
	assert.True(t, o.RequireJSON)
	assert.Equal(t, "t", o.Headers["X-Auth-Token"])

	d := Options{}.WithDefaults()
	assert.Equal(t, DefaultTaskServicePath, d.TaskServicePath)
	assert.Equal(t, DefaultRequestTimeout, d.RequestTimeout)
}
