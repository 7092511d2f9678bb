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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
)

// Response is what a controller returned. JSON is nil when Body is not a JSON object.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	JSON       map[string]any
}

// NewResponse builds a Response and decodes Body when it holds a JSON object.
func NewResponse(status int, header http.Header, body []byte) *Response {
	r := &Response{StatusCode: status, Header: header, Body: body}
	if header == nil {
		r.Header = http.Header{}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err == nil {
			r.JSON = m
		}
	}

	return r
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Lookup walks nested objects in JSON by key.
func (r *Response) Lookup(keys ...string) any {
	if r == nil {
		return nil
	}
	return Lookup(r.JSON, keys...)
}

// String returns the string at keys, or "".
func (r *Response) String(keys ...string) string {
	s, _ := r.Lookup(keys...).(string)
	return s
}

// Lookup walks nested map[string]any values by key.
func Lookup(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

// ValueAlreadyExists is the Redfish message id reported when a PATCH sets a
// property to the value it already holds.
const ValueAlreadyExists = "ValueAlreadyExists"

// IsValueAlreadyExists reports whether a 400 body names ValueAlreadyExists in
// its error code or message id.
func IsValueAlreadyExists(r *Response) bool {
	if r == nil || r.StatusCode != http.StatusBadRequest {
		return false
	}

	if r.JSON != nil {
		if strings.Contains(r.String("error", "code"), ValueAlreadyExists) {
			return true
		}
		if infos, ok := r.Lookup("error", "@Message.ExtendedInfo").([]any); ok {
			for _, info := range infos {
				if m, ok := info.(map[string]any); ok {
					if id, _ := m["MessageId"].(string); strings.Contains(id, ValueAlreadyExists) {
						return true
					}
				}
			}
		}
		return false
	}

	return bytes.Contains(r.Body, []byte(ValueAlreadyExists))
}

// CheckStatus classifies a completed HTTP exchange. It returns nil on success,
// including a PATCH rejected only because the value was already applied.
func CheckStatus(op, method string, r *Response) error {
	if r.IsSuccess() {
		return nil
	}

	if method == http.MethodPatch && IsValueAlreadyExists(r) {
		return nil
	}

	switch r.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fwerr.New(fwerr.KindAuthentication, op, "status %d", r.StatusCode).WithBody(r.Body)
	default:
		return fwerr.New(fwerr.KindProtocol, op, "status %d", r.StatusCode).WithBody(r.Body)
	}
}

// RequireJSON fails with a protocol error when the body is not a JSON object.
func RequireJSON(op string, r *Response) error {
	if r.JSON == nil {
		return fwerr.New(fwerr.KindProtocol, op, "malformed JSON response").WithBody(r.Body)
	}
	return nil
}

// Op names a request in errors and logs.
func Op(method, path string) string {
	return fmt.Sprintf("%s %s", method, path)
}
